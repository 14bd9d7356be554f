package providers

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed pricing/*.yaml
var defaultPricing embed.FS

// LoadPricing reads a YAML pricing file and returns the provider configuration.
func LoadPricing(path string) (*ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file %s: %w", path, err)
	}
	cfg, err := parsePricing(data)
	if err != nil {
		return nil, fmt.Errorf("pricing file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadPricingFromBytes parses YAML pricing data from raw bytes.
func LoadPricingFromBytes(data []byte) (*ProviderConfig, error) {
	var cfg ProviderConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse pricing data: %w", err)
	}
	return &cfg, nil
}

func parsePricing(data []byte) (*ProviderConfig, error) {
	cfg, err := LoadPricingFromBytes(data)
	if err != nil {
		return nil, err
	}
	if cfg.Provider == "" {
		return nil, fmt.Errorf("missing provider name")
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("no models defined")
	}
	return cfg, nil
}

// DefaultRegistry returns a registry holding the built-in pricing tables.
// YAML files in dir, when set, replace built-in providers of the same name.
func DefaultRegistry(dir string) (*Registry, error) {
	tables := map[string]*ProviderConfig{}

	entries, err := fs.ReadDir(defaultPricing, "pricing")
	if err != nil {
		return nil, fmt.Errorf("read built-in pricing: %w", err)
	}
	for _, e := range entries {
		data, err := defaultPricing.ReadFile("pricing/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read built-in pricing %s: %w", e.Name(), err)
		}
		cfg, err := parsePricing(data)
		if err != nil {
			return nil, fmt.Errorf("built-in pricing %s: %w", e.Name(), err)
		}
		tables[cfg.Provider] = cfg
	}

	if dir != "" {
		paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
		if err != nil {
			return nil, fmt.Errorf("list pricing dir: %w", err)
		}
		for _, p := range paths {
			cfg, err := LoadPricing(p)
			if err != nil {
				return nil, err
			}
			tables[cfg.Provider] = cfg
		}
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	reg := NewRegistry()
	for _, name := range names {
		if err := reg.Register(NewTable(tables[name])); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
