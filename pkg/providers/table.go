package providers

import "fmt"

// Table is a Provider backed by a loaded pricing config.
type Table struct {
	config *ProviderConfig
	models map[string]ModelPricing
}

// NewTable indexes a pricing config by model.
func NewTable(cfg *ProviderConfig) *Table {
	m := make(map[string]ModelPricing, len(cfg.Models))
	for _, model := range cfg.Models {
		m[model.Model] = model
	}
	return &Table{config: cfg, models: m}
}

func (t *Table) Name() string { return t.config.Provider }

func (t *Table) Models() []ModelPricing {
	return t.config.Models
}

// PricePerToken returns the USD price of one token. Cached input falls back
// to the regular input price when the model has no cached rate.
func (t *Table) PricePerToken(model string, tokenType TokenType) (float64, error) {
	pricing, ok := t.models[model]
	if !ok {
		return 0, fmt.Errorf("%s: unknown model %q", t.config.Provider, model)
	}

	switch tokenType {
	case TokenInput:
		return pricing.InputPerMillion / 1_000_000, nil
	case TokenOutput:
		return pricing.OutputPerMillion / 1_000_000, nil
	case TokenCachedInput:
		if pricing.CachedInputPerMillion > 0 {
			return pricing.CachedInputPerMillion / 1_000_000, nil
		}
		return pricing.InputPerMillion / 1_000_000, nil
	default:
		return 0, fmt.Errorf("%s: unknown token type %d", t.config.Provider, tokenType)
	}
}

func (t *Table) SupportsModel(model string) bool {
	_, ok := t.models[model]
	return ok
}
