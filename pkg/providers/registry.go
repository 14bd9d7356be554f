package providers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Registry manages provider pricing tables by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = p
	return nil
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not found", name)
	}
	return p, nil
}

// List returns all registered provider names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cost returns the USD cost of a call. Prices are combined with decimal
// arithmetic so sub-cent costs do not drift when summed.
func (r *Registry) Cost(provider, model string, inputTokens, outputTokens int64) (decimal.Decimal, error) {
	p, err := r.Get(provider)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cost calculation: %w", err)
	}
	inputPrice, err := p.PricePerToken(model, TokenInput)
	if err != nil {
		return decimal.Zero, fmt.Errorf("input pricing: %w", err)
	}
	outputPrice, err := p.PricePerToken(model, TokenOutput)
	if err != nil {
		return decimal.Zero, fmt.Errorf("output pricing: %w", err)
	}

	cost := decimal.NewFromFloat(inputPrice).Mul(decimal.NewFromInt(inputTokens)).
		Add(decimal.NewFromFloat(outputPrice).Mul(decimal.NewFromInt(outputTokens)))
	return cost, nil
}
