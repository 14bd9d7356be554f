package providers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/basket-guardian/pkg/providers"
)

func newTestRegistry(t *testing.T) *providers.Registry {
	t.Helper()
	r := providers.NewRegistry()
	require.NoError(t, r.Register(newTestTable(t, "openai")))
	require.NoError(t, r.Register(newTestTable(t, "anthropic")))
	return r
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := newTestRegistry(t)

	got, err := r.Get("openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", got.Name())
}

func TestRegistry_DuplicateRegister(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Register(newTestTable(t, "openai"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistry_GetNotFound(t *testing.T) {
	r := providers.NewRegistry()
	_, err := r.Get("nonexistent")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRegistry_ListSorted(t *testing.T) {
	r := newTestRegistry(t)
	assert.Equal(t, []string{"anthropic", "openai"}, r.List())
}

func TestRegistry_Cost(t *testing.T) {
	r := newTestRegistry(t)

	// 1,200 input tokens at $2.50/M plus 300 output tokens at $10/M.
	cost, err := r.Cost("openai", "gpt-4o", 1200, 300)
	require.NoError(t, err)
	assert.Equal(t, "0.006", cost.String())

	_, err = r.Cost("openai", "unknown", 1, 1)
	assert.Error(t, err)

	_, err = r.Cost("mistral", "gpt-4o", 1, 1)
	assert.Error(t, err)
}
