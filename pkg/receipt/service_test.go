package receipt_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/basket-guardian/pkg/credits"
	"github.com/ogulcanaydogan/basket-guardian/pkg/docstore"
	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
	"github.com/ogulcanaydogan/basket-guardian/pkg/providers"
	"github.com/ogulcanaydogan/basket-guardian/pkg/receipt"
)

type stubExtractor struct {
	res   *receipt.Result
	err   error
	calls int
}

func (s *stubExtractor) Name() string { return "stub" }

func (s *stubExtractor) Extract(_ context.Context, _ string) (*receipt.Result, error) {
	s.calls++
	return s.res, s.err
}

func newScanService(t *testing.T, ex receipt.Extractor, startCredits int64) (*receipt.Service, *credits.Ledger, docstore.Store) {
	t.Helper()
	store, err := docstore.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	user := model.User{Email: "ana@example.com", AICredits: startCredits}
	require.NoError(t, store.Set(context.Background(), docstore.NewRef(model.CollectionUsers, "u1"), user.Fields()))

	pricing, err := providers.DefaultRegistry("")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := credits.NewLedger(store, pricing, logger)
	return receipt.NewService(ex, ledger, logger), ledger, store
}

func TestService_Scan(t *testing.T) {
	ex := &stubExtractor{res: &receipt.Result{
		Items: []receipt.Item{{Name: "Milk", Price: 1.29}},
		Total: 1.29,
		Usage: credits.Usage{Provider: "openai", Model: "gpt-4o", InputTokens: 1000, OutputTokens: 50},
	}}
	svc, ledger, store := newScanService(t, ex, 3)
	ctx := context.Background()

	res, err := svc.Scan(ctx, "u1", "https://img.example.com/r.jpg")
	require.NoError(t, err)
	assert.Equal(t, 1.29, res.Total)

	balance, err := ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), balance)

	n, err := store.Count(ctx, docstore.From(model.CollectionAIUsage))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestService_ScanRefundsOnFailure(t *testing.T) {
	ex := &stubExtractor{err: errors.New("upstream 500")}
	svc, ledger, _ := newScanService(t, ex, 1)
	ctx := context.Background()

	_, err := svc.Scan(ctx, "u1", "https://img.example.com/r.jpg")
	require.Error(t, err)

	balance, err := ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance)

	txs, err := ledger.Transactions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestService_ScanInsufficientCredits(t *testing.T) {
	ex := &stubExtractor{}
	svc, _, _ := newScanService(t, ex, 0)

	_, err := svc.Scan(context.Background(), "u1", "https://img.example.com/r.jpg")
	assert.ErrorIs(t, err, credits.ErrInsufficientCredits)
	assert.Zero(t, ex.calls)
}

func TestService_ScanValidation(t *testing.T) {
	ex := &stubExtractor{}
	svc, ledger, _ := newScanService(t, ex, 5)
	ctx := context.Background()

	cases := []struct{ uid, url string }{
		{"", "https://img.example.com/r.jpg"},
		{"u1", ""},
		{"u1", "ftp://img.example.com/r.jpg"},
		{"u1", "https://"},
		{"u1", "not a url"},
	}
	for _, c := range cases {
		_, err := svc.Scan(ctx, c.uid, c.url)
		assert.ErrorIs(t, err, model.ErrInvalidInput, "uid=%q url=%q", c.uid, c.url)
	}
	assert.Zero(t, ex.calls)

	balance, err := ledger.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), balance)
}
