package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/basket-guardian/internal/server"
	"github.com/ogulcanaydogan/basket-guardian/pkg/budget"
	"github.com/ogulcanaydogan/basket-guardian/pkg/credits"
	"github.com/ogulcanaydogan/basket-guardian/pkg/directory"
	"github.com/ogulcanaydogan/basket-guardian/pkg/docstore"
	"github.com/ogulcanaydogan/basket-guardian/pkg/lists"
	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
	"github.com/ogulcanaydogan/basket-guardian/pkg/notify"
	"github.com/ogulcanaydogan/basket-guardian/pkg/receipt"
)

type stubExtractor struct{}

func (stubExtractor) Name() string { return "stub" }

func (stubExtractor) Extract(context.Context, string) (*receipt.Result, error) {
	return &receipt.Result{Items: []receipt.Item{{Name: "Milk", Price: 1.29}}, Total: 1.29}, nil
}

type nopMailer struct{ sent int }

func (m *nopMailer) Send(context.Context, string, string, string) (string, error) {
	m.sent++
	return "id", nil
}

func setupServer(t *testing.T, withScanner bool) (*server.Server, *nopMailer) {
	t.Helper()
	store, err := docstore.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	ana := model.User{Email: "ana@example.com", DisplayName: "Ana", MonthlyBudget: 100, AICredits: 1}
	bob := model.User{Email: "bob@example.com", DisplayName: "Bob"}
	require.NoError(t, store.Set(ctx, docstore.NewRef(model.CollectionUsers, "u1"), ana.Fields()))
	require.NoError(t, store.Set(ctx, docstore.NewRef(model.CollectionUsers, "u2"), bob.Fields()))
	list := model.GroceryList{Name: "Groceries", OwnerID: "u1", Members: []string{"u1"}}
	require.NoError(t, store.Set(ctx, docstore.NewRef(model.CollectionLists, "l1"), list.Fields()))
	spend := model.SpendingRecord{UserID: "u1", Date: time.Now(), TotalAmount: 60}
	require.NoError(t, store.Set(ctx, docstore.NewRef(model.CollectionHistory, "h1"), spend.Fields()))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := directory.New(store)
	mailer := &nopMailer{}
	notifier := notify.NewService(store, nil, logger)
	ledger := credits.NewLedger(store, nil, logger)

	deps := server.Deps{
		Members:  lists.NewService(store, dir, notifier, logger),
		Balances: ledger,
		Budgets:  budget.NewMonitor(store, dir, mailer, budget.Config{}, logger),
		Push:     notifier,
	}
	if withScanner {
		deps.Scanner = receipt.NewService(stubExtractor{}, ledger, logger)
	}
	return server.NewServer(deps, logger), mailer
}

func do(t *testing.T, srv *server.Server, method, path, body string) (int, server.Response) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	var resp server.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return w.Code, resp
}

func TestServer_Health(t *testing.T) {
	srv, _ := setupServer(t, true)
	code, resp := do(t, srv, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
}

func TestServer_Scan(t *testing.T) {
	srv, _ := setupServer(t, true)

	code, resp := do(t, srv, "POST", "/api/v1/receipts/scan", `{"userId":"u1","imageUrl":"https://img.example.com/r.jpg"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	assert.Equal(t, 1.29, data["total"])

	// The only credit is spent.
	code, resp = do(t, srv, "POST", "/api/v1/receipts/scan", `{"userId":"u1","imageUrl":"https://img.example.com/r.jpg"}`)
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.False(t, resp.Success)

	code, _ = do(t, srv, "POST", "/api/v1/receipts/scan", `{"userId":"u1","imageUrl":"file:///etc/passwd"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, srv, "POST", "/api/v1/receipts/scan", `{"userId":"ghost","imageUrl":"https://img.example.com/r.jpg"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, srv, "POST", "/api/v1/receipts/scan", `{"user":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_ScanNotConfigured(t *testing.T) {
	srv, _ := setupServer(t, false)
	code, _ := do(t, srv, "POST", "/api/v1/receipts/scan", `{"userId":"u1","imageUrl":"https://img.example.com/r.jpg"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestServer_AddMember(t *testing.T) {
	srv, _ := setupServer(t, true)

	code, resp := do(t, srv, "POST", "/api/v1/lists/l1/members", `{"inviterId":"u1","email":"bob@example.com"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "u2", resp.Data.(map[string]any)["uid"])

	code, _ = do(t, srv, "POST", "/api/v1/lists/missing/members", `{"inviterId":"u1","email":"bob@example.com"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, srv, "POST", "/api/v1/lists/l1/members", `{"inviterId":"u1","email":"nobody"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_Credits(t *testing.T) {
	srv, _ := setupServer(t, true)

	code, resp := do(t, srv, "GET", "/api/v1/users/u1/credits", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1.0, resp.Data.(map[string]any)["aiCredits"])

	code, _ = do(t, srv, "GET", "/api/v1/users/ghost/credits", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_Spending(t *testing.T) {
	srv, _ := setupServer(t, true)

	code, resp := do(t, srv, "GET", "/api/v1/users/u1/spending?period=monthly", "")
	assert.Equal(t, http.StatusOK, code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, 60.0, data["totalSpent"])
	assert.Equal(t, "monthly", data["period"])

	code, _ = do(t, srv, "GET", "/api/v1/users/u1/spending?period=yearly", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_BudgetCheck(t *testing.T) {
	srv, mailer := setupServer(t, true)

	code, resp := do(t, srv, "POST", "/api/v1/budget/check", `{"userId":"u1"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(budget.OutcomeAlerted), resp.Message)
	assert.Equal(t, 1, mailer.sent)

	code, resp = do(t, srv, "POST", "/api/v1/budget/check", `{"userId":"u1"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(budget.OutcomeAlreadyAlerted), resp.Message)
	assert.Equal(t, 1, mailer.sent)

	code, _ = do(t, srv, "POST", "/api/v1/budget/check", `{"userId":""}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_PushToken(t *testing.T) {
	srv, _ := setupServer(t, true)

	code, _ := do(t, srv, "POST", "/api/v1/users/u1/push-tokens", `{"token":"ExponentPushToken[abc]","platform":"ios"}`)
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, srv, "POST", "/api/v1/users/u1/push-tokens", `{"token":"garbage"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}
