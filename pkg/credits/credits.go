// Package credits tracks per-user AI credit balances and AI usage cost.
package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/basket-guardian/pkg/docstore"
	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
	"github.com/ogulcanaydogan/basket-guardian/pkg/providers"
)

// ErrInsufficientCredits is returned by Consume when the balance is too low.
var ErrInsufficientCredits = errors.New("insufficient AI credits")

// Transaction reasons recorded on credit changes.
const (
	ReasonSignupGrant = "signup_grant"
	ReasonAdminGrant  = "admin_grant"
	ReasonReceiptScan = "receipt_scan"
	ReasonRefund      = "refund"
)

// Usage is the token usage of a single AI call.
type Usage struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	InputTokens  int64  `json:"inputTokens"`
	OutputTokens int64  `json:"outputTokens"`
	Estimated    bool   `json:"estimated,omitempty"`
}

// Ledger applies credit changes and records an audit transaction for each.
type Ledger struct {
	store   docstore.Store
	pricing *providers.Registry
	logger  *slog.Logger
	now     func() time.Time
}

// NewLedger creates a credit ledger. A nil pricing registry records usage at zero cost.
func NewLedger(store docstore.Store, pricing *providers.Registry, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, pricing: pricing, logger: logger, now: time.Now}
}

// Balance returns the user's current credit balance.
func (l *Ledger) Balance(ctx context.Context, uid string) (int64, error) {
	user, err := l.user(ctx, uid)
	if err != nil {
		return 0, err
	}
	return user.AICredits, nil
}

// Grant adds n credits.
func (l *Ledger) Grant(ctx context.Context, uid string, n int64, reason string) error {
	if n <= 0 {
		return fmt.Errorf("grant: amount must be positive: %w", model.ErrInvalidInput)
	}
	return l.apply(ctx, uid, n, reason)
}

// SignupTransactionID is the fixed ID of a user's signup grant transaction.
func SignupTransactionID(uid string) string { return "signup_" + uid }

// RecordSignupGrant writes the audit transaction for credits that were set
// on the user document at creation. The balance is not touched and a
// transaction that already exists is left as is, so a redelivered signup
// event can call it again.
func (l *Ledger) RecordSignupGrant(ctx context.Context, uid string, n int64) error {
	if uid == "" {
		return fmt.Errorf("credits: missing user id: %w", model.ErrInvalidInput)
	}
	tx := model.CreditTransaction{UserID: uid, Amount: n, Reason: ReasonSignupGrant, CreatedAt: l.now().UTC()}
	err := l.store.Create(ctx, docstore.NewRef(model.CollectionCreditTransactions, SignupTransactionID(uid)), tx.Fields())
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("record signup grant for %s: %w", uid, err)
	}
	l.logger.Info("signup credits recorded", "user_id", uid, "credits", n)
	return nil
}

// Consume removes n credits, failing with ErrInsufficientCredits when the
// balance is lower than n. The balance check and the decrement are separate
// operations; concurrent consumers can overdraw by at most one call each.
func (l *Ledger) Consume(ctx context.Context, uid string, n int64, reason string) error {
	if n <= 0 {
		return fmt.Errorf("consume: amount must be positive: %w", model.ErrInvalidInput)
	}
	balance, err := l.Balance(ctx, uid)
	if err != nil {
		return err
	}
	if balance < n {
		return fmt.Errorf("user %s has %d credits, needs %d: %w", uid, balance, n, ErrInsufficientCredits)
	}
	return l.apply(ctx, uid, -n, reason)
}

// Refund returns n previously consumed credits.
func (l *Ledger) Refund(ctx context.Context, uid string, n int64) error {
	if n <= 0 {
		return fmt.Errorf("refund: amount must be positive: %w", model.ErrInvalidInput)
	}
	return l.apply(ctx, uid, n, ReasonRefund)
}

// Transactions returns the user's credit history ordered by ID.
func (l *Ledger) Transactions(ctx context.Context, uid string) ([]model.CreditTransaction, error) {
	docs, err := l.store.Find(ctx, docstore.From(model.CollectionCreditTransactions).
		Where("userId", docstore.OpEqual, uid))
	if err != nil {
		return nil, fmt.Errorf("list credit transactions: %w", err)
	}
	out := make([]model.CreditTransaction, 0, len(docs))
	for _, d := range docs {
		var tx model.CreditTransaction
		if err := d.DataTo(&tx); err != nil {
			return nil, err
		}
		tx.ID = d.Ref.ID
		out = append(out, tx)
	}
	return out, nil
}

// RecordUsage stores an AI usage record with its USD cost.
func (l *Ledger) RecordUsage(ctx context.Context, uid string, u Usage) (*model.AIUsage, error) {
	rec := &model.AIUsage{
		ID:           docstore.NewID(),
		UserID:       uid,
		Provider:     u.Provider,
		Model:        u.Model,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		CreatedAt:    l.now().UTC(),
	}
	if l.pricing != nil {
		cost, err := l.pricing.Cost(u.Provider, u.Model, u.InputTokens, u.OutputTokens)
		if err != nil {
			l.logger.Warn("no pricing for ai usage", "provider", u.Provider, "model", u.Model, "error", err)
		} else {
			rec.CostUSD = cost.Round(6).InexactFloat64()
		}
	}
	if err := l.store.Create(ctx, docstore.NewRef(model.CollectionAIUsage, rec.ID), rec.Fields()); err != nil {
		return nil, fmt.Errorf("record ai usage: %w", err)
	}
	return rec, nil
}

// apply increments the balance and writes the audit transaction in one batch.
func (l *Ledger) apply(ctx context.Context, uid string, delta int64, reason string) error {
	if uid == "" {
		return fmt.Errorf("credits: missing user id: %w", model.ErrInvalidInput)
	}
	tx := model.CreditTransaction{UserID: uid, Amount: delta, Reason: reason, CreatedAt: l.now().UTC()}

	batch := l.store.NewBatch()
	batch.Update(docstore.NewRef(model.CollectionUsers, uid), map[string]any{"aiCredits": docstore.Increment(delta)})
	batch.Set(docstore.NewRef(model.CollectionCreditTransactions, docstore.NewID()), tx.Fields())
	if err := batch.Commit(ctx); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("user %s: %w", uid, model.ErrNotFound)
		}
		return fmt.Errorf("apply %d credits to %s: %w", delta, uid, err)
	}
	l.logger.Info("credits changed", "user_id", uid, "delta", delta, "reason", reason)
	return nil
}

func (l *Ledger) user(ctx context.Context, uid string) (*model.User, error) {
	if uid == "" {
		return nil, fmt.Errorf("credits: missing user id: %w", model.ErrInvalidInput)
	}
	doc, err := l.store.Get(ctx, docstore.NewRef(model.CollectionUsers, uid))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("user %s: %w", uid, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", uid, err)
	}
	var u model.User
	if err := doc.DataTo(&u); err != nil {
		return nil, err
	}
	u.ID = uid
	return &u, nil
}
