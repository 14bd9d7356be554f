// Package budget watches month-to-date spending and sends at most one budget
// alert per user per calendar month.
package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ogulcanaydogan/basket-guardian/pkg/bulk"
	"github.com/ogulcanaydogan/basket-guardian/pkg/docstore"
	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
	"github.com/ogulcanaydogan/basket-guardian/pkg/notify"
)

// DefaultThresholdPct is the share of the monthly budget that triggers an alert.
const DefaultThresholdPct = 50.0

// EventBudgetAlert is the webhook event published after an alert is recorded.
const EventBudgetAlert = "budget.alert"

// Config tunes the alert decision.
type Config struct {
	// ThresholdPct is the spend percentage at or above which an alert is sent.
	ThresholdPct float64
	// RequireOptIn also requires the user's alertsEnabled flag.
	RequireOptIn bool
	// Location is the calendar used for month boundaries. Defaults to time.Local.
	Location *time.Location
}

// SpendingEvent is the trigger payload for a newly created spending record.
type SpendingEvent struct {
	RecordID    string  `json:"recordId" mapstructure:"recordId"`
	UserID      string  `json:"userId" mapstructure:"userId"`
	TotalAmount float64 `json:"totalAmount" mapstructure:"totalAmount"`
}

// Outcome names the branch an evaluation ended in.
type Outcome string

const (
	OutcomeInvalidEvent   Outcome = "invalid_event"
	OutcomeUserNotFound   Outcome = "user_not_found"
	OutcomeNoBudget       Outcome = "no_budget"
	OutcomeOptedOut       Outcome = "alerts_disabled"
	OutcomeBelowThreshold Outcome = "below_threshold"
	OutcomeAlreadyAlerted Outcome = "already_alerted"
	OutcomeNoEmail        Outcome = "no_email"
	OutcomeAlerted        Outcome = "alerted"
	OutcomeConcurrent     Outcome = "concurrent_alert"
)

// Decision is the result of one evaluation.
type Decision struct {
	Outcome         Outcome `json:"outcome"`
	UserID          string  `json:"userId,omitempty"`
	Key             string  `json:"key,omitempty"`
	MonthlyBudget   float64 `json:"monthlyBudget,omitempty"`
	TotalSpent      float64 `json:"totalSpent,omitempty"`
	PercentageSpent float64 `json:"percentageSpent,omitempty"`
}

// Directory resolves a user's email address.
type Directory interface {
	LookupByID(ctx context.Context, uid string) (*model.Identity, error)
}

// Publisher receives an event after each recorded alert.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) error
}

// Monitor decides whether a user has crossed the monthly spend threshold
// and, if so, emails them once for that month.
type Monitor struct {
	store     docstore.Store
	dir       Directory
	mailer    notify.Mailer
	publisher Publisher
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithPublisher publishes every recorded alert. Publish failures are logged.
func WithPublisher(p Publisher) Option {
	return func(m *Monitor) { m.publisher = p }
}

// NewMonitor creates a budget monitor.
func NewMonitor(store docstore.Store, dir Directory, mailer notify.Mailer, cfg Config, logger *slog.Logger, opts ...Option) *Monitor {
	if cfg.ThresholdPct <= 0 {
		cfg.ThresholdPct = DefaultThresholdPct
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		store:  store,
		dir:    dir,
		mailer: mailer,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// HandleSpending evaluates the owner of a newly created spending record.
// Malformed events and unknown users are logged and skipped. Store, directory
// and email failures are returned so the trigger can be retried.
func (m *Monitor) HandleSpending(ctx context.Context, ev SpendingEvent) (Decision, error) {
	if ev.UserID == "" {
		m.logger.Warn("spending event without user id", "record_id", ev.RecordID)
		return Decision{Outcome: OutcomeInvalidEvent}, nil
	}
	d, err := m.evaluate(ctx, ev.UserID)
	if err != nil {
		return d, err
	}
	if d.Outcome == OutcomeUserNotFound {
		m.logger.Warn("spending event for unknown user", "user_id", ev.UserID, "record_id", ev.RecordID)
	}
	return d, nil
}

// CheckUser evaluates a user on demand without a new spending record.
func (m *Monitor) CheckUser(ctx context.Context, userID string) (Decision, error) {
	if userID == "" {
		return Decision{Outcome: OutcomeInvalidEvent}, fmt.Errorf("budget check: missing user id: %w", model.ErrInvalidInput)
	}
	d, err := m.evaluate(ctx, userID)
	if err != nil {
		return d, err
	}
	if d.Outcome == OutcomeUserNotFound {
		return d, fmt.Errorf("user %s: %w", userID, model.ErrNotFound)
	}
	return d, nil
}

// Sweep evaluates every user with a budget. One user's failure does not stop
// the others; failures are reported per user.
func (m *Monitor) Sweep(ctx context.Context) (bulk.Report, error) {
	docs, err := m.store.Find(ctx, docstore.From(model.CollectionUsers).
		Where("monthlyBudget", docstore.OpGreater, 0))
	if err != nil {
		return bulk.Report{}, fmt.Errorf("list budgeted users: %w", err)
	}
	uids := make([]string, len(docs))
	for i, d := range docs {
		uids[i] = d.Ref.ID
	}

	report := bulk.FanOut(ctx, uids, func(ctx context.Context, uid string) error {
		_, err := m.evaluate(ctx, uid)
		return err
	}, m.logger)

	m.logger.Info("budget sweep finished", "users", len(uids), "failed", len(report.Failures()))
	return report, nil
}

func (m *Monitor) evaluate(ctx context.Context, uid string) (Decision, error) {
	d := Decision{UserID: uid}

	doc, err := m.store.Get(ctx, docstore.NewRef(model.CollectionUsers, uid))
	if errors.Is(err, docstore.ErrNotFound) {
		d.Outcome = OutcomeUserNotFound
		return d, nil
	}
	if err != nil {
		return d, fmt.Errorf("get user %s: %w", uid, err)
	}
	var user model.User
	if err := doc.DataTo(&user); err != nil {
		return d, err
	}

	if !user.HasBudget() {
		d.Outcome = OutcomeNoBudget
		return d, nil
	}
	if m.cfg.RequireOptIn && !user.AlertsEnabled {
		d.Outcome = OutcomeOptedOut
		return d, nil
	}

	now := m.now().In(m.cfg.Location)
	start, end := model.MonthWindow(now)
	spent, err := m.monthToDate(ctx, uid, start, end)
	if err != nil {
		return d, err
	}

	budget := decimal.NewFromFloat(user.MonthlyBudget)
	pct := spent.Div(budget).Mul(decimal.NewFromInt(100))
	d.MonthlyBudget = user.MonthlyBudget
	d.TotalSpent = spent.Round(2).InexactFloat64()
	d.PercentageSpent = pct.Round(2).InexactFloat64()

	if pct.LessThan(decimal.NewFromFloat(m.cfg.ThresholdPct)) {
		d.Outcome = OutcomeBelowThreshold
		return d, nil
	}

	d.Key = model.AlertKey(uid, now)
	alertRef := docstore.NewRef(model.CollectionBudgetAlerts, d.Key)
	_, err = m.store.Get(ctx, alertRef)
	switch {
	case err == nil:
		d.Outcome = OutcomeAlreadyAlerted
		return d, nil
	case !errors.Is(err, docstore.ErrNotFound):
		return d, fmt.Errorf("get alert %s: %w", d.Key, err)
	}

	identity, err := m.dir.LookupByID(ctx, uid)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return d, fmt.Errorf("lookup email for %s: %w", uid, err)
	}
	if identity == nil || identity.Email == "" {
		m.logger.Warn("budget alert skipped: no email", "user_id", uid)
		d.Outcome = OutcomeNoEmail
		return d, nil
	}

	subject, html, err := notify.RenderBudgetAlert(notify.BudgetAlertEmail{
		Name:       identity.DisplayName,
		Month:      now,
		Budget:     d.MonthlyBudget,
		Spent:      d.TotalSpent,
		Percentage: d.PercentageSpent,
	})
	if err != nil {
		return d, err
	}
	deliveryID, err := m.mailer.Send(ctx, identity.Email, subject, html)
	if err != nil {
		return d, fmt.Errorf("send budget alert to %s: %w", uid, err)
	}

	record := model.AlertRecord{
		Key:             d.Key,
		UserID:          uid,
		Year:            now.Year(),
		Month:           int(now.Month()),
		MonthlyBudget:   d.MonthlyBudget,
		AmountSpent:     d.TotalSpent,
		PercentageSpent: d.PercentageSpent,
		SentAt:          m.now().UTC(),
	}
	err = m.store.Create(ctx, alertRef, record.Fields())
	if errors.Is(err, docstore.ErrAlreadyExists) {
		m.logger.Warn("budget alert recorded concurrently", "user_id", uid, "key", d.Key, "delivery_id", deliveryID)
		d.Outcome = OutcomeConcurrent
		return d, nil
	}
	if err != nil {
		return d, fmt.Errorf("record alert %s: %w", d.Key, err)
	}

	d.Outcome = OutcomeAlerted
	m.logger.Info("budget alert sent",
		"user_id", uid,
		"key", d.Key,
		"pct", d.PercentageSpent,
		"spent", d.TotalSpent,
		"budget", d.MonthlyBudget,
		"delivery_id", deliveryID,
	)

	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, EventBudgetAlert, record); err != nil {
			m.logger.Error("publish budget alert", "user_id", uid, "error", err)
		}
	}
	return d, nil
}

// monthToDate sums the user's spending records dated within [start, end].
func (m *Monitor) monthToDate(ctx context.Context, uid string, start, end time.Time) (decimal.Decimal, error) {
	docs, err := m.store.Find(ctx, docstore.From(model.CollectionHistory).
		Where("userId", docstore.OpEqual, uid).
		Where("date", docstore.OpGreaterEqual, start).
		Where("date", docstore.OpLessEqual, end))
	if err != nil {
		return decimal.Zero, fmt.Errorf("query spending for %s: %w", uid, err)
	}
	total := decimal.Zero
	for _, doc := range docs {
		total = total.Add(Amount(doc.Data["totalAmount"]))
	}
	return total, nil
}

// Amount converts a stored totalAmount into a decimal. Missing, malformed and
// negative values count as zero.
func Amount(v any) decimal.Decimal {
	var d decimal.Decimal
	switch x := v.(type) {
	case float64:
		d = decimal.NewFromFloat(x)
	case float32:
		d = decimal.NewFromFloat32(x)
	case int64:
		d = decimal.NewFromInt(x)
	case int32:
		d = decimal.NewFromInt32(x)
	case int:
		d = decimal.NewFromInt(int64(x))
	case string:
		parsed, err := decimal.NewFromString(x)
		if err != nil {
			return decimal.Zero
		}
		d = parsed
	default:
		return decimal.Zero
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
