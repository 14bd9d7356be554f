package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ogulcanaydogan/basket-guardian/pkg/docstore"
	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
)

// Summary totals a user's spending over the period containing now.
func (m *Monitor) Summary(ctx context.Context, uid string, period model.Period) (*model.SpendingSummary, error) {
	if uid == "" {
		return nil, fmt.Errorf("spending summary: missing user id: %w", model.ErrInvalidInput)
	}
	switch period {
	case "":
		period = model.PeriodMonthly
	case model.PeriodDaily, model.PeriodWeekly, model.PeriodMonthly:
	default:
		return nil, fmt.Errorf("spending summary: unknown period %q: %w", period, model.ErrInvalidInput)
	}

	doc, err := m.store.Get(ctx, docstore.NewRef(model.CollectionUsers, uid))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("user %s: %w", uid, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", uid, err)
	}
	var user model.User
	if err := doc.DataTo(&user); err != nil {
		return nil, err
	}

	start, end := model.PeriodBounds(period, m.now().In(m.cfg.Location))
	docs, err := m.store.Find(ctx, docstore.From(model.CollectionHistory).
		Where("userId", docstore.OpEqual, uid).
		Where("date", docstore.OpGreaterEqual, start).
		Where("date", docstore.OpLess, end))
	if err != nil {
		return nil, fmt.Errorf("query spending for %s: %w", uid, err)
	}
	total := decimal.Zero
	for _, d := range docs {
		total = total.Add(Amount(d.Data["totalAmount"]))
	}

	return &model.SpendingSummary{
		UserID:      uid,
		Period:      period,
		Start:       start,
		End:         end,
		TotalSpent:  total.Round(2).InexactFloat64(),
		RecordCount: int64(len(docs)),
		Budget:      user.MonthlyBudget,
	}, nil
}
