// Package triggers routes upstream data-change events to the services that
// react to them.
package triggers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ogulcanaydogan/basket-guardian/pkg/budget"
	"github.com/ogulcanaydogan/basket-guardian/pkg/bulk"
	"github.com/ogulcanaydogan/basket-guardian/pkg/lists"
	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
	"github.com/ogulcanaydogan/basket-guardian/pkg/users"
)

// Event types.
const (
	TypeSpendingCreated = "spending.created"
	TypeItemCreated     = "item.created"
	TypeUserCreated     = "user.created"
	TypeUserDeleted     = "user.deleted"
)

// ErrMalformedEvent is returned by ParseEvent for bodies that are not an event envelope.
var ErrMalformedEvent = errors.New("malformed event")

// Event is the envelope every trigger source delivers.
type Event struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ParseEvent decodes an event envelope.
func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	return ev, nil
}

// SpendingHandler reacts to new spending records.
type SpendingHandler interface {
	HandleSpending(ctx context.Context, ev budget.SpendingEvent) (budget.Decision, error)
}

// ItemHandler reacts to new grocery items.
type ItemHandler interface {
	NotifyItemAdded(ctx context.Context, ev lists.ItemAdded) (bulk.Report, error)
}

// UserHandler reacts to account lifecycle events.
type UserHandler interface {
	OnCreated(ctx context.Context, id model.Identity) (bool, error)
	OnDeleted(ctx context.Context, uid string) (*users.DeletionReport, error)
}

// Dispatcher decodes event payloads and calls the matching handler.
type Dispatcher struct {
	spending SpendingHandler
	items    ItemHandler
	users    UserHandler
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. A nil handler disables its event types.
func NewDispatcher(spending SpendingHandler, items ItemHandler, usersH UserHandler, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{spending: spending, items: items, users: usersH, logger: logger}
}

// Dispatch handles one event. Malformed payloads, invalid input and missing
// referenced documents are logged and dropped. Other failures are returned
// so the delivering infrastructure can retry.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	log := d.logger.With("event_type", ev.Type, "event_id", ev.ID)

	var err error
	switch ev.Type {
	case TypeSpendingCreated:
		err = d.spendingCreated(ctx, ev.Data, log)
	case TypeItemCreated:
		err = d.itemCreated(ctx, ev.Data, log)
	case TypeUserCreated:
		err = d.userCreated(ctx, ev.Data, log)
	case TypeUserDeleted:
		err = d.userDeleted(ctx, ev.Data, log)
	default:
		log.Warn("unknown event type")
		return nil
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrMalformedEvent), errors.Is(err, model.ErrInvalidInput):
		log.Warn("dropping invalid event", "error", err)
		return nil
	case errors.Is(err, model.ErrNotFound):
		log.Info("event references missing document", "error", err)
		return nil
	}
	log.Error("event handler failed", "error", err)
	return err
}

func decode(data json.RawMessage, dst any) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: empty payload", ErrMalformedEvent)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

func (d *Dispatcher) spendingCreated(ctx context.Context, data json.RawMessage, log *slog.Logger) error {
	if d.spending == nil {
		log.Debug("no spending handler")
		return nil
	}
	var ev budget.SpendingEvent
	if err := decode(data, &ev); err != nil {
		return err
	}
	dec, err := d.spending.HandleSpending(ctx, ev)
	if err != nil {
		return err
	}
	log.Info("spending evaluated", "user_id", dec.UserID, "outcome", dec.Outcome)
	return nil
}

func (d *Dispatcher) itemCreated(ctx context.Context, data json.RawMessage, log *slog.Logger) error {
	if d.items == nil {
		log.Debug("no item handler")
		return nil
	}
	var ev lists.ItemAdded
	if err := decode(data, &ev); err != nil {
		return err
	}
	report, err := d.items.NotifyItemAdded(ctx, ev)
	if err != nil {
		return err
	}
	log.Info("item fan-out done", "list_id", ev.ListID, "recipients", len(report.Outcomes), "failed", len(report.Failures()))
	return nil
}

func (d *Dispatcher) userCreated(ctx context.Context, data json.RawMessage, log *slog.Logger) error {
	if d.users == nil {
		log.Debug("no user handler")
		return nil
	}
	var id model.Identity
	if err := decode(data, &id); err != nil {
		return err
	}
	_, err := d.users.OnCreated(ctx, id)
	return err
}

func (d *Dispatcher) userDeleted(ctx context.Context, data json.RawMessage, log *slog.Logger) error {
	if d.users == nil {
		log.Debug("no user handler")
		return nil
	}
	var id model.Identity
	if err := decode(data, &id); err != nil {
		return err
	}
	_, err := d.users.OnDeleted(ctx, id.UID)
	return err
}
