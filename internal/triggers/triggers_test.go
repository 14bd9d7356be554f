package triggers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/basket-guardian/internal/triggers"
	"github.com/ogulcanaydogan/basket-guardian/pkg/budget"
	"github.com/ogulcanaydogan/basket-guardian/pkg/bulk"
	"github.com/ogulcanaydogan/basket-guardian/pkg/lists"
	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
	"github.com/ogulcanaydogan/basket-guardian/pkg/users"
)

type fakeHandlers struct {
	spending []budget.SpendingEvent
	items    []lists.ItemAdded
	created  []model.Identity
	deleted  []string
	err      error
}

func (f *fakeHandlers) HandleSpending(_ context.Context, ev budget.SpendingEvent) (budget.Decision, error) {
	f.spending = append(f.spending, ev)
	return budget.Decision{Outcome: budget.OutcomeBelowThreshold, UserID: ev.UserID}, f.err
}

func (f *fakeHandlers) NotifyItemAdded(_ context.Context, ev lists.ItemAdded) (bulk.Report, error) {
	f.items = append(f.items, ev)
	return bulk.Report{}, f.err
}

func (f *fakeHandlers) OnCreated(_ context.Context, id model.Identity) (bool, error) {
	f.created = append(f.created, id)
	return true, f.err
}

func (f *fakeHandlers) OnDeleted(_ context.Context, uid string) (*users.DeletionReport, error) {
	f.deleted = append(f.deleted, uid)
	return &users.DeletionReport{UserID: uid}, f.err
}

func newDispatcher(f *fakeHandlers) *triggers.Dispatcher {
	return triggers.NewDispatcher(f, f, f, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func event(t *testing.T, typ string, data any) triggers.Event {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return triggers.Event{Type: typ, Data: raw}
}

func TestDispatch_Routes(t *testing.T) {
	f := &fakeHandlers{}
	d := newDispatcher(f)
	ctx := context.Background()

	require.NoError(t, d.Dispatch(ctx, event(t, triggers.TypeSpendingCreated, map[string]any{"recordId": "r1", "userId": "u1", "totalAmount": 12.5})))
	require.NoError(t, d.Dispatch(ctx, event(t, triggers.TypeItemCreated, map[string]any{"itemId": "i1", "listId": "l1", "addedBy": "u1"})))
	require.NoError(t, d.Dispatch(ctx, event(t, triggers.TypeUserCreated, map[string]any{"uid": "u2", "email": "b@example.com"})))
	require.NoError(t, d.Dispatch(ctx, event(t, triggers.TypeUserDeleted, map[string]any{"uid": "u3"})))

	assert.Equal(t, []budget.SpendingEvent{{RecordID: "r1", UserID: "u1", TotalAmount: 12.5}}, f.spending)
	assert.Equal(t, "l1", f.items[0].ListID)
	assert.Equal(t, "b@example.com", f.created[0].Email)
	assert.Equal(t, []string{"u3"}, f.deleted)
}

func TestDispatch_DropsBadEvents(t *testing.T) {
	f := &fakeHandlers{}
	d := newDispatcher(f)
	ctx := context.Background()

	assert.NoError(t, d.Dispatch(ctx, triggers.Event{Type: triggers.TypeSpendingCreated}))
	assert.NoError(t, d.Dispatch(ctx, triggers.Event{Type: triggers.TypeItemCreated, Data: json.RawMessage(`"nope"`)}))
	assert.NoError(t, d.Dispatch(ctx, triggers.Event{Type: "list.archived", Data: json.RawMessage(`{}`)}))
	assert.Empty(t, f.spending)
	assert.Empty(t, f.items)
}

func TestDispatch_ErrorClassification(t *testing.T) {
	ctx := context.Background()
	ev := event(t, triggers.TypeUserDeleted, map[string]any{"uid": "u1"})

	for _, swallowed := range []error{model.ErrNotFound, model.ErrInvalidInput} {
		d := newDispatcher(&fakeHandlers{err: swallowed})
		assert.NoError(t, d.Dispatch(ctx, ev))
	}

	upstream := errors.New("store unavailable")
	d := newDispatcher(&fakeHandlers{err: upstream})
	assert.ErrorIs(t, d.Dispatch(ctx, ev), upstream)
}

func TestDispatch_NilHandlers(t *testing.T) {
	d := triggers.NewDispatcher(nil, nil, nil, nil)
	assert.NoError(t, d.Dispatch(context.Background(), triggers.Event{Type: triggers.TypeSpendingCreated, Data: json.RawMessage(`{"userId":"u1"}`)}))
}

func TestParseEvent(t *testing.T) {
	ev, err := triggers.ParseEvent([]byte(`{"id":"e1","type":"user.created","data":{"uid":"u1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "e1", ev.ID)
	assert.Equal(t, triggers.TypeUserCreated, ev.Type)
	assert.JSONEq(t, `{"uid":"u1"}`, string(ev.Data))

	_, err = triggers.ParseEvent([]byte(`not json`))
	assert.ErrorIs(t, err, triggers.ErrMalformedEvent)

	_, err = triggers.ParseEvent([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, triggers.ErrMalformedEvent)
}
