package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/basket-guardian/internal/triggers"
)

type fakeDispatcher struct {
	seen []string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, ev triggers.Event) error {
	f.seen = append(f.seen, ev.ID)
	if ev.Type == triggers.TypeUserDeleted {
		return errors.New("store unavailable")
	}
	return nil
}

func TestHandle_ReportsOnlyFailedRecords(t *testing.T) {
	d := &fakeDispatcher{}
	h := &handler{dispatch: d, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: `{"type":"user.created","data":{"uid":"u1"}}`},
		{MessageId: "m2", Body: `not json`},
		{MessageId: "m3", Body: `{"type":"user.deleted","data":{"uid":"u1"}}`},
		{MessageId: "m4", Body: `{"id":"e4","type":"spending.created","data":{"userId":"u1"}}`},
	}})
	require.NoError(t, err)

	assert.Equal(t, []string{"m1", "m3", "e4"}, d.seen)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m3", resp.BatchItemFailures[0].ItemIdentifier)
}
