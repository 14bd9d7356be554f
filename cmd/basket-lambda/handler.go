package main

import (
	"context"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/ogulcanaydogan/basket-guardian/internal/triggers"
)

type dispatcher interface {
	Dispatch(ctx context.Context, ev triggers.Event) error
}

// handler processes an SQS batch of trigger events. Records whose dispatch
// fails are reported back so only they are redelivered; malformed records
// are dropped.
type handler struct {
	dispatch dispatcher
	logger   *slog.Logger
}

func (h *handler) Handle(ctx context.Context, batch events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range batch.Records {
		ev, err := triggers.ParseEvent([]byte(rec.Body))
		if err != nil {
			h.logger.Error("malformed record", "message_id", rec.MessageId, "error", err)
			continue
		}
		if ev.ID == "" {
			ev.ID = rec.MessageId
		}
		if err := h.dispatch.Dispatch(ctx, ev); err != nil {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}
