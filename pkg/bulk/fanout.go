package bulk

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Unit is the work done for one recipient.
type Unit func(ctx context.Context, recipient string) error

// Outcome records how one recipient's unit of work ended.
type Outcome struct {
	Recipient string `json:"recipient"`
	Err       error  `json:"-"`
}

// OK reports whether the unit of work succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Report lists the outcome of every recipient in input order.
type Report struct {
	Outcomes []Outcome `json:"outcomes"`
}

// Succeeded returns the number of recipients whose unit succeeded.
func (r Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failures returns the outcomes that carry an error.
func (r Report) Failures() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			failed = append(failed, o)
		}
	}
	return failed
}

type fanOutConfig struct {
	concurrency int
}

// FanOutOption configures FanOut.
type FanOutOption func(*fanOutConfig)

// WithConcurrency runs up to n units at once. The default is one at a time.
func WithConcurrency(n int) FanOutOption {
	return func(c *fanOutConfig) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// FanOut runs unit for every recipient. A failing or panicking unit is
// logged and recorded in the report; it never stops the other recipients.
func FanOut(ctx context.Context, recipients []string, unit Unit, logger *slog.Logger, opts ...FanOutOption) Report {
	cfg := fanOutConfig{concurrency: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}

	outcomes := make([]Outcome, len(recipients))
	if cfg.concurrency == 1 {
		for i, r := range recipients {
			outcomes[i] = runIsolated(ctx, r, unit, logger)
		}
		return Report{Outcomes: outcomes}
	}

	var g errgroup.Group
	g.SetLimit(cfg.concurrency)
	for i, r := range recipients {
		g.Go(func() error {
			outcomes[i] = runIsolated(ctx, r, unit, logger)
			return nil
		})
	}
	_ = g.Wait()
	return Report{Outcomes: outcomes}
}

func runIsolated(ctx context.Context, recipient string, unit Unit, logger *slog.Logger) (out Outcome) {
	out.Recipient = recipient
	defer func() {
		if p := recover(); p != nil {
			out.Err = fmt.Errorf("recipient %s: panic: %v", recipient, p)
			logger.Error("fan-out unit panicked", "recipient", recipient, "panic", p)
		}
	}()
	if err := unit(ctx, recipient); err != nil {
		out.Err = err
		logger.Warn("fan-out unit failed", "recipient", recipient, "error", err)
	}
	return out
}
