// Package bulk applies uniform writes to arbitrary target sets in
// size-bounded atomic batches, and fans units of work out to recipients
// with per-recipient failure isolation.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ogulcanaydogan/basket-guardian/pkg/docstore"
)

// OpKind identifies the write applied to every target of a bulk call.
type OpKind int

const (
	OpDelete OpKind = iota + 1
	OpUpdate
)

func (k OpKind) String() string {
	switch k {
	case OpDelete:
		return "delete"
	case OpUpdate:
		return "update"
	}
	return "unknown"
}

// Operation is the uniform write staged for every target.
type Operation struct {
	Kind   OpKind
	Fields map[string]any
}

// Delete removes every target.
func Delete() Operation {
	return Operation{Kind: OpDelete}
}

// Update applies the same field patch to every target.
func Update(fields map[string]any) Operation {
	return Operation{Kind: OpUpdate, Fields: fields}
}

// ErrInvalidOperation is returned for an unknown kind or an empty update patch.
var ErrInvalidOperation = errors.New("invalid bulk operation")

func (o Operation) validate() error {
	switch o.Kind {
	case OpDelete:
		return nil
	case OpUpdate:
		if len(o.Fields) == 0 {
			return fmt.Errorf("%w: update requires at least one field", ErrInvalidOperation)
		}
		return nil
	}
	return fmt.Errorf("%w: kind %d", ErrInvalidOperation, o.Kind)
}

// Result summarizes the committed part of a bulk call.
type Result struct {
	Processed  int   `json:"processed"`
	Batches    int   `json:"batches"`
	BatchSizes []int `json:"batch_sizes,omitempty"`
}

// Writer commits bulk writes in batches no larger than its limit.
type Writer struct {
	store  docstore.Store
	limit  int
	logger *slog.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithBatchLimit lowers the per-commit ceiling. Values outside
// 1..docstore.MaxBatchSize are ignored.
func WithBatchLimit(n int) Option {
	return func(w *Writer) {
		if n > 0 && n <= docstore.MaxBatchSize {
			w.limit = n
		}
	}
}

// WithLogger sets the logger used for batch progress.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWriter creates a Writer over the given store.
func NewWriter(store docstore.Store, opts ...Option) *Writer {
	w := &Writer{
		store:  store,
		limit:  docstore.MaxBatchSize,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ApplyToAll stages op for each target in order and commits whenever the
// batch reaches the limit, then commits the remainder. Batches are atomic
// individually but not as a group: on a commit error the result reports
// what was committed before it.
func (w *Writer) ApplyToAll(ctx context.Context, targets []docstore.Ref, op Operation) (Result, error) {
	if err := op.validate(); err != nil {
		return Result{}, err
	}
	return w.run(ctx, len(targets), func(b docstore.Batch, i int) {
		switch op.Kind {
		case OpDelete:
			b.Delete(targets[i])
		case OpUpdate:
			b.Update(targets[i], op.Fields)
		}
	})
}

// SetAll writes each document body with the same batching as ApplyToAll.
func (w *Writer) SetAll(ctx context.Context, docs []docstore.Document) (Result, error) {
	return w.run(ctx, len(docs), func(b docstore.Batch, i int) {
		b.Set(docs[i].Ref, docs[i].Data)
	})
}

func (w *Writer) run(ctx context.Context, n int, stage func(b docstore.Batch, i int)) (Result, error) {
	var res Result
	if n == 0 {
		return res, nil
	}

	batch := w.store.NewBatch()
	for i := 0; i < n; i++ {
		stage(batch, i)
		if batch.Len() < w.limit {
			continue
		}
		if err := w.commit(ctx, batch, &res); err != nil {
			return res, err
		}
		// Each commit gets a fresh batch; the committed one is discarded.
		batch = w.store.NewBatch()
	}
	if batch.Len() > 0 {
		if err := w.commit(ctx, batch, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (w *Writer) commit(ctx context.Context, batch docstore.Batch, res *Result) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("bulk write interrupted after %d batches: %w", res.Batches, err)
	}
	size := batch.Len()
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch %d: %w", res.Batches+1, err)
	}
	res.Batches++
	res.Processed += size
	res.BatchSizes = append(res.BatchSizes, size)
	w.logger.Debug("committed batch", "batch", res.Batches, "size", size, "processed", res.Processed)
	return nil
}
