package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// MaxBatchSize is the largest number of operations a single batch may commit.
const MaxBatchSize = 500

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrAlreadyExists is returned by Create when the document is already present.
	ErrAlreadyExists = errors.New("document already exists")

	// ErrBatchTooLarge is returned by Commit when more than MaxBatchSize operations are staged.
	ErrBatchTooLarge = fmt.Errorf("batch exceeds %d operations", MaxBatchSize)
)

// Ref addresses a document by collection and ID.
type Ref struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// NewRef builds a Ref.
func NewRef(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

func (r Ref) String() string { return r.Collection + "/" + r.ID }

// Document is a stored document body with its address.
type Document struct {
	Ref  Ref
	Data map[string]any
}

// Store defines the document persistence layer shared by every service.
type Store interface {
	// Get retrieves a single document. Returns ErrNotFound if absent.
	Get(ctx context.Context, ref Ref) (*Document, error)

	// Create writes a document only if absent. Returns ErrAlreadyExists otherwise.
	Create(ctx context.Context, ref Ref, data map[string]any) error

	// Set creates or replaces a document.
	Set(ctx context.Context, ref Ref, data map[string]any) error

	// Update merges fields into an existing document. Returns ErrNotFound if absent.
	Update(ctx context.Context, ref Ref, fields map[string]any) error

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, ref Ref) error

	// Find returns documents matching the query ordered by ID. With a limit
	// it returns the first Limit matches by ID.
	Find(ctx context.Context, q Query) ([]Document, error)

	// Count returns the number of documents matching the query.
	Count(ctx context.Context, q Query) (int64, error)

	// NewBatch starts an empty atomic write batch.
	NewBatch() Batch

	// Close releases resources.
	Close() error
}

// Batch stages writes that are committed atomically.
type Batch interface {
	Set(ref Ref, data map[string]any)
	Update(ref Ref, fields map[string]any)
	Delete(ref Ref)

	// Len returns the number of staged operations.
	Len() int

	// Commit applies every staged operation or none of them.
	Commit(ctx context.Context) error
}

// NewID returns a fresh random document ID.
func NewID() string {
	return uuid.New().String()
}

type opKind int

const (
	opSet opKind = iota
	opUpdate
	opDelete
)

// stagedOp is a batch entry shared by the backend batch implementations.
type stagedOp struct {
	kind opKind
	ref  Ref
	data map[string]any
}

type stagedOps []stagedOp

func (s *stagedOps) Set(ref Ref, data map[string]any) {
	*s = append(*s, stagedOp{kind: opSet, ref: ref, data: data})
}

func (s *stagedOps) Update(ref Ref, fields map[string]any) {
	*s = append(*s, stagedOp{kind: opUpdate, ref: ref, data: fields})
}

func (s *stagedOps) Delete(ref Ref) {
	*s = append(*s, stagedOp{kind: opDelete, ref: ref})
}

func (s *stagedOps) Len() int { return len(*s) }

func (s *stagedOps) check() error {
	if len(*s) > MaxBatchSize {
		return ErrBatchTooLarge
	}
	return nil
}
