package docstore

import (
	"context"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore implements Store on Google Cloud Firestore.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore creates a Firestore client for the given project.
func NewFirestore(ctx context.Context, projectID string) (*Firestore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return &Firestore{client: client}, nil
}

func (f *Firestore) doc(ref Ref) *firestore.DocumentRef {
	return f.client.Collection(ref.Collection).Doc(ref.ID)
}

func (f *Firestore) Get(ctx context.Context, ref Ref) (*Document, error) {
	snap, err := f.doc(ref).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ref, mapFirestoreErr(err))
	}
	return &Document{Ref: ref, Data: snap.Data()}, nil
}

func (f *Firestore) Create(ctx context.Context, ref Ref, data map[string]any) error {
	if _, err := f.doc(ref).Create(ctx, firestoreData(data)); err != nil {
		return fmt.Errorf("create %s: %w", ref, mapFirestoreErr(err))
	}
	return nil
}

func (f *Firestore) Set(ctx context.Context, ref Ref, data map[string]any) error {
	if _, err := f.doc(ref).Set(ctx, firestoreData(data)); err != nil {
		return fmt.Errorf("set %s: %w", ref, mapFirestoreErr(err))
	}
	return nil
}

func (f *Firestore) Update(ctx context.Context, ref Ref, fields map[string]any) error {
	if _, err := f.doc(ref).Update(ctx, firestoreUpdates(fields)); err != nil {
		return fmt.Errorf("update %s: %w", ref, mapFirestoreErr(err))
	}
	return nil
}

func (f *Firestore) Delete(ctx context.Context, ref Ref) error {
	if _, err := f.doc(ref).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", ref, mapFirestoreErr(err))
	}
	return nil
}

// Find runs the query and orders the results by document ID in memory.
// A limited query without range filters is ordered by ID and limited on the
// server. Firestore orders range queries by the filtered field first, so a
// limited range query is fetched whole and cut after the ID sort.
func (f *Firestore) Find(ctx context.Context, q Query) ([]Document, error) {
	orderByID, serverLimit := limitPlan(q)
	fq, err := f.query(q, serverLimit)
	if err != nil {
		return nil, err
	}
	if orderByID {
		fq = fq.OrderBy(firestore.DocumentID, firestore.Asc)
	}
	snaps, err := fq.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Collection, mapFirestoreErr(err))
	}
	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, Document{Ref: NewRef(q.Collection, snap.Ref.ID), Data: snap.Data()})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Ref.ID < docs[j].Ref.ID })
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

// limitPlan reports whether a query can be ordered by document ID on the
// server and the limit to send with it. Zero means no server-side limit.
func limitPlan(q Query) (orderByID bool, serverLimit int) {
	if q.Limit <= 0 {
		return false, 0
	}
	for _, filter := range q.Filters {
		switch filter.Op {
		case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
			return false, 0
		}
	}
	return true, q.Limit
}

func (f *Firestore) Count(ctx context.Context, q Query) (int64, error) {
	fq, err := f.query(q, q.Limit)
	if err != nil {
		return 0, err
	}
	res, err := fq.NewAggregationQuery().WithCount("count").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Collection, mapFirestoreErr(err))
	}
	v, ok := res["count"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("count %s: unexpected aggregation result %T", q.Collection, res["count"])
	}
	return v.GetIntegerValue(), nil
}

func (f *Firestore) NewBatch() Batch {
	return &firestoreBatch{store: f}
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) query(q Query, limit int) (firestore.Query, error) {
	if err := q.validate(); err != nil {
		return firestore.Query{}, err
	}
	fq := f.client.Collection(q.Collection).Query
	for _, filter := range q.Filters {
		fq = fq.Where(filter.Field, string(filter.Op), filter.Value)
	}
	if limit > 0 {
		fq = fq.Limit(limit)
	}
	return fq, nil
}

type firestoreBatch struct {
	stagedOps
	store *Firestore
}

func (b *firestoreBatch) Commit(ctx context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	if b.Len() == 0 {
		return nil
	}
	wb := b.store.client.Batch()
	for _, op := range b.stagedOps {
		ref := b.store.doc(op.ref)
		switch op.kind {
		case opSet:
			wb.Set(ref, firestoreData(op.data))
		case opUpdate:
			wb.Update(ref, firestoreUpdates(op.data))
		case opDelete:
			wb.Delete(ref)
		}
	}
	if _, err := wb.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", mapFirestoreErr(err))
	}
	return nil
}

func firestoreValue(v any) any {
	t, ok := v.(Transform)
	if !ok {
		return v
	}
	switch t.kind {
	case transformIncrement:
		return firestore.Increment(t.delta)
	case transformArrayUnion:
		return firestore.ArrayUnion(t.values...)
	case transformArrayRemove:
		return firestore.ArrayRemove(t.values...)
	}
	return v
}

func firestoreData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = firestoreValue(v)
	}
	return out
}

func firestoreUpdates(fields map[string]any) []firestore.Update {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{Path: k, Value: firestoreValue(v)})
	}
	return updates
}

func mapFirestoreErr(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return ErrNotFound
	case codes.AlreadyExists:
		return ErrAlreadyExists
	}
	return err
}
