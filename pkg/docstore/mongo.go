package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo implements Store on MongoDB. Each collection maps to a Mongo
// collection and the document ID is stored in _id.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongo connects to MongoDB and verifies the connection.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return &Mongo{client: client, db: client.Database(database)}, nil
}

func (m *Mongo) coll(name string) *mongo.Collection {
	return m.db.Collection(name)
}

func (m *Mongo) Get(ctx context.Context, ref Ref) (*Document, error) {
	var raw bson.M
	err := m.coll(ref.Collection).FindOne(ctx, bson.M{"_id": ref.ID}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("get %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}
	return fromBSON(ref.Collection, raw), nil
}

func (m *Mongo) Create(ctx context.Context, ref Ref, data map[string]any) error {
	_, err := m.coll(ref.Collection).InsertOne(ctx, toBSON(ref, data))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("create %s: %w", ref, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", ref, err)
	}
	return nil
}

func (m *Mongo) Set(ctx context.Context, ref Ref, data map[string]any) error {
	return mongoSet(ctx, m.coll(ref.Collection), ref, data)
}

func (m *Mongo) Update(ctx context.Context, ref Ref, fields map[string]any) error {
	return mongoUpdate(ctx, m.coll(ref.Collection), ref, fields)
}

func (m *Mongo) Delete(ctx context.Context, ref Ref) error {
	if _, err := m.coll(ref.Collection).DeleteOne(ctx, bson.M{"_id": ref.ID}); err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	return nil
}

func (m *Mongo) Find(ctx context.Context, q Query) ([]Document, error) {
	filter, err := buildFilter(q)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := m.coll(q.Collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Collection, err)
	}
	defer cursor.Close(ctx)

	var docs []Document
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s document: %w", q.Collection, err)
		}
		docs = append(docs, *fromBSON(q.Collection, raw))
	}
	return docs, cursor.Err()
}

func (m *Mongo) Count(ctx context.Context, q Query) (int64, error) {
	filter, err := buildFilter(q)
	if err != nil {
		return 0, err
	}
	opts := options.Count()
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	n, err := m.coll(q.Collection).CountDocuments(ctx, filter, opts)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Collection, err)
	}
	return n, nil
}

func (m *Mongo) NewBatch() Batch {
	return &mongoBatch{store: m}
}

func (m *Mongo) Close() error {
	return m.client.Disconnect(context.Background())
}

type mongoBatch struct {
	stagedOps
	store *Mongo
}

// Commit runs the staged writes in a session transaction. MongoDB only
// supports transactions on replica sets and sharded clusters.
func (b *mongoBatch) Commit(ctx context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	if b.Len() == 0 {
		return nil
	}

	session, err := b.store.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		for _, op := range b.stagedOps {
			coll := b.store.coll(op.ref.Collection)
			var err error
			switch op.kind {
			case opSet:
				err = mongoSet(sc, coll, op.ref, op.data)
			case opUpdate:
				err = mongoUpdate(sc, coll, op.ref, op.data)
			case opDelete:
				_, err = coll.DeleteOne(sc, bson.M{"_id": op.ref.ID})
			}
			if err != nil {
				return nil, fmt.Errorf("batch %s: %w", op.ref, err)
			}
		}
		return nil, nil
	})
	return err
}

func mongoSet(ctx context.Context, coll *mongo.Collection, ref Ref, data map[string]any) error {
	resolved := make(map[string]any, len(data))
	for k, v := range data {
		if t, ok := v.(Transform); ok {
			resolved[k] = t.apply(nil)
			continue
		}
		resolved[k] = v
	}
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": ref.ID}, toBSON(ref, resolved),
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set %s: %w", ref, err)
	}
	return nil
}

func mongoUpdate(ctx context.Context, coll *mongo.Collection, ref Ref, fields map[string]any) error {
	res, err := coll.UpdateOne(ctx, bson.M{"_id": ref.ID}, buildUpdate(fields))
	if err != nil {
		return fmt.Errorf("update %s: %w", ref, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update %s: %w", ref, ErrNotFound)
	}
	return nil
}

// buildFilter translates a Query into a Mongo filter document.
func buildFilter(q Query) (bson.M, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	filter := bson.M{}
	for _, f := range q.Filters {
		cond, ok := filter[f.Field].(bson.M)
		if !ok {
			cond = bson.M{}
			filter[f.Field] = cond
		}
		switch f.Op {
		case OpEqual:
			cond["$eq"] = f.Value
		case OpLess:
			cond["$lt"] = f.Value
		case OpLessEqual:
			cond["$lte"] = f.Value
		case OpGreater:
			cond["$gt"] = f.Value
		case OpGreaterEqual:
			cond["$gte"] = f.Value
		case OpArrayContains:
			all, _ := cond["$all"].(bson.A)
			cond["$all"] = append(all, f.Value)
		}
	}
	return filter, nil
}

// buildUpdate splits plain values and transforms into Mongo update operators.
func buildUpdate(fields map[string]any) bson.M {
	update := bson.M{}
	section := func(name string) bson.M {
		s, ok := update[name].(bson.M)
		if !ok {
			s = bson.M{}
			update[name] = s
		}
		return s
	}
	for k, v := range fields {
		t, ok := v.(Transform)
		if !ok {
			section("$set")[k] = v
			continue
		}
		switch t.kind {
		case transformIncrement:
			section("$inc")[k] = t.delta
		case transformArrayUnion:
			section("$addToSet")[k] = bson.M{"$each": bson.A(t.values)}
		case transformArrayRemove:
			section("$pull")[k] = bson.M{"$in": bson.A(t.values)}
		}
	}
	return update
}

func toBSON(ref Ref, data map[string]any) bson.M {
	doc := make(bson.M, len(data)+1)
	for k, v := range data {
		doc[k] = v
	}
	doc["_id"] = ref.ID
	return doc
}

func fromBSON(collection string, raw bson.M) *Document {
	id := fmt.Sprint(raw["_id"])
	data := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		data[k] = normalizeBSON(v)
	}
	return &Document{Ref: NewRef(collection, id), Data: data}
}

// normalizeBSON converts driver-specific types into plain Go values.
func normalizeBSON(v any) any {
	switch x := v.(type) {
	case primitive.DateTime:
		return x.Time().UTC()
	case int32:
		return int64(x)
	case bson.M:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = normalizeBSON(vv)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = normalizeBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(x))
		for i, vv := range x {
			out[i] = normalizeBSON(vv)
		}
		return out
	default:
		return v
	}
}
