// Package users handles account lifecycle events and admin bulk operations
// over the users collection.
package users

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ogulcanaydogan/basket-guardian/pkg/bulk"
	"github.com/ogulcanaydogan/basket-guardian/pkg/directory"
	"github.com/ogulcanaydogan/basket-guardian/pkg/docstore"
	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
)

// DefaultSignupCredits is granted to every new account.
const DefaultSignupCredits = 5

// Granter records the signup credit grant. It must be idempotent per user.
type Granter interface {
	RecordSignupGrant(ctx context.Context, uid string, n int64) error
}

// DeletionReport lists what OnDeleted removed, keyed by collection.
type DeletionReport struct {
	UserID  string                 `json:"userId"`
	Deleted map[string]bulk.Result `json:"deleted"`
	// ListsLeft counts shared lists the user was removed from.
	ListsLeft bulk.Result `json:"listsLeft"`
}

// Service reacts to auth lifecycle events.
type Service struct {
	store         docstore.Store
	granter       Granter
	writer        *bulk.Writer
	logger        *slog.Logger
	signupCredits int64
	now           func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithSignupCredits overrides the credits granted on account creation.
func WithSignupCredits(n int64) Option {
	return func(s *Service) { s.signupCredits = n }
}

// WithBatchLimit caps the size of bulk write batches.
func WithBatchLimit(n int) Option {
	return func(s *Service) { s.writer = bulk.NewWriter(s.store, bulk.WithBatchLimit(n), bulk.WithLogger(s.logger)) }
}

// NewService creates the lifecycle service. A nil granter skips the signup
// grant transaction.
func NewService(store docstore.Store, granter Granter, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:         store,
		granter:       granter,
		logger:        logger,
		signupCredits: DefaultSignupCredits,
		now:           time.Now,
	}
	s.writer = bulk.NewWriter(store, bulk.WithLogger(logger))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnCreated mirrors a new account into the users collection with the signup
// credits already on it, then records the grant transaction. A repeated event
// for an existing user reports created=false and only completes the grant
// record, so retrying after a failed grant write is safe.
func (s *Service) OnCreated(ctx context.Context, id model.Identity) (created bool, err error) {
	if id.UID == "" {
		return false, fmt.Errorf("user created: missing uid: %w", model.ErrInvalidInput)
	}
	user := model.User{
		Email:       directory.NormalizeEmail(id.Email),
		DisplayName: id.DisplayName,
		AICredits:   max(s.signupCredits, 0),
		CreatedAt:   s.now().UTC(),
	}
	err = s.store.Create(ctx, docstore.NewRef(model.CollectionUsers, id.UID), user.Fields())
	switch {
	case errors.Is(err, docstore.ErrAlreadyExists):
		s.logger.Info("user already exists", "user_id", id.UID)
	case err != nil:
		return false, fmt.Errorf("create user %s: %w", id.UID, err)
	default:
		created = true
	}

	if s.signupCredits > 0 && s.granter != nil {
		if err := s.granter.RecordSignupGrant(ctx, id.UID, s.signupCredits); err != nil {
			return created, fmt.Errorf("grant signup credits: %w", err)
		}
	}
	if created {
		s.logger.Info("user created", "user_id", id.UID, "credits", user.AICredits)
	}
	return created, nil
}

// ownedCollections hold documents keyed to the user by a userId field.
var ownedCollections = []string{
	model.CollectionHistory,
	model.CollectionNotifications,
	model.CollectionPushTokens,
	model.CollectionBudgetAlerts,
	model.CollectionCreditTransactions,
	model.CollectionAIUsage,
}

// OnDeleted removes everything the user owns, takes them out of lists shared
// with them and finally deletes the user document. Each step runs in bounded
// batches; a failure stops the cleanup and returns what was done so far, and
// re-running the event resumes it.
func (s *Service) OnDeleted(ctx context.Context, uid string) (*DeletionReport, error) {
	if uid == "" {
		return nil, fmt.Errorf("user deleted: missing uid: %w", model.ErrInvalidInput)
	}
	report := &DeletionReport{UserID: uid, Deleted: map[string]bulk.Result{}}

	for _, coll := range ownedCollections {
		refs, err := s.refs(ctx, docstore.From(coll).Where("userId", docstore.OpEqual, uid))
		if err != nil {
			return report, err
		}
		res, err := s.writer.ApplyToAll(ctx, refs, bulk.Delete())
		report.Deleted[coll] = res
		if err != nil {
			return report, fmt.Errorf("delete %s for %s: %w", coll, uid, err)
		}
	}

	owned, err := s.refs(ctx, docstore.From(model.CollectionLists).Where("ownerId", docstore.OpEqual, uid))
	if err != nil {
		return report, err
	}
	ownedSet := make(map[string]bool, len(owned))
	var items []docstore.Ref
	for _, l := range owned {
		ownedSet[l.ID] = true
		refs, err := s.refs(ctx, docstore.From(model.CollectionItems).Where("listId", docstore.OpEqual, l.ID))
		if err != nil {
			return report, err
		}
		items = append(items, refs...)
	}
	res, err := s.writer.ApplyToAll(ctx, items, bulk.Delete())
	report.Deleted[model.CollectionItems] = res
	if err != nil {
		return report, fmt.Errorf("delete list items for %s: %w", uid, err)
	}
	res, err = s.writer.ApplyToAll(ctx, owned, bulk.Delete())
	report.Deleted[model.CollectionLists] = res
	if err != nil {
		return report, fmt.Errorf("delete lists for %s: %w", uid, err)
	}

	shared, err := s.refs(ctx, docstore.From(model.CollectionLists).Where("members", docstore.OpArrayContains, uid))
	if err != nil {
		return report, err
	}
	var leave []docstore.Ref
	for _, l := range shared {
		if !ownedSet[l.ID] {
			leave = append(leave, l)
		}
	}
	report.ListsLeft, err = s.writer.ApplyToAll(ctx, leave, bulk.Update(map[string]any{"members": docstore.ArrayRemove(uid)}))
	if err != nil {
		return report, fmt.Errorf("leave shared lists for %s: %w", uid, err)
	}

	if err := s.store.Delete(ctx, docstore.NewRef(model.CollectionUsers, uid)); err != nil {
		return report, fmt.Errorf("delete user %s: %w", uid, err)
	}
	s.logger.Info("user data deleted", "user_id", uid, "lists_left", report.ListsLeft.Processed)
	return report, nil
}

// Export writes every user as one JSON object per line and returns the count.
func (s *Service) Export(ctx context.Context, w io.Writer) (int, error) {
	docs, err := s.store.Find(ctx, docstore.From(model.CollectionUsers))
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	enc := json.NewEncoder(w)
	for i, d := range docs {
		var u model.User
		if err := d.DataTo(&u); err != nil {
			return i, err
		}
		u.ID = d.Ref.ID
		if err := enc.Encode(u); err != nil {
			return i, fmt.Errorf("write user %s: %w", u.ID, err)
		}
	}
	return len(docs), nil
}

// Import restores users from Export output, replacing existing documents.
func (s *Service) Import(ctx context.Context, r io.Reader) (bulk.Result, error) {
	var docs []docstore.Document
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var u model.User
		if err := json.Unmarshal(sc.Bytes(), &u); err != nil {
			return bulk.Result{}, fmt.Errorf("line %d: %v: %w", line, err, model.ErrInvalidInput)
		}
		if u.ID == "" {
			return bulk.Result{}, fmt.Errorf("line %d: missing id: %w", line, model.ErrInvalidInput)
		}
		docs = append(docs, docstore.Document{Ref: docstore.NewRef(model.CollectionUsers, u.ID), Data: u.Fields()})
	}
	if err := sc.Err(); err != nil {
		return bulk.Result{}, fmt.Errorf("read users: %w", err)
	}
	return s.writer.SetAll(ctx, docs)
}

// BackfillCredits sets every user's AI credit balance to amount.
func (s *Service) BackfillCredits(ctx context.Context, amount int64) (bulk.Result, error) {
	if amount < 0 {
		return bulk.Result{}, fmt.Errorf("backfill: negative amount: %w", model.ErrInvalidInput)
	}
	refs, err := s.refs(ctx, docstore.From(model.CollectionUsers))
	if err != nil {
		return bulk.Result{}, err
	}
	res, err := s.writer.ApplyToAll(ctx, refs, bulk.Update(map[string]any{"aiCredits": amount}))
	if err != nil {
		return res, fmt.Errorf("backfill credits: %w", err)
	}
	s.logger.Info("credits backfilled", "users", res.Processed, "batches", res.Batches, "amount", amount)
	return res, nil
}

func (s *Service) refs(ctx context.Context, q docstore.Query) ([]docstore.Ref, error) {
	docs, err := s.store.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", q.Collection, err)
	}
	refs := make([]docstore.Ref, len(docs))
	for i, d := range docs {
		refs[i] = d.Ref
	}
	return refs, nil
}
