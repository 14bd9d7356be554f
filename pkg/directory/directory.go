// Package directory resolves account identities from the mirrored users collection.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ogulcanaydogan/basket-guardian/pkg/docstore"
	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
)

// Directory looks up identities by user ID or email.
type Directory struct {
	store docstore.Store
}

// New creates a Directory over the store's users collection.
func New(store docstore.Store) *Directory {
	return &Directory{store: store}
}

// LookupByID returns the identity of uid.
func (d *Directory) LookupByID(ctx context.Context, uid string) (*model.Identity, error) {
	if uid == "" {
		return nil, fmt.Errorf("lookup user: empty id: %w", model.ErrInvalidInput)
	}
	doc, err := d.store.Get(ctx, docstore.NewRef(model.CollectionUsers, uid))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("user %s: %w", uid, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user %s: %w", uid, err)
	}
	return identityOf(doc)
}

// LookupByEmail returns the identity registered under email. Matching is
// case-insensitive and ignores surrounding whitespace.
func (d *Directory) LookupByEmail(ctx context.Context, email string) (*model.Identity, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("lookup user: empty email: %w", model.ErrInvalidInput)
	}
	docs, err := d.store.Find(ctx, docstore.From(model.CollectionUsers).
		Where("email", docstore.OpEqual, email).
		WithLimit(1))
	if err != nil {
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("user with email %s: %w", email, model.ErrNotFound)
	}
	return identityOf(&docs[0])
}

// NormalizeEmail lowercases and trims an address the way it is stored.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func identityOf(doc *docstore.Document) (*model.Identity, error) {
	var u model.User
	if err := doc.DataTo(&u); err != nil {
		return nil, err
	}
	return &model.Identity{UID: doc.Ref.ID, Email: u.Email, DisplayName: u.DisplayName}, nil
}
