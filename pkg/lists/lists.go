// Package lists manages shared grocery list membership and notifies members
// about list activity.
package lists

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ogulcanaydogan/basket-guardian/pkg/bulk"
	"github.com/ogulcanaydogan/basket-guardian/pkg/directory"
	"github.com/ogulcanaydogan/basket-guardian/pkg/docstore"
	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
	"github.com/ogulcanaydogan/basket-guardian/pkg/notify"
)

// Directory resolves accounts by ID or email.
type Directory interface {
	LookupByID(ctx context.Context, uid string) (*model.Identity, error)
	LookupByEmail(ctx context.Context, email string) (*model.Identity, error)
}

// Notifier delivers one notice to one user.
type Notifier interface {
	NotifyUser(ctx context.Context, userID string, n notify.Notice) error
}

// AddMemberInput is the validated request to share a list.
type AddMemberInput struct {
	ListID    string `json:"listId"`
	InviterID string `json:"inviterId"`
	Email     string `json:"email"`
}

func (in AddMemberInput) validate() error {
	if in.ListID == "" || in.InviterID == "" {
		return fmt.Errorf("add member: list id and inviter id are required: %w", model.ErrInvalidInput)
	}
	if !strings.Contains(directory.NormalizeEmail(in.Email), "@") {
		return fmt.Errorf("add member: invalid email %q: %w", in.Email, model.ErrInvalidInput)
	}
	return nil
}

// ItemAdded is the trigger payload for a new grocery item.
type ItemAdded struct {
	ItemID  string `json:"itemId" mapstructure:"itemId"`
	ListID  string `json:"listId" mapstructure:"listId"`
	Name    string `json:"name" mapstructure:"name"`
	AddedBy string `json:"addedBy" mapstructure:"addedBy"`
}

// Service coordinates list membership changes and their notifications.
type Service struct {
	store    docstore.Store
	dir      Directory
	notifier Notifier
	mailer   notify.Mailer
	logger   *slog.Logger
	fanOut   []bulk.FanOutOption
}

// Option configures a Service.
type Option func(*Service)

// WithMailer enables invitation emails.
func WithMailer(m notify.Mailer) Option {
	return func(s *Service) { s.mailer = m }
}

// WithConcurrency delivers member notifications with up to n workers.
func WithConcurrency(n int) Option {
	return func(s *Service) { s.fanOut = append(s.fanOut, bulk.WithConcurrency(n)) }
}

// NewService creates the list sharing service. Invite emails are only sent
// when a mailer is set with WithMailer.
func NewService(store docstore.Store, dir Directory, notifier Notifier, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, dir: dir, notifier: notifier, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get loads a list.
func (s *Service) Get(ctx context.Context, listID string) (*model.GroceryList, error) {
	if listID == "" {
		return nil, fmt.Errorf("get list: missing id: %w", model.ErrInvalidInput)
	}
	doc, err := s.store.Get(ctx, docstore.NewRef(model.CollectionLists, listID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("list %s: %w", listID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get list %s: %w", listID, err)
	}
	var l model.GroceryList
	if err := doc.DataTo(&l); err != nil {
		return nil, err
	}
	l.ID = listID
	return &l, nil
}

// AddMember adds the account registered under in.Email to the list.
// The membership update is authoritative. The invitee's notification and
// invitation email follow as a best-effort second stage whose failures are
// logged and never undo the membership.
func (s *Service) AddMember(ctx context.Context, in AddMemberInput) (*model.Identity, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	list, err := s.Get(ctx, in.ListID)
	if err != nil {
		return nil, err
	}
	if !list.HasMember(in.InviterID) {
		return nil, fmt.Errorf("user %s is not a member of list %s: %w", in.InviterID, in.ListID, model.ErrInvalidInput)
	}

	invitee, err := s.dir.LookupByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if list.HasMember(invitee.UID) {
		s.logger.Info("invitee already a member", "list_id", list.ID, "user_id", invitee.UID)
		return invitee, nil
	}

	ref := docstore.NewRef(model.CollectionLists, list.ID)
	if err := s.store.Update(ctx, ref, map[string]any{"members": docstore.ArrayUnion(invitee.UID)}); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, fmt.Errorf("list %s: %w", list.ID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("add member to %s: %w", list.ID, err)
	}
	s.logger.Info("member added", "list_id", list.ID, "user_id", invitee.UID, "inviter_id", in.InviterID)

	s.announceInvite(ctx, list, in.InviterID, invitee)
	return invitee, nil
}

func (s *Service) announceInvite(ctx context.Context, list *model.GroceryList, inviterID string, invitee *model.Identity) {
	inviterName := ""
	if inviter, err := s.dir.LookupByID(ctx, inviterID); err == nil {
		inviterName = inviter.DisplayName
	}

	notice := notify.Notice{
		Type:  model.NotificationListInvite,
		Title: "You were added to a list",
		Body:  fmt.Sprintf("You can now shop %q together.", list.Name),
		Data:  map[string]string{"listId": list.ID, "inviterId": inviterID},
	}
	report := bulk.FanOut(ctx, []string{invitee.UID}, func(ctx context.Context, uid string) error {
		return s.notifier.NotifyUser(ctx, uid, notice)
	}, s.logger)
	if len(report.Failures()) > 0 {
		s.logger.Warn("invite notification failed", "list_id", list.ID, "user_id", invitee.UID)
	}

	if s.mailer == nil || invitee.Email == "" {
		return
	}
	subject, body, err := notify.RenderListInvite(notify.ListInviteEmail{InviterName: inviterName, ListName: list.Name})
	if err != nil {
		s.logger.Error("render list invite", "list_id", list.ID, "error", err)
		return
	}
	if _, err := s.mailer.Send(ctx, invitee.Email, subject, body); err != nil {
		s.logger.Warn("send list invite", "list_id", list.ID, "user_id", invitee.UID, "error", err)
	}
}

// NotifyItemAdded tells every list member except the adder about a new item.
// Each recipient is delivered in isolation, so the report carries the
// per-member outcome and the call itself only fails on bad input or a
// missing list.
func (s *Service) NotifyItemAdded(ctx context.Context, ev ItemAdded) (bulk.Report, error) {
	if ev.ListID == "" || ev.AddedBy == "" {
		return bulk.Report{}, fmt.Errorf("item added: list id and adder are required: %w", model.ErrInvalidInput)
	}
	list, err := s.Get(ctx, ev.ListID)
	if err != nil {
		return bulk.Report{}, err
	}

	recipients := Recipients(list, ev.AddedBy)
	if len(recipients) == 0 {
		return bulk.Report{}, nil
	}

	adder := "Someone"
	if id, err := s.dir.LookupByID(ctx, ev.AddedBy); err == nil && id.DisplayName != "" {
		adder = id.DisplayName
	}
	item := ev.Name
	if item == "" {
		item = "an item"
	}
	notice := notify.Notice{
		Type:  model.NotificationItemAdded,
		Title: list.Name,
		Body:  fmt.Sprintf("%s added %s", adder, item),
		Data:  map[string]string{"listId": list.ID, "itemId": ev.ItemID},
	}

	report := bulk.FanOut(ctx, recipients, func(ctx context.Context, uid string) error {
		return s.notifier.NotifyUser(ctx, uid, notice)
	}, s.logger, s.fanOut...)
	s.logger.Info("item notifications sent", "list_id", list.ID, "recipients", len(recipients), "succeeded", report.Succeeded())
	return report, nil
}

// Recipients returns the owner and members of list without exclude,
// deduplicated, in membership order.
func Recipients(list *model.GroceryList, exclude string) []string {
	seen := map[string]bool{exclude: true, "": true}
	var out []string
	for _, uid := range append([]string{list.OwnerID}, list.Members...) {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		out = append(out, uid)
	}
	return out
}
