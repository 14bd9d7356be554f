// Package notify delivers in-app, push, email and webhook notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ogulcanaydogan/basket-guardian/pkg/docstore"
	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
)

// Notice is the content of a notification for one user.
type Notice struct {
	Type  model.NotificationType
	Title string
	Body  string
	Data  map[string]string
}

// Service records in-app notifications and pushes them to the user's devices.
type Service struct {
	store  docstore.Store
	pusher Pusher
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a notification service. A nil pusher disables push delivery.
func NewService(store docstore.Store, pusher Pusher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, pusher: pusher, logger: logger, now: time.Now}
}

// NotifyUser creates the notification document, looks up the user's push
// tokens and sends the push. It is the per-recipient unit used by fan-out.
func (s *Service) NotifyUser(ctx context.Context, userID string, n Notice) error {
	if userID == "" {
		return fmt.Errorf("notify: missing user id: %w", model.ErrInvalidInput)
	}

	record := model.Notification{
		UserID:    userID,
		Type:      n.Type,
		Title:     n.Title,
		Body:      n.Body,
		Data:      n.Data,
		CreatedAt: s.now().UTC(),
	}
	ref := docstore.NewRef(model.CollectionNotifications, docstore.NewID())
	if err := s.store.Create(ctx, ref, record.Fields()); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	if s.pusher == nil {
		return nil
	}

	tokens, err := s.PushTokens(ctx, userID)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		s.logger.Debug("no push tokens", "user_id", userID)
		return nil
	}

	tickets, err := s.pusher.SendBulk(ctx, tokens, PushMessage{Title: n.Title, Body: n.Body, Data: n.Data})
	if err != nil {
		return fmt.Errorf("send push to %s: %w", userID, err)
	}
	s.logger.Info("push sent", "user_id", userID, "tokens", len(tokens), "tickets", len(tickets))
	return nil
}

// PushTokens returns the device tokens registered to a user.
func (s *Service) PushTokens(ctx context.Context, userID string) ([]string, error) {
	docs, err := s.store.Find(ctx, docstore.From(model.CollectionPushTokens).
		Where("userId", docstore.OpEqual, userID))
	if err != nil {
		return nil, fmt.Errorf("find push tokens: %w", err)
	}
	tokens := make([]string, 0, len(docs))
	for _, d := range docs {
		tokens = append(tokens, d.Ref.ID)
	}
	return tokens, nil
}

// RegisterPushToken stores or re-assigns a device token to a user.
func (s *Service) RegisterPushToken(ctx context.Context, userID, token, platform string) error {
	token = strings.TrimSpace(token)
	if userID == "" || token == "" {
		return fmt.Errorf("register push token: user id and token are required: %w", model.ErrInvalidInput)
	}
	if !IsValidPushToken(token) {
		return fmt.Errorf("register push token: unrecognised token format: %w", model.ErrInvalidInput)
	}
	pt := model.PushToken{Token: token, UserID: userID, Platform: platform, UpdatedAt: s.now().UTC()}
	if err := s.store.Set(ctx, docstore.NewRef(model.CollectionPushTokens, token), pt.Fields()); err != nil {
		return fmt.Errorf("save push token: %w", err)
	}
	return nil
}
