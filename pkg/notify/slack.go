package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
)

// Slack posts operator summaries of published events to an incoming webhook.
type Slack struct {
	webhookURL string
	channel    string
	client     *http.Client
}

// NewSlack creates a Slack publisher.
func NewSlack(webhookURL, channel string) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		channel:    channel,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type slackPayload struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Publish formats budget alerts as an attachment; other events are posted as text.
func (s *Slack) Publish(ctx context.Context, event string, payload any) error {
	msg := slackPayload{Channel: s.channel}
	switch p := payload.(type) {
	case model.AlertRecord:
		msg.Attachments = []slackAttachment{alertAttachment(p)}
	case *model.AlertRecord:
		msg.Attachments = []slackAttachment{alertAttachment(*p)}
	default:
		msg.Text = fmt.Sprintf("Basket Guardian event: %s", event)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}

func alertAttachment(a model.AlertRecord) slackAttachment {
	color := "#ff9900"
	if a.PercentageSpent >= 100 {
		color = "#cc0000"
	}
	return slackAttachment{
		Color: color,
		Title: "Basket Guardian: budget alert",
		Fields: []slackField{
			{Title: "User", Value: a.UserID, Short: true},
			{Title: "Month", Value: fmt.Sprintf("%04d-%02d", a.Year, a.Month), Short: true},
			{Title: "Spent", Value: fmt.Sprintf("%.2f", a.AmountSpent), Short: true},
			{Title: "Budget", Value: fmt.Sprintf("%.2f", a.MonthlyBudget), Short: true},
			{Title: "Usage", Value: fmt.Sprintf("%.1f%%", a.PercentageSpent), Short: true},
		},
		Footer: "Basket Guardian",
		Ts:     a.SentAt.Unix(),
	}
}

// Publisher is the event sink shape shared by Webhook and Slack.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) error
}

// Publishers sends an event to every publisher and joins their errors.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, event string, payload any) error {
	var errs []error
	for _, p := range ps {
		if err := p.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
