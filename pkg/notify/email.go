package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
)

const defaultResendURL = "https://api.resend.com"

// Mailer sends a single HTML email and returns the provider's delivery ID.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) (string, error)
}

// Resend sends email through the Resend HTTP API.
type Resend struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
}

// ResendOption configures a Resend mailer.
type ResendOption func(*Resend)

// WithResendURL overrides the API base URL.
func WithResendURL(url string) ResendOption {
	return func(r *Resend) { r.baseURL = url }
}

// NewResend creates a Resend mailer. The API key and sender are required.
func NewResend(apiKey, from string, opts ...ResendOption) (*Resend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key: %w", model.ErrNotConfigured)
	}
	if from == "" {
		return nil, fmt.Errorf("email sender address: %w", model.ErrNotConfigured)
	}
	r := &Resend{
		apiKey:  apiKey,
		from:    from,
		baseURL: defaultResendURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type resendResponse struct {
	ID string `json:"id"`
}

func (r *Resend) Send(ctx context.Context, to, subject, html string) (string, error) {
	body, err := json.Marshal(resendRequest{
		From:    r.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return "", fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("resend returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out resendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode email response: %w", err)
	}
	return out.ID, nil
}
