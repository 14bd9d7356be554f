package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"
)

const (
	defaultExpoURL = "https://exp.host/--/api/v2/push/send"

	// expoChunkSize is the most messages Expo accepts per request.
	expoChunkSize = 100
)

// PushMessage is the content delivered to every token of a SendBulk call.
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

// Ticket is the gateway's per-token receipt.
type Ticket struct {
	Token   string `json:"token"`
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

// OK reports whether the gateway accepted the message for this token.
func (t Ticket) OK() bool { return t.Status == "ok" }

// Pusher delivers push notifications to device tokens.
type Pusher interface {
	SendBulk(ctx context.Context, tokens []string, msg PushMessage) ([]Ticket, error)
}

var (
	expoTokenPattern = regexp.MustCompile(`^Expo(nent)?PushToken\[[^\[\]]+\]$`)
	uuidTokenPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// IsValidPushToken reports whether token has an Expo push token format.
func IsValidPushToken(token string) bool {
	return expoTokenPattern.MatchString(token) || uuidTokenPattern.MatchString(token)
}

// Expo sends push notifications through the Expo push API.
type Expo struct {
	accessToken string
	url         string
	client      *http.Client
	logger      *slog.Logger
}

// ExpoOption configures an Expo pusher.
type ExpoOption func(*Expo)

// WithExpoURL overrides the push endpoint.
func WithExpoURL(url string) ExpoOption {
	return func(e *Expo) { e.url = url }
}

// NewExpo creates an Expo pusher. The access token is optional.
func NewExpo(accessToken string, logger *slog.Logger, opts ...ExpoOption) *Expo {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Expo{
		accessToken: accessToken,
		url:         defaultExpoURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type expoMessage struct {
	To    string            `json:"to"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
	Sound string            `json:"sound"`
}

type expoResponse struct {
	Data []struct {
		Status  string `json:"status"`
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"data"`
}

// SendBulk validates tokens, skips invalid ones, and sends the rest in chunks.
// Tickets are returned for the valid tokens in order.
func (e *Expo) SendBulk(ctx context.Context, tokens []string, msg PushMessage) ([]Ticket, error) {
	valid := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if !IsValidPushToken(tok) {
			e.logger.Warn("skipping invalid push token", "token", tok)
			continue
		}
		valid = append(valid, tok)
	}

	tickets := make([]Ticket, 0, len(valid))
	for start := 0; start < len(valid); start += expoChunkSize {
		end := min(start+expoChunkSize, len(valid))
		chunk, err := e.sendChunk(ctx, valid[start:end], msg)
		if err != nil {
			return tickets, err
		}
		tickets = append(tickets, chunk...)
	}
	return tickets, nil
}

func (e *Expo) sendChunk(ctx context.Context, tokens []string, msg PushMessage) ([]Ticket, error) {
	messages := make([]expoMessage, len(tokens))
	for i, tok := range tokens {
		messages[i] = expoMessage{To: tok, Title: msg.Title, Body: msg.Body, Data: msg.Data, Sound: "default"}
	}
	body, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("marshal push messages: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+e.accessToken)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("expo returned status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out expoResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode push response: %w", err)
	}

	tickets := make([]Ticket, len(tokens))
	for i, tok := range tokens {
		tickets[i] = Ticket{Token: tok, Status: "error", Message: "no ticket returned"}
		if i < len(out.Data) {
			d := out.Data[i]
			tickets[i] = Ticket{Token: tok, Status: d.Status, ID: d.ID, Message: d.Message}
		}
		if !tickets[i].OK() {
			e.logger.Warn("push ticket error", "token", tok, "message", tickets[i].Message)
		}
	}
	return tickets, nil
}
