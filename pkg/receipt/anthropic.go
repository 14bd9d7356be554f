package receipt

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ogulcanaydogan/basket-guardian/pkg/credits"
	"github.com/ogulcanaydogan/basket-guardian/pkg/model"
)

const (
	defaultAnthropicURL = "https://api.anthropic.com"
	anthropicVersion    = "2023-06-01"
)

// Anthropic extracts items through the messages API with a URL image source.
type Anthropic struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewAnthropic creates an Anthropic extractor. baseURL may be empty.
func NewAnthropic(apiKey, modelName, baseURL string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key: %w", model.ErrNotConfigured)
	}
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}
	if modelName == "" {
		modelName = "claude-3-5-haiku-latest"
	}
	return &Anthropic{
		apiKey:  apiKey,
		model:   modelName,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (a *Anthropic) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string          `json:"role"`
	Content []anthropicPart `json:"content"`
}

type anthropicPart struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (a *Anthropic) Extract(ctx context.Context, imageURL string) (*Result, error) {
	reqBody := anthropicRequest{
		Model:     a.model,
		MaxTokens: 2048,
		System:    Prompt,
		Messages: []anthropicMessage{{
			Role: "user",
			Content: []anthropicPart{
				{Type: "image", Source: &anthropicSource{Type: "url", URL: imageURL}},
				{Type: "text", Text: "Extract the items from this receipt."},
			},
		}},
	}

	var resp anthropicResponse
	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": anthropicVersion,
	}
	if err := postJSON(ctx, a.client, a.baseURL+"/v1/messages", headers, reqBody, &resp); err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	var reply strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			reply.WriteString(c.Text)
		}
	}
	usage := credits.Usage{
		Provider:     a.Name(),
		Model:        a.model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	return buildResult(reply.String(), usage)
}
