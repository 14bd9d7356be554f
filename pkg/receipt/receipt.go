// Package receipt extracts grocery items from receipt photos through AI
// vision APIs and charges the scan against the user's AI credits.
package receipt

import (
	"context"

	"github.com/ogulcanaydogan/basket-guardian/pkg/credits"
	"github.com/ogulcanaydogan/basket-guardian/pkg/tokenizer"
)

// Result is the outcome of a single extraction.
type Result struct {
	Items []Item        `json:"items"`
	Total float64       `json:"total"`
	Usage credits.Usage `json:"usage"`
}

// Extractor reads receipt items from an image URL.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, imageURL string) (*Result, error)
}

// buildResult parses the reply and fills in estimated usage when the
// provider reported none.
func buildResult(reply string, usage credits.Usage) (*Result, error) {
	items, err := ParseItems(reply)
	if err != nil {
		return nil, err
	}
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		in, out, err := tokenizer.EstimateVisionCall(usage.Provider, usage.Model, Prompt, reply)
		if err == nil {
			usage.InputTokens, usage.OutputTokens, usage.Estimated = in, out, true
		}
	}
	return &Result{Items: items, Total: Total(items), Usage: usage}, nil
}
