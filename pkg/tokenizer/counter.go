// Package tokenizer estimates token usage for AI vision calls whose
// responses omit usage data.
package tokenizer

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// encodingForModel maps OpenAI vision model names to tiktoken encodings.
var encodingForModel = map[string]tokenizer.Encoding{
	"gpt-4o":       tokenizer.O200kBase,
	"gpt-4o-mini":  tokenizer.O200kBase,
	"gpt-4.1":      tokenizer.O200kBase,
	"gpt-4.1-mini": tokenizer.O200kBase,
	"gpt-4-turbo":  tokenizer.Cl100kBase,
}

// Flat per-image prompt cost used when the provider reports no usage.
// OpenAI bills a low-detail image at 85 tokens; Anthropic bills roughly
// width*height/750, about 1,600 tokens for a typical phone receipt photo.
const (
	openAIImageTokens    = 85
	anthropicImageTokens = 1600
	messageOverhead      = 4
)

// CountTokens returns the token count for the given text and model.
// OpenAI models use tiktoken; other providers use a character estimate.
func CountTokens(text, provider, model string) (int64, error) {
	if provider == "openai" {
		return countOpenAI(text, model)
	}
	return estimateTokens(text), nil
}

func countOpenAI(text, model string) (int64, error) {
	encoding, ok := encodingForModel[model]
	if !ok {
		encoding = tokenizer.O200kBase
	}
	enc, err := tokenizer.Get(encoding)
	if err != nil {
		return 0, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	ids, _, err := enc.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("encode text: %w", err)
	}
	return int64(len(ids)), nil
}

// estimateTokens assumes four characters per token on average.
func estimateTokens(text string) int64 {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return 0
	}
	return int64((len(text) + 3) / 4)
}

// ImageTokens returns the flat prompt cost of one image for provider.
func ImageTokens(provider string) int64 {
	if provider == "openai" {
		return openAIImageTokens
	}
	return anthropicImageTokens
}

// EstimateVisionCall estimates the input and output tokens of a single
// image-plus-prompt call that produced reply.
func EstimateVisionCall(provider, model, prompt, reply string) (input, output int64, err error) {
	promptTokens, err := CountTokens(prompt, provider, model)
	if err != nil {
		return 0, 0, err
	}
	replyTokens, err := CountTokens(reply, provider, model)
	if err != nil {
		return 0, 0, err
	}
	return promptTokens + ImageTokens(provider) + messageOverhead, replyTokens, nil
}
