// Package claude adapts the Anthropic Messages streaming API to the
// compare.Source seam, so the unconstrained pass of a comparison can run
// against a hosted Claude model while the constrained pass stays on the
// grammar server.
package claude

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/sweetpotato0/gramflow/client"
	"github.com/sweetpotato0/gramflow/compare"
	"github.com/sweetpotato0/gramflow/stream"
)

// Config holds Claude source configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// DefaultConfig returns the default Claude source configuration.
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey: apiKey,
		Model:  "claude-sonnet-4-5-20250929",
	}
}

// Source streams unconstrained generations from a Claude model. The
// request's model field names a grammar-server model and does not
// transfer; the source's configured model is used instead.
type Source struct {
	client anthropic.Client
	model  string
}

var _ compare.Source = (*Source)(nil)

// New creates a Claude-backed source using the official SDK.
func New(config *Config) *Source {
	if config.Model == "" {
		config.Model = "claude-sonnet-4-5-20250929"
	}
	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	return &Source{
		client: anthropic.NewClient(options...),
		model:  config.Model,
	}
}

// Stream opens a streaming message for the prompt and re-speaks it in the
// generation event protocol: one token event per text delta, then a done
// event. The free pass always reports max_tokens; the run-level stop
// reason comes from the constrained phase.
func (s *Source) Stream(ctx context.Context, req client.UnconstrainedRequest) (compare.EventStream, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		// The Messages API requires an explicit budget.
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.TopK > 0 {
		params.TopK = param.NewOpt(int64(req.TopK))
	}

	return stream.Iter(func(yield func(*stream.Event, error) bool) {
		msgs := s.client.Messages.NewStreaming(ctx, params)
		defer msgs.Close()

		for msgs.Next() {
			event := msgs.Current()
			if event.Type != "content_block_delta" {
				continue
			}
			delta := event.AsContentBlockDelta()
			if delta.Delta.Type != "text_delta" || delta.Delta.Text == "" {
				continue
			}
			if !yield(&stream.Event{Type: stream.EventToken, Text: delta.Delta.Text}, nil) {
				return
			}
		}
		if err := msgs.Err(); err != nil {
			yield(nil, fmt.Errorf("claude stream: %w", err))
			return
		}
		yield(&stream.Event{Type: stream.EventDone, Reason: stream.ReasonMaxTokens}, nil)
	}), nil
}
