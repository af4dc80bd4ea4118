// Package openai adapts the OpenAI chat-completions streaming API to the
// compare.Source seam, so the unconstrained pass of a comparison can run
// against a hosted model while the constrained pass stays on the grammar
// server.
package openai

import (
	"context"
	"fmt"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/sweetpotato0/gramflow/client"
	"github.com/sweetpotato0/gramflow/compare"
	"github.com/sweetpotato0/gramflow/stream"
)

// Config holds OpenAI source configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// DefaultConfig returns the default OpenAI source configuration.
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey: apiKey,
		Model:  "gpt-4o-mini",
	}
}

// Source streams unconstrained generations from an OpenAI chat model. The
// request's model field names a grammar-server model and does not
// transfer; the source's configured model is used instead.
type Source struct {
	client openaisdk.Client
	model  string
}

var _ compare.Source = (*Source)(nil)

// New creates an OpenAI-backed source using the official SDK.
func New(config *Config) *Source {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	return &Source{
		client: openaisdk.NewClient(options...),
		model:  config.Model,
	}
}

// Stream opens a streaming completion for the prompt and re-speaks it in
// the generation event protocol: one token event per content delta, then
// a done event. The free pass always reports max_tokens; the run-level
// stop reason comes from the constrained phase. TopK has no
// chat-completions equivalent and is ignored.
func (s *Source) Stream(ctx context.Context, req client.UnconstrainedRequest) (compare.EventStream, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(s.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage(req.Prompt),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}

	return stream.Iter(func(yield func(*stream.Event, error) bool) {
		sse := s.client.Chat.Completions.NewStreaming(ctx, params)
		defer sse.Close()

		for sse.Next() {
			chunk := sse.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !yield(&stream.Event{Type: stream.EventToken, Text: delta}, nil) {
				return
			}
		}
		if err := sse.Err(); err != nil {
			yield(nil, fmt.Errorf("openai stream: %w", err))
			return
		}
		yield(&stream.Event{Type: stream.EventDone, Reason: stream.ReasonMaxTokens}, nil)
	}), nil
}
