// Package client talks to a grammar-constrained generation server. It
// covers the full HTTP surface: grammar validation and debugging, the
// grammar/model catalogs, and the two streaming generation operations
// whose events feed the compare session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gferrors "github.com/sweetpotato0/gramflow/errors"
	"github.com/sweetpotato0/gramflow/pkg/logging"
	"github.com/sweetpotato0/gramflow/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each non-streaming request. Streaming requests are
// bounded only by their context, since a generation legitimately runs for
// minutes.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client is a grammar-server API client. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: 30 * time.Second,
		logger:  logging.WithComponent("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ValidateGrammar checks a grammar spec server-side.
func (c *Client) ValidateGrammar(ctx context.Context, spec string) (*GrammarValidation, error) {
	var out GrammarValidation
	req := map[string]string{"spec": spec}
	if err := c.postJSON(ctx, "/api/validate-grammar", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DebugGrammar feeds input against the grammar and reports the resulting
// parser state: acceptability, completion, allowed continuations and the
// number of well-typed parse trees.
func (c *Client) DebugGrammar(ctx context.Context, spec, input string) (*DebugResult, error) {
	var out DebugResult
	req := map[string]string{"spec": spec, "input": input}
	if err := c.postJSON(ctx, "/api/debug/grammar", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckPartial reports whether input is a completable prefix under the
// grammar. Reason is "invalid_prefix" or "not_completable" when not.
func (c *Client) CheckPartial(ctx context.Context, spec, input string) (*PartialCheck, error) {
	var out PartialCheck
	req := map[string]string{"spec": spec, "input": input}
	if err := c.postJSON(ctx, "/api/check-partial", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Completions lists the raw continuations allowed after input.
func (c *Client) Completions(ctx context.Context, spec, input string) (*Completions, error) {
	var out Completions
	req := map[string]string{"spec": spec, "input": input}
	if err := c.postJSON(ctx, "/api/get-completions", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ParseToAST parses input under the grammar into an s-expression.
func (c *Client) ParseToAST(ctx context.Context, spec, input string) (*ASTResult, error) {
	var out ASTResult
	req := map[string]string{"spec": spec, "input": input}
	if err := c.postJSON(ctx, "/api/parse-to-ast", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health reports server liveness and the inference device.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.getJSON(ctx, "/api/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Models lists the generation models the server can load.
func (c *Client) Models(ctx context.Context) ([]ModelInfo, error) {
	var out struct {
		Models []ModelInfo `json:"models"`
	}
	if err := c.getJSON(ctx, "/api/models", &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// Grammars lists the server's built-in example grammars.
func (c *Client) Grammars(ctx context.Context) ([]GrammarInfo, error) {
	var out struct {
		Grammars []GrammarInfo `json:"grammars"`
	}
	if err := c.getJSON(ctx, "/api/grammars", &out); err != nil {
		return nil, err
	}
	return out.Grammars, nil
}

// Grammar fetches one built-in grammar spec by name.
func (c *Client) Grammar(ctx context.Context, name string) (*GrammarSpec, error) {
	var out GrammarSpec
	if err := c.getJSON(ctx, "/api/grammars/"+name, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	ctx, span := telemetry.Start(ctx, "client."+opName(path),
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	)
	var err error
	defer func() { telemetry.End(span, err) }()

	var req *http.Request
	req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		err = fmt.Errorf("%w: %s %s: %v", gferrors.ErrTransport, method, path, err)
		return err
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		err = fmt.Errorf("%w: read response: %v", gferrors.ErrTransport, readErr)
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err = fmt.Errorf("%w: %s %s returned status %d: %s",
			gferrors.ErrTransport, method, path, resp.StatusCode, errorSnippet(respBody))
		return err
	}
	if out != nil {
		if err = json.Unmarshal(respBody, out); err != nil {
			err = fmt.Errorf("decode response from %s: %w", path, err)
			return err
		}
	}
	return nil
}

// errorSnippet pulls the server's error message out of a failure body, or
// truncates the raw body when it is not the usual JSON error envelope.
func errorSnippet(body []byte) string {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return envelope.Error
	}
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

func opName(path string) string {
	name := strings.TrimPrefix(path, "/api/")
	if i := strings.IndexByte(name, '/'); i >= 0 {
		name = name[:i]
	}
	return name
}
