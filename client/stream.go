package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	gferrors "github.com/sweetpotato0/gramflow/errors"
	"github.com/sweetpotato0/gramflow/pkg/telemetry"
	"github.com/sweetpotato0/gramflow/stream"
	"go.opentelemetry.io/otel/attribute"
)

// GenerateConstrained opens the grammar-constrained generation stream.
// The returned decoder is bound to ctx and the caller owns Close. The
// client timeout does not apply; cancel ctx to abandon the generation.
func (c *Client) GenerateConstrained(ctx context.Context, req ConstrainedRequest) (*stream.Decoder, error) {
	return c.openStream(ctx, "/api/generate-constrained", req)
}

// GenerateUnconstrained opens the free generation stream for a prompt.
// Same contract as GenerateConstrained.
func (c *Client) GenerateUnconstrained(ctx context.Context, req UnconstrainedRequest) (*stream.Decoder, error) {
	return c.openStream(ctx, "/api/generate-unconstrained", req)
}

func (c *Client) openStream(ctx context.Context, path string, in any) (*stream.Decoder, error) {
	ctx, span := telemetry.Start(ctx, "client."+opName(path),
		attribute.String("http.method", http.MethodPost),
		attribute.String("http.path", path),
	)
	var err error
	defer func() { telemetry.End(span, err) }()

	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var req *http.Request
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		err = fmt.Errorf("%w: POST %s: %v", gferrors.ErrTransport, path, err)
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		err = fmt.Errorf("%w: POST %s returned status %d: %s",
			gferrors.ErrTransport, path, resp.StatusCode, errorSnippet(snippet))
		return nil, err
	}

	c.logger.Debug("generation stream open", "path", path)
	return stream.NewDecoder(ctx, resp.Body, stream.WithLogger(c.logger)), nil
}
