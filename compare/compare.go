// Package compare runs two-phase generation sessions: an unconstrained
// pass and a grammar-constrained pass over the same prompt, streamed
// side by side so the effect of the grammar mask can be seen directly.
//
// A Session owns one run at a time. Start validates the grammar, then a
// single goroutine consumes both event streams in order, applying every
// event to the session state; Cancel aborts whichever phase is active
// through one shared cancellation token. Between the phases the session
// fires a one-shot diagnostic that feeds the unconstrained output back
// through the grammar, so the comparison view can say not just "the
// texts differ" but "and here is where the free output left the
// language".
package compare

import (
	"context"

	"github.com/sweetpotato0/gramflow/client"
	"github.com/sweetpotato0/gramflow/stream"
)

// EventStream is the pull-shaped event sequence a session consumes, one
// per phase. *stream.Decoder implements it over a live HTTP response and
// *stream.IterStream over synthesised events.
type EventStream = stream.Stream

// Backend is what a session needs from a generation server: the two
// streaming opens, grammar validation for the start gate, and the debug
// call behind the diagnostic. NewServerBackend adapts *client.Client;
// tests inject fakes.
type Backend interface {
	ValidateGrammar(ctx context.Context, spec string) (*client.GrammarValidation, error)
	DebugGrammar(ctx context.Context, spec, input string) (*client.DebugResult, error)
	GenerateUnconstrained(ctx context.Context, req client.UnconstrainedRequest) (EventStream, error)
	GenerateConstrained(ctx context.Context, req client.ConstrainedRequest) (EventStream, error)
}

// Source produces the unconstrained event stream for a prompt. It is the
// seam that lets the free pass run against something other than the
// grammar server (a hosted model, a replay, a test double) while the
// constrained pass stays on the server, which is the only place logits
// can be masked. See contrib/backend for SDK-backed implementations.
type Source interface {
	Stream(ctx context.Context, req client.UnconstrainedRequest) (EventStream, error)
}

// ServerBackend adapts *client.Client to the Backend seam. The wrapper
// only narrows the stream return types to the EventStream interface.
type ServerBackend struct {
	c *client.Client
}

// NewServerBackend wraps a grammar-server client.
func NewServerBackend(c *client.Client) ServerBackend {
	return ServerBackend{c: c}
}

func (b ServerBackend) ValidateGrammar(ctx context.Context, spec string) (*client.GrammarValidation, error) {
	return b.c.ValidateGrammar(ctx, spec)
}

func (b ServerBackend) DebugGrammar(ctx context.Context, spec, input string) (*client.DebugResult, error) {
	return b.c.DebugGrammar(ctx, spec, input)
}

func (b ServerBackend) GenerateUnconstrained(ctx context.Context, req client.UnconstrainedRequest) (EventStream, error) {
	dec, err := b.c.GenerateUnconstrained(ctx, req)
	if err != nil {
		return nil, err
	}
	return dec, nil
}

func (b ServerBackend) GenerateConstrained(ctx context.Context, req client.ConstrainedRequest) (EventStream, error) {
	dec, err := b.c.GenerateConstrained(ctx, req)
	if err != nil {
		return nil, err
	}
	return dec, nil
}

var _ Backend = ServerBackend{}
