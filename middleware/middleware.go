// Package middleware runs a hook chain around comparison session starts.
// The gateway and the CLI push every incoming start request through a
// Chain before it reaches the session manager, so logging, rate limiting,
// validation and default filling happen in one place.
package middleware

import (
	"context"
	"time"

	"github.com/sweetpotato0/gramflow/compare"
)

// Context carries one start request through the middleware chain.
type Context struct {
	// Request is the start request being processed. Middlewares may
	// mutate it (the defaults middleware does).
	Request *compare.StartRequest

	// StartedAt is when the chain began executing.
	StartedAt time.Time

	// Metadata passes data between middlewares.
	Metadata map[string]any

	context context.Context
}

// NewContext creates a middleware context for one request.
func NewContext(ctx context.Context, req *compare.StartRequest) *Context {
	return &Context{
		Request:   req,
		StartedAt: time.Now(),
		Metadata:  make(map[string]any),
		context:   ctx,
	}
}

// Context returns the underlying context.Context.
func (c *Context) Context() context.Context {
	if c.context == nil {
		return context.Background()
	}
	return c.context
}

// Handler is the function called to pass control to the next middleware.
type Handler func(*Context) error

// Middleware intercepts requests on their way into a session start.
// Returning an error stops the chain.
type Middleware interface {
	// Name identifies the middleware in logs.
	Name() string

	// Execute runs the middleware logic and calls next to continue.
	Execute(ctx *Context, next Handler) error
}

// Chain is a sequence of middlewares executed in order around a final
// handler.
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a chain from the given middlewares.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use appends a middleware to the chain.
func (c *Chain) Use(m Middleware) *Chain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// Execute runs the chain, then the final handler.
func (c *Chain) Execute(ctx *Context, finalHandler Handler) error {
	return c.execute(ctx, 0, finalHandler)
}

func (c *Chain) execute(ctx *Context, index int, finalHandler Handler) error {
	if index >= len(c.middlewares) {
		return finalHandler(ctx)
	}
	next := func(ctx *Context) error {
		return c.execute(ctx, index+1, finalHandler)
	}
	return c.middlewares[index].Execute(ctx, next)
}
