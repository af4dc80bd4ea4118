package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/sweetpotato0/gramflow/compare"
)

// testMiddleware records the order it ran in and can fail the chain.
type testMiddleware struct {
	name  string
	order *[]string
	err   error
}

func (m *testMiddleware) Name() string {
	return m.name
}

func (m *testMiddleware) Execute(ctx *Context, next Handler) error {
	*m.order = append(*m.order, m.name)
	if m.err != nil {
		return m.err
	}
	return next(ctx)
}

func TestChain(t *testing.T) {
	t.Run("empty chain executes final handler", func(t *testing.T) {
		chain := NewChain()
		executed := false

		err := chain.Execute(&Context{}, func(ctx *Context) error {
			executed = true
			return nil
		})

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if !executed {
			t.Error("final handler was not executed")
		}
	})

	t.Run("middlewares execute in order", func(t *testing.T) {
		order := []string{}
		m1 := &testMiddleware{name: "m1", order: &order}
		m2 := &testMiddleware{name: "m2", order: &order}

		chain := NewChain(m1).Use(m2)
		chain.Execute(&Context{}, func(c *Context) error {
			order = append(order, "final")
			return nil
		})

		expected := []string{"m1", "m2", "final"}
		if len(order) != len(expected) {
			t.Fatalf("expected %d steps, got %d: %v", len(expected), len(order), order)
		}
		for i, e := range expected {
			if order[i] != e {
				t.Errorf("step %d = %s, want %s", i, order[i], e)
			}
		}
	})

	t.Run("error stops chain execution", func(t *testing.T) {
		order := []string{}
		m1 := &testMiddleware{name: "m1", err: errors.New("test error"), order: &order}
		m2 := &testMiddleware{name: "m2", order: &order}

		chain := NewChain(m1, m2)
		finalCalled := false
		err := chain.Execute(&Context{}, func(c *Context) error {
			finalCalled = true
			return nil
		})

		if err == nil {
			t.Error("expected error from middleware")
		}
		if finalCalled {
			t.Error("final handler should not run after middleware error")
		}
		if len(order) != 1 {
			t.Errorf("m2 should not have run: %v", order)
		}
	})
}

func TestContext(t *testing.T) {
	t.Run("new context carries request and metadata", func(t *testing.T) {
		req := &compare.StartRequest{Prompt: "hello"}
		ctx := NewContext(context.Background(), req)

		if ctx.Request != req {
			t.Error("request not carried")
		}
		if ctx.Metadata == nil || len(ctx.Metadata) != 0 {
			t.Error("metadata should be empty but not nil")
		}
		if ctx.StartedAt.IsZero() {
			t.Error("StartedAt should be set")
		}
	})

	t.Run("underlying context is preserved", func(t *testing.T) {
		base := context.WithValue(context.Background(), testKey{}, "v")
		ctx := NewContext(base, nil)
		if ctx.Context() != base {
			t.Error("underlying context not preserved")
		}
	})

	t.Run("zero context falls back to background", func(t *testing.T) {
		var c Context
		if c.Context() == nil {
			t.Error("Context() should never be nil")
		}
	})
}

type testKey struct{}
