package limiter

import (
	"errors"
	"sync"
	"testing"

	gferrors "github.com/sweetpotato0/gramflow/errors"
	"github.com/sweetpotato0/gramflow/middleware"
)

func TestLimiterRate(t *testing.T) {
	t.Run("allows requests within burst", func(t *testing.T) {
		limiter := New(1, 2, 0)
		ctx := &middleware.Context{}

		for i := 0; i < 2; i++ {
			if err := limiter.Execute(ctx, func(c *middleware.Context) error { return nil }); err != nil {
				t.Errorf("request %d failed: %v", i, err)
			}
		}
	})

	t.Run("rejects requests beyond burst", func(t *testing.T) {
		limiter := New(0.001, 1, 0)
		ctx := &middleware.Context{}

		limiter.Execute(ctx, func(c *middleware.Context) error { return nil })
		err := limiter.Execute(ctx, func(c *middleware.Context) error { return nil })
		if !errors.Is(err, gferrors.ErrRateLimited) {
			t.Errorf("expected ErrRateLimited, got %v", err)
		}
	})

	t.Run("zero rate means unlimited", func(t *testing.T) {
		limiter := New(0, 0, 0)
		ctx := &middleware.Context{}

		for i := 0; i < 100; i++ {
			if err := limiter.Execute(ctx, func(c *middleware.Context) error { return nil }); err != nil {
				t.Fatalf("request %d failed: %v", i, err)
			}
		}
	})
}

func TestLimiterConcurrency(t *testing.T) {
	limiter := New(0, 0, 1)
	ctx := &middleware.Context{}

	hold := make(chan struct{})
	started := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		firstErr = limiter.Execute(ctx, func(c *middleware.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()

	<-started
	if limiter.Active() != 1 {
		t.Errorf("Active = %d, want 1", limiter.Active())
	}

	// Second chain must be rejected while the first holds the slot.
	err := limiter.Execute(ctx, func(c *middleware.Context) error { return nil })
	if !errors.Is(err, gferrors.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}

	close(hold)
	wg.Wait()
	if firstErr != nil {
		t.Errorf("first chain failed: %v", firstErr)
	}

	// Slot freed; a new chain is admitted.
	if err := limiter.Execute(ctx, func(c *middleware.Context) error { return nil }); err != nil {
		t.Errorf("request after release failed: %v", err)
	}
}
