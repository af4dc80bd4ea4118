// Package limiter provides a rate limiting middleware for session starts:
// a token bucket for request rate plus a cap on concurrently running
// chains.
package limiter

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/time/rate"

	gferrors "github.com/sweetpotato0/gramflow/errors"
	"github.com/sweetpotato0/gramflow/middleware"
)

// Limiter rejects start requests that exceed the configured rate or the
// concurrency cap. Rejections fail fast with ErrRateLimited; nothing
// queues.
type Limiter struct {
	bucket        *rate.Limiter
	maxConcurrent int64
	active        atomic.Int64
}

// New creates a limiter allowing perSecond starts with the given burst.
// maxConcurrent caps chains running at once; zero means no cap.
func New(perSecond float64, burst, maxConcurrent int) *Limiter {
	var bucket *rate.Limiter
	if perSecond > 0 {
		bucket = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return &Limiter{
		bucket:        bucket,
		maxConcurrent: int64(maxConcurrent),
	}
}

// Name returns the middleware name.
func (m *Limiter) Name() string {
	return "Limiter"
}

// Execute admits the request or fails with ErrRateLimited. The
// concurrency slot is held until the rest of the chain returns.
func (m *Limiter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if m.bucket != nil && !m.bucket.Allow() {
		return fmt.Errorf("%w: request rate exceeded", gferrors.ErrRateLimited)
	}
	if m.maxConcurrent > 0 {
		if m.active.Add(1) > m.maxConcurrent {
			m.active.Add(-1)
			return fmt.Errorf("%w: %d runs already in flight", gferrors.ErrRateLimited, m.maxConcurrent)
		}
		defer m.active.Add(-1)
	}
	return next(ctx)
}

// Active returns the number of chains currently holding a slot.
func (m *Limiter) Active() int {
	return int(m.active.Load())
}
