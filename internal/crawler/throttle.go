package crawler

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle spaces out fetch dispatches.
type Throttle interface {
	// Wait blocks until the next fetch may start or ctx is done.
	Wait(ctx context.Context) error
}

// DelayThrottle enforces a minimum interval between consecutive dispatches
// across all workers. The first dispatch is never delayed.
type DelayThrottle struct {
	limiter *rate.Limiter
}

// NewDelayThrottle creates a throttle allowing one dispatch per delay.
// A zero or negative delay disables throttling.
func NewDelayThrottle(delay time.Duration) *DelayThrottle {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &DelayThrottle{limiter: rate.NewLimiter(limit, 1)}
}

// Wait implements Throttle.
func (t *DelayThrottle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
