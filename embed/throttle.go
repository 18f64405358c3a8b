package embed

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle spaces successive batches at least pause apart. The first Wait
// returns immediately. A nil Throttle or a zero pause never waits.
type Throttle struct {
	limiter *rate.Limiter
	pause   time.Duration
}

// NewThrottle creates a throttle with the given pause between batches.
func NewThrottle(pause time.Duration) *Throttle {
	if pause <= 0 {
		return &Throttle{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Throttle{
		limiter: rate.NewLimiter(rate.Every(pause), 1),
		pause:   pause,
	}
}

// Pause returns the configured interval.
func (t *Throttle) Pause() time.Duration {
	if t == nil {
		return 0
	}
	return t.pause
}

// Wait blocks until the next batch may start or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return ctx.Err()
	}
	return t.limiter.Wait(ctx)
}
