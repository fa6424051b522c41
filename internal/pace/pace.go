// Package pace spaces outgoing requests the way a human browsing session
// would: a token-bucket floor on the request rate plus randomized delays
// between actions.
package pace

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// HumanDelay returns a random duration between min and max, inclusive of
// whole milliseconds at each end.
func HumanDelay(min, max time.Duration) time.Duration {
	lo := int64(math.Ceil(float64(min.Milliseconds())))
	hi := int64(math.Floor(float64(max.Milliseconds())))
	if hi <= lo {
		return time.Duration(lo) * time.Millisecond
	}
	return time.Duration(lo+rand.Int64N(hi-lo+1)) * time.Millisecond
}

// HumanSleep sleeps a HumanDelay between min and max, returning early on
// context cancellation. A zero max defaults to 2*min.
func HumanSleep(ctx context.Context, min, max time.Duration) error {
	if max == 0 {
		max = 2 * min
	}
	t := time.NewTimer(HumanDelay(min, max))
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Limiter combines a rate limit with a human jitter window. The crawl
// driver shares one per host.
type Limiter struct {
	limiter  *rate.Limiter
	minDelay time.Duration
	maxDelay time.Duration
}

// NewLimiter builds a limiter allowing rps requests per second with the
// given jitter window applied after each grant.
func NewLimiter(rps float64, burst int, minDelay, maxDelay time.Duration) *Limiter {
	return &Limiter{
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		minDelay: minDelay,
		maxDelay: maxDelay,
	}
}

// Wait blocks until the rate limit grants a slot, then applies the jitter
// delay.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return err
	}
	if l.minDelay > 0 {
		return HumanSleep(ctx, l.minDelay, l.maxDelay)
	}
	return nil
}
