// Package ratelimit paces outgoing API calls with a client-side token bucket.
//
// The budget is deliberately smaller than the upstream service's published
// throttle (configure ~80% of the known ceiling) so legitimate callers rarely
// see a 429 at all. Refill is continuous: golang.org/x/time/rate adds
// elapsed×rate tokens lazily, capped at the bucket capacity.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps a token bucket. One instance is shared by every concurrent
// gateway call; Acquire suspends cooperatively instead of busy-waiting.
type Limiter struct {
	bucket *rate.Limiter
}

// New creates a limiter refilling at requestsPerSecond with the given burst
// capacity. Non-positive values disable throttling (an unbounded bucket),
// which keeps test and offline configurations simple.
func New(requestsPerSecond float64, capacity int) *Limiter {
	if requestsPerSecond <= 0 || capacity <= 0 {
		return &Limiter{bucket: rate.NewLimiter(rate.Inf, 0)}
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(requestsPerSecond), capacity)}
}

// Acquire blocks until one token is available, then consumes it. If ctx
// expires first, no token is consumed and the context error is returned.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}

// Tokens reports the currently available tokens. Observability only.
func (l *Limiter) Tokens() float64 {
	return l.bucket.Tokens()
}
