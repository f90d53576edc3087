// Package ratelimiter throttles requests sent to remote backends.
package ratelimiter

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// unlimited stands in for rate.Inf, whose Wait and Tokens semantics differ
// from a finite limit.
const unlimited = 1_000_000_000

// RateLimiter gates backend requests with a token bucket.
//
// A nil *RateLimiter never blocks, so callers can hold an optional limiter
// without branching on configuration.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerSecond sustained and burst
// requests at once. A zero rate disables limiting. A zero burst defaults
// to the rate.
//
// Example:
//
//	// 100 req/s, bursts of 200
//	limiter := New(100, 200)
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		requestsPerSecond = unlimited
		burst = unlimited
	}
	if burst == 0 {
		burst = requestsPerSecond
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Wait blocks until a request may be sent or ctx is done.
//
// Returns:
//   - nil if a token was acquired
//   - an error wrapping the context error otherwise
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return ctx.Err()
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Allow reports whether a request may be sent now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}

// SetLimit changes the sustained rate. A zero rate disables limiting.
func (r *RateLimiter) SetLimit(requestsPerSecond uint) {
	if requestsPerSecond == 0 {
		requestsPerSecond = unlimited
	}
	r.limiter.SetLimit(rate.Limit(requestsPerSecond))
	if uint(r.limiter.Burst()) < requestsPerSecond {
		r.limiter.SetBurst(int(requestsPerSecond))
	}
}

// Tokens returns the number of requests that may currently be sent
// without waiting. The value is a snapshot.
func (r *RateLimiter) Tokens() float64 {
	if r == nil {
		return unlimited
	}
	return r.limiter.Tokens()
}
