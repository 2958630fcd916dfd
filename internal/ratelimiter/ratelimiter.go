// Package ratelimiter throttles outbound calls to federated sources.
//
// Each source gets its own token bucket (golang.org/x/time/rate) so one
// chatty query cannot starve the others. A zero rate disables limiting.
package ratelimiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter is a single token bucket.
//
// Thread safety: all methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerSecond sustained with bursts of
// up to burst requests. requestsPerSecond = 0 means unlimited. A burst
// below one is raised to one so Wait can ever succeed.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	if burst == 0 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow consumes a token if one is available without waiting.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx ends.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Unlimited reports whether the limiter lets everything through.
func (r *RateLimiter) Unlimited() bool {
	return r.limiter.Limit() == rate.Inf
}

// Group hands out one limiter per key, created on first use with the
// group's rate and burst.
type Group struct {
	requestsPerSecond uint
	burst             uint

	mu       sync.Mutex
	limiters map[string]*RateLimiter
}

// NewGroup creates a group whose limiters all share the same settings.
func NewGroup(requestsPerSecond, burst uint) *Group {
	return &Group{
		requestsPerSecond: requestsPerSecond,
		burst:             burst,
		limiters:          make(map[string]*RateLimiter),
	}
}

// Get returns the limiter for key, creating it if needed.
func (g *Group) Get(key string) *RateLimiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.limiters[key]
	if !ok {
		l = New(g.requestsPerSecond, g.burst)
		g.limiters[key] = l
	}
	return l
}

// Wait blocks until key's limiter grants a token. A nil group never blocks.
func (g *Group) Wait(ctx context.Context, key string) error {
	if g == nil || g.requestsPerSecond == 0 {
		return ctx.Err()
	}
	return g.Get(key).Wait(ctx)
}

// Forget drops the limiter of a key that no longer exists.
func (g *Group) Forget(key string) {
	g.mu.Lock()
	delete(g.limiters, key)
	g.mu.Unlock()
}
