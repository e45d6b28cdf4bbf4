// Package ratelimit implements fixed-window admission counting.
//
// Simple and memory-efficient but can allow 2x burst at window boundaries;
// that trade-off is accepted here in exchange for bounded state.
package ratelimit

import (
	"context"
	"time"
)

// DefaultWindow is the counting interval used by the service limiters.
const DefaultWindow = time.Minute

// CounterStore records one admission attempt for key inside the window
// starting at windowStart and reports whether the attempt is admitted under
// limit. Implementations must make the read-check-increment atomic per key.
type CounterStore interface {
	Incr(ctx context.Context, key string, windowStart time.Time, window time.Duration, limit int) (bool, error)
}

// Limiter is a named fixed-window rate limiter over per-key counters.
// A counter from a stale window is replaced, never accumulated, so the
// first attempt of a fresh window is always admitted.
type Limiter struct {
	name   string
	limit  int
	window time.Duration
	store  CounterStore
	now    func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter. Counters are namespaced by name so independent
// limiters can share one store.
func New(name string, limit int, window time.Duration, store CounterStore, opts ...Option) *Limiter {
	if limit <= 0 {
		panic("ratelimit: limit must be positive")
	}
	if window <= 0 {
		panic("ratelimit: window must be positive")
	}
	l := &Limiter{
		name:   name,
		limit:  limit,
		window: window,
		store:  store,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the limiter's name.
func (l *Limiter) Name() string { return l.name }

// Consume charges one attempt for key against the current window.
// It returns true when the attempt is admitted. A rejected attempt is not
// counted against the window.
func (l *Limiter) Consume(ctx context.Context, key string) (bool, error) {
	windowStart := l.now().Truncate(l.window)
	return l.store.Incr(ctx, l.name+":"+key, windowStart, l.window, l.limit)
}
