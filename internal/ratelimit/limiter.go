// Package ratelimit backs the auth.RateLimiter capability with a Redis
// fixed-window counter: atomic increment plus a TTL set on the first
// hit of each window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"crewdock.org/internal/auth"
)

const (
	// DefaultMax is the number of calls allowed per window.
	DefaultMax = 10
	// DefaultWindow is the fixed counting window.
	DefaultWindow = time.Minute
)

// Limiter counts calls per (route, identifier) key in Redis.
type Limiter struct {
	client *redis.Client
	max    int64
	window time.Duration
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithMax sets the per-window allowance.
func WithMax(max int64) Option {
	return func(l *Limiter) { l.max = max }
}

// WithWindow sets the window length.
func WithWindow(window time.Duration) Option {
	return func(l *Limiter) { l.window = window }
}

// New builds a limiter over client.
func New(client *redis.Client, opts ...Option) *Limiter {
	l := &Limiter{client: client, max: DefaultMax, window: DefaultWindow}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow increments the counter for (route, identifier) and rejects the
// call once the window allowance is exhausted. Redis failures surface
// as wrapped errors, not as silent passes.
func (l *Limiter) Allow(ctx context.Context, route, identifier string) error {
	key := fmt.Sprintf("ratelimit:%s:%s", route, identifier)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("ratelimit: incr %s: %w", route, err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("ratelimit: expire %s: %w", route, err)
		}
	}
	if count > l.max {
		return auth.ErrRateLimited
	}
	return nil
}
