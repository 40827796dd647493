// Package ratelimit implements a Valkey-backed fixed-window rate limiter.
// It guards abuse-prone, unauthenticated-adjacent operations (group joins,
// waiting-list requests) that fiber's in-memory API limiter does not cover on
// its own, since it resets per-process rather than per-identity across the
// fleet.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter enforces "at most N events per window" per key.
type Limiter struct {
	rdb    *redis.Client
	count  int
	window time.Duration
}

// New creates a Limiter allowing count events per window, per key.
func New(rdb *redis.Client, count int, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, count: count, window: window}
}

// Allow increments the counter for key and reports whether the caller is
// still within the configured budget for the current window. The window's
// expiry is only armed on the key's first increment, so later calls within
// the same window do not keep pushing the deadline back.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return count <= int64(l.count), nil
}
