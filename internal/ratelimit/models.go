// Package ratelimit throttles expensive or spammable routes per caller using
// a sliding window, backed by process memory or Redis.
package ratelimit

import (
	"context"
	"time"
)

// Policy allows Limit requests per Window.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Result is the outcome of one check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// RetryAfter is how long a denied caller should wait, rounded up to
	// whole seconds.
	RetryAfter time.Duration
}

// Store records hits for key and decides whether the next one fits policy.
type Store interface {
	Allow(ctx context.Context, key string, policy Policy) (*Result, error)
}

// retryAfter rounds the wait until resetAt up to whole seconds, never
// below one.
func retryAfter(resetAt, now time.Time) time.Duration {
	d := resetAt.Sub(now)
	if d <= time.Second {
		return time.Second
	}
	return (d + time.Second - 1) / time.Second * time.Second
}
