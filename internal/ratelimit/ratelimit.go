// Package ratelimit implements fixed-window request limits.
//
// FIXED WINDOW:
// Each key (usually a client IP) gets `limit` requests per `window`. The
// first request opens a window; once the count reaches the limit, further
// requests are refused until the window ends. Simple, cheap, and good enough
// to slow down password guessing on the auth endpoints.
//
// Two implementations:
//   - Memory: a mutex-guarded map, for a single process or when Redis is absent
//   - Redis:  INCR + EXPIRE on a shared key, so several API replicas share one budget
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // only meaningful when !Allowed
}

// Limiter decides whether the request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
