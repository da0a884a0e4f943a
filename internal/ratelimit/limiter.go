// Package ratelimit provides fixed-window counters used to throttle login attempts.
package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrCapacity is returned by the memory limiter when it tracks too many keys.
var ErrCapacity = errors.New("rate limiter capacity exceeded")

// Decision reports the state of a key after one attempt was counted.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the wait until the window resets, rounded up to whole seconds.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	if rounded := wait.Truncate(time.Second); rounded != wait {
		return rounded + time.Second
	}
	return wait
}

// Limiter counts attempts per key within a window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
	// Reset forgets a key, for example after a successful login.
	Reset(ctx context.Context, key string) error
}

// LoginKey scopes login attempts to a client address and a normalized email.
func LoginKey(ip, email string) string {
	return "login:" + strings.TrimSpace(ip) + ":" + strings.ToLower(strings.TrimSpace(email))
}
