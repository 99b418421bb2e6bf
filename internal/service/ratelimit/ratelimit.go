package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultPerMinute is the subscribe threshold when none is configured.
const DefaultPerMinute = 5

// UnknownIdentity is used when the request carries no forwarded-for hop.
const UnknownIdentity = "unknown"

// Counter atomically increments the count for (identity, window) and
// returns the post-increment value. A missing counter starts at 1.
type Counter interface {
	Incr(ctx context.Context, identity string, window time.Time) (int64, error)
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	Count   int64
	Limit   int
	Window  time.Time
}

// Limiter applies a fixed per-minute threshold on top of a Counter.
type Limiter struct {
	counter Counter
	limit   int
	now     func() time.Time
}

// NewLimiter creates a limiter. perMinute <= 0 selects DefaultPerMinute.
func NewLimiter(counter Counter, perMinute int) *Limiter {
	if perMinute <= 0 {
		perMinute = DefaultPerMinute
	}
	return &Limiter{counter: counter, limit: perMinute, now: time.Now}
}

// Allow counts one attempt for identity in the current minute and reports
// whether it stays within the threshold.
func (l *Limiter) Allow(ctx context.Context, identity string) (Decision, error) {
	window := WindowStart(l.now())
	n, err := l.counter.Incr(ctx, identity, window)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit increment: %w", err)
	}
	return Decision{Allowed: n <= int64(l.limit), Count: n, Limit: l.limit, Window: window}, nil
}

// WindowStart floors t to the minute in UTC.
func WindowStart(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

// IdentityFromForwardedFor returns the first hop of an X-Forwarded-For
// value, or UnknownIdentity.
func IdentityFromForwardedFor(xff string) string {
	first, _, _ := strings.Cut(xff, ",")
	if first = strings.TrimSpace(first); first != "" {
		return first
	}
	return UnknownIdentity
}
