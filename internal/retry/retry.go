// Package retry runs calls against remote services with jittered exponential
// backoff. Errors opt in to a retry by implementing Retryable() bool.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Policy bounds the attempts and the backoff between them.
type Policy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// Default is used for the search index.
var Default = Policy{Attempts: 3, Base: time.Second, Max: 30 * time.Second}

// IsRetryable reports whether err, or anything it wraps, marks itself as
// transient.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}

// Backoff returns the wait before retry n (0-indexed): Base doubled n times,
// capped at Max, plus up to half of that again as jitter.
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.Base << uint(attempt)
	if d <= 0 || d > p.Max {
		d = p.Max
	}
	if half := int64(d) / 2; half > 0 {
		d += time.Duration(rand.Int64N(half))
	}
	return d
}

// Do calls fn until it succeeds, fails with a non-retryable error or the
// attempts run out. The last error is returned.
func (p Policy) Do(ctx context.Context, log *slog.Logger, op string, fn func() error) error {
	attempts := max(p.Attempts, 1)
	var lastErr error
	for attempt := range attempts {
		lastErr = fn()
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}
		log.Warn("retryable error", "op", op, "attempt", attempt+1, "error", lastErr)
		select {
		case <-time.After(p.Backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
