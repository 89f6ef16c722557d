// Package retry runs an operation through an explicit bounded attempt loop.
// The ceiling is visible in the policy, so a misbehaving provider can never
// drive unbounded recursion.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

type Action int

const (
	Stop  Action = iota // permanent error, abort immediately
	Retry               // transient error, retry after the decision's delay
)

// Decision tells the loop what to do with a failed attempt. Delay is waited
// before the next attempt; OnRetry (when set) runs first, for repair work
// such as forcing a token refresh.
type Decision struct {
	Action  Action
	Delay   time.Duration
	OnRetry func(ctx context.Context) error
}

// Classify maps an attempt's error to a Decision.
type Classify func(err error) Decision

type Policy struct {
	// MaxAttempts bounds the loop; the operation runs at most this many times.
	MaxAttempts int
}

// Do runs op up to p.MaxAttempts times. The final attempt's error is returned
// unwrapped so callers can map it to their own taxonomy.
func Do[T any](ctx context.Context, clock clockwork.Clock, p Policy, classify Classify, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts < 1 {
		return zero, fmt.Errorf("retry: MaxAttempts must be >= 1, got %d", p.MaxAttempts)
	}

	var err error
	for attempt := 1; ; attempt++ {
		var val T
		val, err = op(ctx)
		if err == nil {
			return val, nil
		}

		d := classify(err)
		if d.Action == Stop || attempt == p.MaxAttempts {
			return zero, err
		}

		if d.OnRetry != nil {
			if repairErr := d.OnRetry(ctx); repairErr != nil {
				return zero, repairErr
			}
		}

		if d.Delay > 0 {
			select {
			case <-clock.After(d.Delay):
			case <-ctx.Done():
				return zero, fmt.Errorf("retry: context cancelled during backoff: %w", ctx.Err())
			}
		}
	}
}
