package sync

import (
	"context"
	"time"

	apperrors "github.com/lodestone-crm/lodestone-backend/internal/errors"
)

// RetryPolicy is the bounded retry schedule applied to transient provider
// failures within a single sync. The delays are data so tests can run with
// zeros and the schedule stays inspectable.
type RetryPolicy struct {
	Delays []time.Duration
}

// DefaultRetryPolicy doubles the base delay per attempt, three retries.
func DefaultRetryPolicy(base time.Duration) RetryPolicy {
	return RetryPolicy{Delays: []time.Duration{base, 2 * base, 4 * base}}
}

// Run invokes fn, retrying after each configured delay as long as the
// failure is transient. Credential, cursor and constraint failures pass
// through immediately.
func (p RetryPolicy) Run(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !apperrors.IsTransient(err) {
			return err
		}
		if attempt >= len(p.Delays) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delays[attempt]):
		}
	}
}

// Backoff returns the scheduling delay after n consecutive failed syncs:
// base doubled per failure, capped at max. The sequence is strictly
// non-decreasing, which keeps a flapping account from hammering a provider.
func Backoff(base time.Duration, failures int, max time.Duration) time.Duration {
	if failures < 1 {
		failures = 1
	}
	delay := base
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
