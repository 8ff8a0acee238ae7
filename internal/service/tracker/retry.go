package tracker

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retry runs op up to attempts times with exponential backoff starting at initial.
// It gives up early when ctx is done.
func retry(ctx context.Context, attempts int, initial time.Duration, op func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initial
	policy.MaxInterval = 16 * initial
	policy.MaxElapsedTime = 0

	return backoff.Retry(
		func() error { return op(ctx) },
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx), //nolint:gosec // attempts >= 1.
	)
}

// withTimeout runs op with a per-attempt deadline.
func withTimeout(timeout time.Duration, op func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return op(callCtx)
	}
}
