package realtime

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// withRetry runs fn with exponential backoff, bounding each attempt by
// perAttempt and the whole sequence by ctx. Used for durable writes that
// must not be given up after a single transient store error, but must also
// never retry unboundedly.
func withRetry(ctx context.Context, maxAttempts uint64, initial, perAttempt time.Duration, fn func(context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initial
	policy.MaxInterval = 2 * time.Second

	attempt := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, perAttempt)
		defer cancel()
		return fn(attemptCtx)
	}

	bounded := backoff.WithContext(backoff.WithMaxRetries(policy, maxAttempts-1), ctx)
	return backoff.Retry(attempt, bounded)
}
