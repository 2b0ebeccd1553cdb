package newsapi

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// defaultMaxAttempts is the number of tries before Retry gives up.
	defaultMaxAttempts = 3

	// baseDelay is the starting backoff interval (before jitter).
	baseDelay = 500 * time.Millisecond

	// maxDelay caps the backoff interval.
	maxDelay = 5 * time.Second
)

// Retry executes fn up to maxAttempts times with exponential backoff and
// jitter, retrying only transport failures. Status and decode errors are
// returned immediately since repeating the same request cannot change them.
func Retry(ctx context.Context, maxAttempts int, fn func() error) error {
	return retryWith(ctx, maxAttempts, newBackOff(baseDelay, maxDelay), fn)
}

func retryWith(ctx context.Context, maxAttempts int, b backoff.BackOff, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn()
		if err != nil && !IsTransport(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(maxAttempts)))

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

// newBackOff returns an exponential policy doubling from initial up to maxInterval
// with 50% jitter.
func newBackOff(initial, maxInterval time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.Reset()
	return b
}
