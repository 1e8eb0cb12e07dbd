package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

func newBackOff(cfg RetryConfig) backoff.BackOff {
	if cfg.InitialWait <= 0 {
		return &backoff.ZeroBackOff{}
	}
	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}
	maxWait := cfg.MaxWait
	if maxWait < cfg.InitialWait {
		maxWait = cfg.InitialWait
	}
	return &backoff.ExponentialBackOff{
		InitialInterval:     cfg.InitialWait,
		RandomizationFactor: 0,
		Multiplier:          mult,
		MaxInterval:         maxWait,
	}
}

// retry runs op until it succeeds, returns a backoff.Permanent error, or
// MaxAttempts is reached. The last failure is returned unwrapped.
func retry[T any](ctx context.Context, cfg RetryConfig, op backoff.Operation[T], onRetry func(err error, wait time.Duration)) (T, error) {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	opts := []backoff.RetryOption{
		backoff.WithBackOff(newBackOff(cfg)),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if onRetry != nil {
		opts = append(opts, backoff.WithNotify(onRetry))
	}

	res, err := backoff.Retry(ctx, op, opts...)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	return res, err
}
