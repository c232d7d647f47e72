package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig holds the parameters for the retry strategy.
// MaxAttempts of 1 (or less) means a single attempt and no retry.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Logger      *Logger
}

// Permanent marks err as not worth retrying; Do returns it unwrapped.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do executes fn with exponential back-off retry logic.
func (r *RetryConfig) Do(ctx context.Context, operationName string, fn func() error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	if attempts == 1 {
		return unwrapPermanent(fn())
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.BaseDelay
	if exp.InitialInterval <= 0 {
		exp.InitialInterval = 500 * time.Millisecond
	}
	exp.Multiplier = 2
	exp.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		return fn()
	}, b, func(err error, delay time.Duration) {
		if r.Logger != nil {
			r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v, retrying in %v",
				operationName, attempt, attempts, err, delay)
		}
	})
	if err == nil {
		return nil
	}

	if perm, ok := err.(*backoff.PermanentError); ok {
		return perm.Err
	}
	if attempt < attempts {
		return err
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operationName, attempts, err)
}

func unwrapPermanent(err error) error {
	if perm, ok := err.(*backoff.PermanentError); ok {
		return perm.Err
	}
	return err
}
