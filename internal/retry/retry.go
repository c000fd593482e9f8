// Package retry runs external calls under an exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dvloznov/points-exporter/internal/config"
	"github.com/dvloznov/points-exporter/internal/logger"
)

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// NewBackOff builds the backoff for policy, bound to ctx.
func NewBackOff(ctx context.Context, policy config.Retry) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}
	b.MaxElapsedTime = policy.MaxElapsed
	b.Reset()
	return backoff.WithContext(b, ctx)
}

// Do calls fn until it succeeds, returns a permanent error, or the policy
// gives up. Each failed attempt is logged at WARN with op.
func Do(ctx context.Context, policy config.Retry, op string, fn func() error) error {
	log := logger.FromContext(ctx)
	attempt := 0

	err := backoff.RetryNotify(func() error {
		attempt++
		return fn()
	}, NewBackOff(ctx, policy), func(err error, next time.Duration) {
		log.Warn().Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("retry_in", next).
			Msg("Retrying failed call")
	})

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
