// Package retry runs idempotent operations with a fixed attempt budget and a
// constant delay between attempts.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxAttempts = 3
	DefaultDelay       = time.Second
)

type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean DefaultMaxAttempts.
	MaxAttempts int
	Delay       time.Duration
	// Retryable decides whether an error is worth another attempt. Nil retries everything.
	Retryable func(error) bool
	// OnRetry is called before sleeping, with the 1-based attempt that just failed.
	OnRetry func(attempt int, err error, wait time.Duration)
	// Name labels log lines.
	Name string
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultDelay}
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempt
// budget runs out, or ctx is done. On exhaustion the last error is returned
// unwrapped so callers can still match it.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	b = backoff.WithMaxRetries(b, uint64(p.attempts()-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	op := func() (T, error) {
		attempt++
		v, err := fn(ctx)
		if err != nil && p.Retryable != nil && !p.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		log.Debug().
			Str("component", "retry").
			Str("op", p.Name).
			Int("attempt", attempt).
			Int("max_attempts", p.attempts()).
			Dur("wait", wait).
			Err(err).
			Msg("attempt failed, retrying")
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
	}
	return backoff.RetryNotifyWithData(op, b, notify)
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
