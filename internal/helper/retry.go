package helper

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

var (
	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 5 * time.Second
)

// CallOptions bound a single call to an external service.
type CallOptions struct {
	Timeout    time.Duration
	MaxRetries int
}

// Call runs fn with a per-attempt timeout and retries failed attempts with
// exponential backoff. Cancellation of ctx stops retrying.
func Call[T any](ctx context.Context, name string, opts CallOptions, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	op := func() (T, error) {
		attempt++
		callCtx, cancel := withTimeout(ctx, opts.Timeout)
		defer cancel()

		v, err := fn(callCtx)
		if err != nil {
			if ctx.Err() != nil {
				return v, backoff.Permanent(err)
			}
			log.Debug().Err(err).Str("call", name).Int("attempt", attempt).Msg("Call failed")
		}
		return v, err
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(retryInitialInterval),
		backoff.WithMaxInterval(retryMaxInterval),
		backoff.WithMaxElapsedTime(0),
	)
	retries := max(opts.MaxRetries, 0)
	return backoff.RetryWithData(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx))
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
