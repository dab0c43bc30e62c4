// Package retry wraps startup connections in exponential backoff. It is only
// used at process start; request paths never retry.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxElapsed bounds how long a dependency may take to come up.
const DefaultMaxElapsed = 30 * time.Second

// Connect calls fn until it succeeds, ctx is done, or maxElapsed passes.
func Connect[T any](ctx context.Context, logger *slog.Logger, name string, maxElapsed time.Duration, fn func(context.Context) (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = maxElapsed

	attempt := 0
	return backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		return fn(ctx)
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		if logger != nil {
			logger.WarnContext(ctx, "dependency not ready, retrying",
				"dependency", name,
				"attempt", attempt,
				"wait", wait.String(),
				"error", err,
			)
		}
	})
}
