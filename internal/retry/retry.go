// Package retry wraps Cluster Client calls in a bounded-attempt, fixed
// backoff retry, in the style the wider example pack uses
// github.com/cenkalti/backoff for idempotent API retries.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultAttempts and DefaultBackoff match spec defaults: 3 attempts, 1s
// fixed backoff between them.
const (
	DefaultAttempts = 3
	DefaultBackoff  = time.Second
)

// Op is a cluster-client call worth retrying. It must be idempotent or
// recognisably safe to repeat.
type Op func(ctx context.Context) error

// Do invokes op, retrying up to attempts-1 additional times with a fixed
// backoff interval between tries on any error. attempts<=1 means op runs
// exactly once and is never retried. Context cancellation aborts
// immediately without swallowing the cancellation error.
func Do(ctx context.Context, attempts int, interval time.Duration, op Op) error {
	if attempts <= 1 {
		return op(ctx)
	}

	var lastErr error
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(attempts-1)), ctx)

	err := backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		lastErr = op(ctx)
		return lastErr
	}, b)

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("retry: all %d attempts failed: %w", attempts, lastErr)
	}
	return nil
}
