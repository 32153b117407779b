package browser

import (
	"context"
	"time"
)

// RetryPolicy repeats a probe until it reports done, the attempts run
// out, or the context is canceled.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// Do invokes fn up to MaxAttempts times. fn returns done=true to stop
// early; its last error is returned when all attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) (bool, error)) (bool, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 && p.Interval > 0 {
			select {
			case <-time.After(p.Interval):
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
		done, err := fn(ctx)
		if done {
			return true, err
		}
		lastErr = err
	}
	return false, lastErr
}
