// File: internal/wait/retry.go
package wait

import (
	"context"
	"time"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
)

const (
	DefaultRetryAttempts = 3
	DefaultRetryBackoff  = 150 * time.Millisecond
)

type retryOptions struct {
	attempts int
	backoff  time.Duration
	op       string
}

// RetryOption tunes RetryOnStale.
type RetryOption func(*retryOptions)

// WithAttempts sets the maximum number of executions, including the first.
func WithAttempts(n int) RetryOption {
	return func(o *retryOptions) {
		if n > 0 {
			o.attempts = n
		}
	}
}

// WithBackoff sets the pause between stale attempts.
func WithBackoff(d time.Duration) RetryOption {
	return func(o *retryOptions) {
		if d >= 0 {
			o.backoff = d
		}
	}
}

// Named labels the operation in the error returned after exhaustion.
func Named(op string) RetryOption {
	return func(o *retryOptions) { o.op = op }
}

// RetryOnStale runs op and re-runs it only when it failed because an element
// handle went stale. Every other error is returned as-is on the spot.
func RetryOnStale[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts ...RetryOption) (T, error) {
	o := retryOptions{attempts: DefaultRetryAttempts, backoff: DefaultRetryBackoff, op: "operation"}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= o.attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !driver.IsStale(err) {
			return zero, err
		}
		lastErr = err
		if attempt < o.attempts {
			if err := Sleep(ctx, o.backoff); err != nil {
				return zero, err
			}
		}
	}
	return zero, &driver.StaleReferenceError{Op: o.op, Attempts: o.attempts, Err: lastErr}
}

// RetryOnStaleErr is RetryOnStale for operations without a result.
func RetryOnStaleErr(ctx context.Context, op func(ctx context.Context) error, opts ...RetryOption) error {
	_, err := RetryOnStale(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}
