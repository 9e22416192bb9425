// File: internal/wait/wait.go

// Package wait polls conditions against a live, asynchronously rendering UI.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
)

const (
	// DefaultTimeout is the library-wide budget when a call site does not override it.
	DefaultTimeout = 20 * time.Second
	// DefaultInterval is the default pause between polls.
	DefaultInterval = 250 * time.Millisecond
)

// Condition is evaluated on every poll. ok=false means "not satisfied yet".
// A transient error (see driver.IsTransient) also means "keep polling"; any
// other error ends the wait immediately.
type Condition[T any] func(ctx context.Context) (value T, ok bool, err error)

type options struct {
	timeout  time.Duration
	interval time.Duration
}

// Option tunes a single wait.
type Option func(*options)

// WithTimeout overrides the total budget. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithInterval overrides the poll interval. Non-positive values keep the default.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{timeout: DefaultTimeout, interval: DefaultInterval}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Await evaluates cond immediately and then once per interval until it is
// satisfied or the timeout elapses, in which case a *driver.TimeoutError
// naming description is returned.
func Await[T any](ctx context.Context, description string, cond Condition[T], opts ...Option) (T, error) {
	var zero T
	o := buildOptions(opts)
	start := time.Now()

	pollCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	// Burst of one lets the first poll through immediately.
	limiter := rate.NewLimiter(rate.Every(o.interval), 1)
	var lastErr error

	for {
		if err := limiter.Wait(pollCtx); err != nil {
			if ctx.Err() != nil {
				return zero, fmt.Errorf("wait for %s cancelled: %w", description, ctx.Err())
			}
			// The next reservation would overshoot the deadline. Sit out the
			// rest of the budget and give the condition one final chance.
			if deadline, ok := pollCtx.Deadline(); ok {
				if err := Sleep(ctx, time.Until(deadline)); err != nil {
					return zero, fmt.Errorf("wait for %s cancelled: %w", description, err)
				}
			}
			v, ok, cerr := finalPoll(ctx, cond, o.interval)
			switch {
			case cerr == nil && ok:
				return v, nil
			case cerr != nil && !driver.IsTransient(cerr) && !errors.Is(cerr, context.DeadlineExceeded):
				return zero, cerr
			case cerr != nil:
				lastErr = cerr
			}
			return zero, &driver.TimeoutError{Condition: description, Elapsed: time.Since(start), Last: lastErr}
		}

		v, ok, err := cond(pollCtx)
		switch {
		case err == nil && ok:
			return v, nil
		case err == nil:
			continue
		case driver.IsTransient(err):
			lastErr = err
		case pollCtx.Err() != nil:
			if ctx.Err() != nil {
				return zero, fmt.Errorf("wait for %s cancelled: %w", description, ctx.Err())
			}
			// A driver call ran into the wait's own deadline.
			return zero, &driver.TimeoutError{Condition: description, Elapsed: time.Since(start), Last: lastErr}
		default:
			return zero, err
		}
	}
}

// finalPoll runs cond once more after the wait's own deadline has passed,
// bounded by one interval.
func finalPoll[T any](ctx context.Context, cond Condition[T], interval time.Duration) (T, bool, error) {
	fctx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()
	return cond(fctx)
}

// Until is Await for conditions without a value.
func Until(ctx context.Context, description string, cond func(ctx context.Context) (bool, error), opts ...Option) error {
	_, err := Await(ctx, description, func(ctx context.Context) (struct{}, bool, error) {
		ok, err := cond(ctx)
		return struct{}{}, ok, err
	}, opts...)
	return err
}

// IsTimeout reports whether err is a *driver.TimeoutError.
func IsTimeout(err error) bool {
	var te *driver.TimeoutError
	return errors.As(err, &te)
}

// Sleep pauses for d unless ctx ends first. It is used for documented settle
// delays where the UI exposes no observable completion signal.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
