package wait

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
)

func TestRetryOnStale(t *testing.T) {
	t.Run("fails immediately on a non-stale error", func(t *testing.T) {
		calls := 0
		notFound := &driver.ElementNotFoundError{Locator: "css=#save"}
		_, err := RetryOnStale(context.Background(), func(ctx context.Context) (string, error) {
			calls++
			return "", notFound
		}, WithBackoff(time.Millisecond))

		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, err, notFound)
	})

	t.Run("succeeds on the third attempt after two stale failures", func(t *testing.T) {
		calls := 0
		v, err := RetryOnStale(context.Background(), func(ctx context.Context) (string, error) {
			calls++
			if calls <= 2 {
				return "", fmt.Errorf("click: %w", driver.ErrStale)
			}
			return "clicked", nil
		}, WithAttempts(3), WithBackoff(time.Millisecond))

		require.NoError(t, err)
		assert.Equal(t, "clicked", v)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up with a StaleReferenceError", func(t *testing.T) {
		calls := 0
		err := RetryOnStaleErr(context.Background(), func(ctx context.Context) error {
			calls++
			return driver.ErrStale
		}, WithBackoff(time.Millisecond), Named("read chip label"))

		var sre *driver.StaleReferenceError
		require.ErrorAs(t, err, &sre)
		assert.Equal(t, DefaultRetryAttempts, calls)
		assert.Equal(t, "read chip label", sre.Op)
		assert.Equal(t, DefaultRetryAttempts, sre.Attempts)
	})

	t.Run("waits the backoff between attempts", func(t *testing.T) {
		start := time.Now()
		_ = RetryOnStaleErr(context.Background(), func(ctx context.Context) error {
			return driver.ErrStale
		}, WithAttempts(3), WithBackoff(30*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	})

	t.Run("honours cancellation during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		err := RetryOnStaleErr(ctx, func(ctx context.Context) error {
			cancel()
			return driver.ErrStale
		}, WithBackoff(time.Hour))
		assert.True(t, errors.Is(err, context.Canceled))
	})
}
