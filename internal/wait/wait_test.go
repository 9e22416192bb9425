package wait

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
)

func TestAwait(t *testing.T) {
	t.Run("returns the satisfying value once the condition holds", func(t *testing.T) {
		var polls atomic.Int32
		v, err := Await(context.Background(), "counter reaches 3", func(ctx context.Context) (int, bool, error) {
			n := int(polls.Add(1))
			return n, n >= 3, nil
		}, WithTimeout(2*time.Second), WithInterval(5*time.Millisecond))

		require.NoError(t, err)
		assert.Equal(t, 3, v)
		assert.Equal(t, int32(3), polls.Load())
	})

	t.Run("polls immediately before the first interval", func(t *testing.T) {
		start := time.Now()
		_, err := Await(context.Background(), "ready", func(ctx context.Context) (bool, bool, error) {
			return true, true, nil
		}, WithInterval(time.Second))
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("times out with a typed error after roughly the budget", func(t *testing.T) {
		const budget = 150 * time.Millisecond
		const interval = 10 * time.Millisecond
		start := time.Now()
		_, err := Await(context.Background(), "never", func(ctx context.Context) (string, bool, error) {
			return "", false, nil
		}, WithTimeout(budget), WithInterval(interval))
		elapsed := time.Since(start)

		var te *driver.TimeoutError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "never", te.Condition)
		assert.GreaterOrEqual(t, elapsed, budget)
		assert.Less(t, elapsed, budget+500*time.Millisecond)
		assert.True(t, IsTimeout(err))
	})

	t.Run("checks once more at the deadline when the interval overshoots it", func(t *testing.T) {
		const budget = 100 * time.Millisecond
		start := time.Now()
		v, err := Await(context.Background(), "late commit", func(ctx context.Context) (string, bool, error) {
			if time.Since(start) < 95*time.Millisecond {
				return "", false, nil
			}
			return "committed", true, nil
		}, WithTimeout(budget), WithInterval(80*time.Millisecond))

		require.NoError(t, err)
		assert.Equal(t, "committed", v)
		assert.GreaterOrEqual(t, time.Since(start), 95*time.Millisecond)
	})

	t.Run("treats transient errors as not yet satisfied", func(t *testing.T) {
		var polls atomic.Int32
		v, err := Await(context.Background(), "popup rendered", func(ctx context.Context) (string, bool, error) {
			switch polls.Add(1) {
			case 1:
				return "", false, fmt.Errorf("read text: %w", driver.ErrStale)
			case 2:
				return "", false, &driver.ElementNotFoundError{Locator: "css=.e-popup"}
			default:
				return "open", true, nil
			}
		}, WithTimeout(time.Second), WithInterval(5*time.Millisecond))

		require.NoError(t, err)
		assert.Equal(t, "open", v)
	})

	t.Run("keeps the last transient cause on timeout", func(t *testing.T) {
		_, err := Await(context.Background(), "chip gone", func(ctx context.Context) (int, bool, error) {
			return 0, false, driver.ErrNotInteractable
		}, WithTimeout(50*time.Millisecond), WithInterval(5*time.Millisecond))
		assert.ErrorIs(t, err, driver.ErrNotInteractable)
	})

	t.Run("propagates programming errors immediately", func(t *testing.T) {
		bug := errors.New("selector syntax error")
		var polls atomic.Int32
		start := time.Now()
		_, err := Await(context.Background(), "broken", func(ctx context.Context) (int, bool, error) {
			polls.Add(1)
			return 0, false, bug
		}, WithTimeout(5*time.Second))

		assert.ErrorIs(t, err, bug)
		assert.Equal(t, int32(1), polls.Load())
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("stops when the caller cancels", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		err := Until(ctx, "forever", func(ctx context.Context) (bool, error) { return false, nil },
			WithTimeout(5*time.Second), WithInterval(5*time.Millisecond))

		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, IsTimeout(err))
	})
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

func TestTimeoutsWithDefaults(t *testing.T) {
	got := Timeouts{Short: time.Second}.WithDefaults()
	assert.Equal(t, time.Second, got.Short)
	assert.Equal(t, 2*time.Second, got.Tiny)
	assert.Equal(t, 60*time.Second, got.Long)
	assert.Equal(t, DefaultTimeout, got.Default)
	assert.Len(t, got.Opts(time.Second), 2)
}
