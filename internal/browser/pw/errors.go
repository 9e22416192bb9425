// File: internal/browser/pw/errors.go
package pw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/browser/script"
)

// Playwright messages that mean the handle no longer points into the page.
var staleMessages = []string{
	"Element is not attached to the DOM",
	"not attached",
	"is disposed",
	"Execution context was destroyed",
	"Cannot find context with specified id",
	"Target page, context or browser has been closed",
}

// Actionability failures reported by Playwright's auto-wait.
var blockedMessages = []string{
	"intercepts pointer events",
	"element is not visible",
	"element is not enabled",
	"element is not stable",
	"element is outside of the viewport",
	"element is not editable",
}

// classify maps Playwright failures onto driver sentinels.
func classify(err error) error {
	if err == nil || errors.Is(err, driver.ErrStale) || errors.Is(err, driver.ErrNotInteractable) {
		return err
	}
	msg := err.Error()
	for _, m := range staleMessages {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %s", driver.ErrStale, msg)
		}
	}
	if err = script.Classify(err); errors.Is(err, driver.ErrStale) || errors.Is(err, driver.ErrNotInteractable) {
		return err
	}
	for _, m := range blockedMessages {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %s", driver.ErrNotInteractable, firstLine(msg))
		}
	}
	// An action that timed out inside its own budget never became actionable.
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %s", driver.ErrNotInteractable, firstLine(msg))
	}
	return err
}

// Playwright appends a call log to action errors; the first line is the message.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// finish classifies err unless the caller's context ended first, in which
// case the context error wins.
func finish(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return classify(err)
}

// actionTimeout converts what is left of ctx into a Playwright timeout in
// milliseconds, capped at ceiling. Playwright treats zero as no timeout, so
// the result is at least one millisecond.
func actionTimeout(ctx context.Context, ceiling time.Duration) float64 {
	d := ceiling
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = left
		}
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return float64(d.Milliseconds())
}
