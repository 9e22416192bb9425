// File: internal/pages/pages.go

// Package pages holds the page objects of the hospital information system
// the scenarios drive. Page objects own their locator tables and compose the
// engine primitives; they never talk to a browser driver directly except to
// pass it as the search root.
package pages

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/interact"
	"github.com/xkilldash9x/scalpel-e2e/internal/locator"
	"github.com/xkilldash9x/scalpel-e2e/internal/session"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

// ErrNoSlot is returned by operations on the current slot before one was clicked.
var ErrNoSlot = errors.New("no slot selected")

// byTestID ranks data-testid values.
func byTestID(name string, ids ...string) locator.Locator {
	sels := make([]driver.Selector, 0, len(ids))
	for _, id := range ids {
		sels = append(sels, driver.CSS(fmt.Sprintf("[data-testid='%s']", id)))
	}
	return locator.Of(name, sels)
}

// xpathLiteral quotes s for use inside an XPath expression.
func xpathLiteral(s string) string {
	switch {
	case !strings.Contains(s, "'"):
		return "'" + s + "'"
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// textOneOf renders an XPath predicate matching any of the exact, space
// normalized captions.
func textOneOf(captions ...string) string {
	conds := make([]string, len(captions))
	for i, c := range captions {
		conds[i] = "normalize-space(.)=" + xpathLiteral(c)
	}
	return strings.Join(conds, " or ")
}

var disabledMarkers = locator.CSS("disabled marker", ".e-disabled", "[aria-disabled='true']")

// blockDisabled reports whether a filter block is inert: it carries the
// e-disabled class or holds a disabled descendant.
func blockDisabled(ctx context.Context, el driver.Element) (bool, error) {
	class, err := el.Attribute(ctx, "class")
	if err != nil {
		return false, err
	}
	if interact.HasAnyClass(class, "e-disabled") {
		return true, nil
	}
	_, err = disabledMarkers.Resolve(ctx, el)
	var nf *driver.ElementNotFoundError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &nf):
		return false, nil
	default:
		return false, err
	}
}

// waitEnabled waits until the block matched by loc exists and is not disabled.
func waitEnabled(ctx context.Context, s *session.Session, loc locator.Locator) error {
	return wait.Until(ctx, loc.Name()+" to be enabled", func(ctx context.Context) (bool, error) {
		el, err := loc.First(ctx, s.Driver)
		if err != nil {
			return false, err
		}
		disabled, err := blockDisabled(ctx, el)
		return !disabled, err
	}, s.Timeouts.Opts(s.Timeouts.Medium)...)
}

var clockRe = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// parseClock validates an "HH:mm" wall-clock time and returns it zero padded.
func parseClock(hhmm string) (string, error) {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(hhmm))
	if m == nil {
		return "", fmt.Errorf("invalid time %q, want HH:mm", hhmm)
	}
	h, _ := strconv.Atoi(m[1])
	return fmt.Sprintf("%02d:%s", h, m[2]), nil
}
