// File: internal/browser/driver/errors.go
package driver

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStale reports that an element handle no longer refers to an attached node.
	ErrStale = errors.New("stale element reference")
	// ErrNotInteractable reports that the element exists but cannot receive the action
	// right now (covered, zero-sized, disabled, animating).
	ErrNotInteractable = errors.New("element not interactable")
	// ErrTransient is the marker used by MarkTransient.
	ErrTransient = errors.New("transient condition")
)

// MarkTransient wraps err so wait loops treat it as "not satisfied yet".
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsStale reports whether err was caused by a stale element handle.
func IsStale(err error) bool {
	return errors.Is(err, ErrStale)
}

// IsTransient reports whether err describes a not-yet-ready UI rather than a bug.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStale) || errors.Is(err, ErrNotInteractable) || errors.Is(err, ErrTransient) {
		return true
	}
	var nf *ElementNotFoundError
	return errors.As(err, &nf)
}

// TimeoutError is returned when a condition was not satisfied within its budget.
type TimeoutError struct {
	Condition    string
	Elapsed      time.Duration
	LastObserved string
	Last         error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for %s", e.Elapsed.Round(time.Millisecond), e.Condition)
	if e.LastObserved != "" {
		msg += fmt.Sprintf(" (last observed: %q)", e.LastObserved)
	}
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error { return e.Last }

// StaleReferenceError escapes the retry wrapper once all attempts were spent on stale handles.
type StaleReferenceError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *StaleReferenceError) Error() string {
	return fmt.Sprintf("%s: element still stale after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *StaleReferenceError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStale) hold even if Err was rewrapped.
func (e *StaleReferenceError) Is(target error) bool { return target == ErrStale }

// ElementNotFoundError reports that no strategy of a locator matched anything.
type ElementNotFoundError struct {
	Locator string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("no element matched locator %s", e.Locator)
}

// OptionNotFoundError reports that a popup search exhausted direct and virtualized lookup.
type OptionNotFoundError struct {
	Label         string
	PopupSnapshot string
}

func (e *OptionNotFoundError) Error() string {
	if e.PopupSnapshot == "" {
		return fmt.Sprintf("option %q not found", e.Label)
	}
	return fmt.Sprintf("option %q not found; popup showed: %s", e.Label, e.PopupSnapshot)
}

// AmbiguousStateError reports a control whose state prevents the requested change.
type AmbiguousStateError struct {
	Element string
	State   string
	Reason  string
}

func (e *AmbiguousStateError) Error() string {
	return fmt.Sprintf("%s is %s: %s", e.Element, e.State, e.Reason)
}

// Kind buckets err for metrics and reports. Unknown errors are "other".
func Kind(err error) string {
	var (
		te  *TimeoutError
		nf  *ElementNotFoundError
		onf *OptionNotFoundError
		amb *AmbiguousStateError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &onf):
		return "option_not_found"
	case errors.As(err, &amb):
		return "ambiguous_state"
	case errors.As(err, &te), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrStale):
		return "stale"
	case errors.As(err, &nf):
		return "not_found"
	case errors.Is(err, ErrNotInteractable):
		return "not_interactable"
	default:
		return "other"
	}
}
