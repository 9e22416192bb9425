// File: internal/locator/locator.go

// Package locator describes how to find a candidate element: a primary
// selector plus ranked fallbacks. The first selector yielding at least one
// element wins.
package locator

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
)

// Locator is an immutable, ordered list of selectors with a display name.
type Locator struct {
	name       string
	candidates []driver.Selector
}

// New builds a locator from a primary selector and ranked fallbacks.
func New(name string, primary driver.Selector, fallbacks ...driver.Selector) Locator {
	c := make([]driver.Selector, 0, 1+len(fallbacks))
	c = append(c, primary)
	c = append(c, fallbacks...)
	return Locator{name: name, candidates: c}
}

// CSS builds a locator whose candidates are the given CSS expressions, in rank order.
func CSS(name string, exprs ...string) Locator {
	c := make([]driver.Selector, 0, len(exprs))
	for _, e := range exprs {
		c = append(c, driver.CSS(e))
	}
	return Locator{name: name, candidates: c}
}

// Of builds a locator from an arbitrary selector list.
func Of(name string, sels []driver.Selector) Locator {
	return Locator{name: name, candidates: append([]driver.Selector(nil), sels...)}
}

// Or returns a copy of l with additional lower-ranked fallbacks.
func (l Locator) Or(fallbacks ...driver.Selector) Locator {
	c := make([]driver.Selector, 0, len(l.candidates)+len(fallbacks))
	c = append(c, l.candidates...)
	c = append(c, fallbacks...)
	return Locator{name: l.name, candidates: c}
}

// Named returns a copy of l with a different display name.
func (l Locator) Named(name string) Locator {
	return Locator{name: name, candidates: l.candidates}
}

// Name is the display name.
func (l Locator) Name() string { return l.name }

// Selectors returns a copy of the ranked selectors.
func (l Locator) Selectors() []driver.Selector {
	return append([]driver.Selector(nil), l.candidates...)
}

// IsZero reports whether the locator has no selectors.
func (l Locator) IsZero() bool { return len(l.candidates) == 0 }

// String renders the name and all selectors, e.g. `save button [css=#save | xpath=//button]`.
func (l Locator) String() string {
	parts := make([]string, len(l.candidates))
	for i, s := range l.candidates {
		parts[i] = s.String()
	}
	if l.name == "" {
		return "[" + strings.Join(parts, " | ") + "]"
	}
	return fmt.Sprintf("%s [%s]", l.name, strings.Join(parts, " | "))
}

// Resolve returns the matches of the first selector that yields any element
// below root. If none does, it returns *driver.ElementNotFoundError.
func (l Locator) Resolve(ctx context.Context, root driver.Finder) ([]driver.Element, error) {
	if l.IsZero() {
		return nil, fmt.Errorf("locator %q has no selectors", l.name)
	}
	for _, sel := range l.candidates {
		els, err := root.FindAll(ctx, sel)
		if err != nil {
			return nil, fmt.Errorf("resolve %s via %s: %w", l.name, sel, err)
		}
		if len(els) > 0 {
			return els, nil
		}
	}
	return nil, &driver.ElementNotFoundError{Locator: l.String()}
}

// ResolveAll returns the concatenated matches of every selector, in rank
// order. Used where candidates from all strategies must be compared.
func (l Locator) ResolveAll(ctx context.Context, root driver.Finder) ([]driver.Element, error) {
	var all []driver.Element
	for _, sel := range l.candidates {
		els, err := root.FindAll(ctx, sel)
		if err != nil {
			return nil, fmt.Errorf("resolve %s via %s: %w", l.name, sel, err)
		}
		all = append(all, els...)
	}
	return all, nil
}

// First returns the first element of Resolve.
func (l Locator) First(ctx context.Context, root driver.Finder) (driver.Element, error) {
	els, err := l.Resolve(ctx, root)
	if err != nil {
		return nil, err
	}
	return els[0], nil
}

// FirstVisible walks every selector in rank order and returns the first
// visible match. Handles that go stale while being checked are skipped.
func (l Locator) FirstVisible(ctx context.Context, root driver.Finder) (driver.Element, error) {
	for _, sel := range l.candidates {
		els, err := root.FindAll(ctx, sel)
		if err != nil {
			return nil, fmt.Errorf("resolve %s via %s: %w", l.name, sel, err)
		}
		for _, el := range els {
			vis, err := el.Visible(ctx)
			if err != nil {
				if driver.IsStale(err) {
					continue
				}
				return nil, err
			}
			if vis {
				return el, nil
			}
		}
	}
	return nil, &driver.ElementNotFoundError{Locator: l.String() + " (visible)"}
}

// Visible filters els down to the displayed ones, dropping stale handles.
func Visible(ctx context.Context, els []driver.Element) ([]driver.Element, error) {
	out := make([]driver.Element, 0, len(els))
	for _, el := range els {
		vis, err := el.Visible(ctx)
		if err != nil {
			if driver.IsStale(err) {
				continue
			}
			return nil, err
		}
		if vis {
			out = append(out, el)
		}
	}
	return out, nil
}
