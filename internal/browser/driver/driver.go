// File: internal/browser/driver/driver.go
package driver

import (
	"context"
	"fmt"
	"strings"
)

// Strategy names the lookup mechanism used by a Selector.
type Strategy string

const (
	// ByCSS resolves a CSS selector relative to the search root.
	ByCSS Strategy = "css"
	// ByXPath evaluates an XPath expression with the search root as context node.
	ByXPath Strategy = "xpath"
	// ByID matches the element whose id attribute equals the expression.
	ByID Strategy = "id"
)

// Selector is a single (strategy, expression) pair.
type Selector struct {
	Strategy Strategy `yaml:"strategy" mapstructure:"strategy"`
	Expr     string   `yaml:"expr" mapstructure:"expr"`
}

// CSS builds a CSS selector.
func CSS(expr string) Selector { return Selector{Strategy: ByCSS, Expr: expr} }

// XPath builds an XPath selector.
func XPath(expr string) Selector { return Selector{Strategy: ByXPath, Expr: expr} }

// ID builds an id selector.
func ID(id string) Selector { return Selector{Strategy: ByID, Expr: id} }

// String renders the selector in the "strategy=expr" form used by logs and errors.
func (s Selector) String() string {
	return fmt.Sprintf("%s=%s", s.Strategy, s.Expr)
}

// AsCSS returns an equivalent CSS expression for css and id selectors.
// ok is false for XPath selectors.
func (s Selector) AsCSS() (expr string, ok bool) {
	switch s.Strategy {
	case ByCSS, "":
		return s.Expr, true
	case ByID:
		return fmt.Sprintf(`[id="%s"]`, strings.ReplaceAll(s.Expr, `"`, `\"`)), true
	default:
		return "", false
	}
}

// Validate rejects selectors an implementation could not evaluate.
func (s Selector) Validate() error {
	if strings.TrimSpace(s.Expr) == "" {
		return fmt.Errorf("selector %q has an empty expression", s.Strategy)
	}
	switch s.Strategy {
	case ByCSS, ByXPath, ByID:
		return nil
	default:
		return fmt.Errorf("unknown selector strategy %q", s.Strategy)
	}
}

// Rect is an element's bounding box in CSS pixels, relative to the viewport.
type Rect struct {
	X, Y, Width, Height float64
}

// Center returns the midpoint of the box.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// ScrollState captures the vertical scroll metrics of a scrollable element.
type ScrollState struct {
	Top          float64 `json:"top"`
	Height       float64 `json:"height"`
	ClientHeight float64 `json:"clientHeight"`
}

// Max is the largest reachable scrollTop.
func (s ScrollState) Max() float64 {
	if m := s.Height - s.ClientHeight; m > 0 {
		return m
	}
	return 0
}

// AtEnd reports whether the element cannot scroll any further down.
func (s ScrollState) AtEnd() bool {
	return s.Top >= s.Max()
}

// Finder locates elements below a search root.
type Finder interface {
	// FindAll returns every element matching sel in document order.
	// No match is an empty slice and a nil error.
	FindAll(ctx context.Context, sel Selector) ([]Element, error)
}

// Element is an opaque handle to a live DOM node. A handle becomes stale when
// the node is detached or replaced; methods then fail with ErrStale.
type Element interface {
	Finder

	// Describe returns a short human-readable label for logs and errors.
	Describe() string

	// Visible reports whether the node is displayed with a non-zero height.
	Visible(ctx context.Context) (bool, error)
	// Attribute returns the attribute value, or "" when absent.
	Attribute(ctx context.Context, name string) (string, error)
	// HasAttribute distinguishes a present boolean attribute from an absent one.
	HasAttribute(ctx context.Context, name string) (bool, error)
	// Text returns the rendered text.
	Text(ctx context.Context) (string, error)
	// Value returns the current value property of form controls.
	Value(ctx context.Context) (string, error)
	// OuterHTML serializes the node.
	OuterHTML(ctx context.Context) (string, error)
	Rect(ctx context.Context) (Rect, error)

	// Click performs a native click at the element's centre.
	Click(ctx context.Context) error
	// DispatchClick fires a synthetic mouseover followed by click() from script.
	DispatchClick(ctx context.Context) error
	// PointerClick moves the pointer onto the element, then clicks.
	PointerClick(ctx context.Context) error
	// ScrollIntoView centres the element in its nearest scrollable ancestor.
	ScrollIntoView(ctx context.Context) error

	// Clear empties the value of a form control.
	Clear(ctx context.Context) error
	// Input sets the value in bulk and fires input and change events.
	Input(ctx context.Context, text string) error
	// Press sends a key chord such as "Escape" or "Alt+ArrowDown".
	Press(ctx context.Context, chord string) error

	ScrollState(ctx context.Context) (ScrollState, error)
	// ScrollTo sets scrollTop and returns the metrics observed afterwards.
	ScrollTo(ctx context.Context, top float64) (ScrollState, error)

	// Eval runs a function declaration with `this` bound to the element and
	// returns its JSON-decoded result.
	Eval(ctx context.Context, fn string) (any, error)
}

// Driver is the page-level capability surface the engine depends on.
type Driver interface {
	Finder

	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	// Eval evaluates an expression in the page and returns its JSON-decoded result.
	Eval(ctx context.Context, expr string) (any, error)
	// Screenshot captures the viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}
