// File: internal/testing/fakedom/element.go
package fakedom

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
)

// Element is a handle to a node of a Document.
type Element struct {
	d *Document
	n *html.Node
}

var _ driver.Element = (*Element)(nil)

// Node exposes the underlying node to test code.
func (e *Element) Node() *html.Node { return e.n }

func (e *Element) Describe() string {
	return describe(e.n)
}

// live checks the handle under the lock and returns ErrStale for detached nodes.
func (e *Element) live(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !e.d.attachedLocked(e.n) {
		return fmt.Errorf("%s: %w", describe(e.n), driver.ErrStale)
	}
	return nil
}

func (e *Element) FindAll(ctx context.Context, sel driver.Selector) ([]driver.Element, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if err := e.live(ctx); err != nil {
		return nil, err
	}
	return e.d.findLocked(e.n, sel)
}

func (e *Element) Visible(ctx context.Context) (bool, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if err := e.live(ctx); err != nil {
		return false, err
	}
	return !hidden(e.n) && floatAttr(e.n, "data-height", 20) > 0, nil
}

func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if err := e.live(ctx); err != nil {
		return "", err
	}
	return attr(e.n, name), nil
}

func (e *Element) HasAttribute(ctx context.Context, name string) (bool, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if err := e.live(ctx); err != nil {
		return false, err
	}
	return hasAttr(e.n, name), nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if err := e.live(ctx); err != nil {
		return "", err
	}
	return textContent(e.n), nil
}

func (e *Element) Value(ctx context.Context) (string, error) {
	return e.Attribute(ctx, "value")
}

func (e *Element) OuterHTML(ctx context.Context) (string, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if err := e.live(ctx); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, e.n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Rect reads data-y and data-height (default 20) so tests can control layout.
func (e *Element) Rect(ctx context.Context) (driver.Rect, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if err := e.live(ctx); err != nil {
		return driver.Rect{}, err
	}
	if hidden(e.n) {
		return driver.Rect{}, nil
	}
	return driver.Rect{
		X:      0,
		Y:      floatAttr(e.n, "data-y", 0),
		Width:  100,
		Height: floatAttr(e.n, "data-height", 20),
	}, nil
}

func (e *Element) Click(ctx context.Context) error { return e.click(ctx, NativeClick) }

func (e *Element) DispatchClick(ctx context.Context) error { return e.click(ctx, SyntheticClick) }

func (e *Element) PointerClick(ctx context.Context) error { return e.click(ctx, PointerClick) }

func (e *Element) click(ctx context.Context, kind ClickKind) error {
	e.d.mu.Lock()
	if err := e.live(ctx); err != nil {
		e.d.mu.Unlock()
		return err
	}
	// Script clicks reach hidden nodes; real pointer input does not.
	if kind != SyntheticClick && hidden(e.n) {
		e.d.mu.Unlock()
		return fmt.Errorf("%s click on hidden %s: %w", kind, describe(e.n), driver.ErrNotInteractable)
	}
	if e.d.blockedLocked(kind, e.n) {
		e.d.mu.Unlock()
		return fmt.Errorf("%s click on %s intercepted: %w", kind, describe(e.n), driver.ErrNotInteractable)
	}
	e.d.clicks = append(e.d.clicks, ClickRecord{Kind: kind, Target: describe(e.n)})
	e.d.mu.Unlock()

	e.d.fire("click", e.n)
	return nil
}

func (e *Element) ScrollIntoView(ctx context.Context) error {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return e.live(ctx)
}

func (e *Element) Clear(ctx context.Context) error {
	e.d.mu.Lock()
	if err := e.live(ctx); err != nil {
		e.d.mu.Unlock()
		return err
	}
	setAttr(e.n, "value", "")
	e.d.mu.Unlock()
	e.d.fire("input", e.n)
	return nil
}

func (e *Element) Input(ctx context.Context, text string) error {
	e.d.mu.Lock()
	if err := e.live(ctx); err != nil {
		e.d.mu.Unlock()
		return err
	}
	if hasAttr(e.n, "disabled") || hasAttr(e.n, "readonly") {
		e.d.mu.Unlock()
		return fmt.Errorf("input into %s: %w", describe(e.n), driver.ErrNotInteractable)
	}
	setAttr(e.n, "value", text)
	e.d.mu.Unlock()
	e.d.fire("input", e.n)
	return nil
}

func (e *Element) Press(ctx context.Context, chord string) error {
	e.d.mu.Lock()
	if err := e.live(ctx); err != nil {
		e.d.mu.Unlock()
		return err
	}
	e.d.keys = append(e.d.keys, chord)
	e.d.mu.Unlock()
	e.d.fire("key:"+chord, e.n)
	return nil
}

func (e *Element) ScrollState(ctx context.Context) (driver.ScrollState, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if err := e.live(ctx); err != nil {
		return driver.ScrollState{}, err
	}
	return e.scrollLocked(), nil
}

func (e *Element) scrollLocked() driver.ScrollState {
	st, ok := e.d.scroll[e.n]
	if !ok {
		h := floatAttr(e.n, "data-height", 20)
		return driver.ScrollState{Top: 0, Height: h, ClientHeight: h}
	}
	return driver.ScrollState{Top: st.top, Height: st.height, ClientHeight: st.client}
}

func (e *Element) ScrollTo(ctx context.Context, top float64) (driver.ScrollState, error) {
	e.d.mu.Lock()
	if err := e.live(ctx); err != nil {
		e.d.mu.Unlock()
		return driver.ScrollState{}, err
	}
	st, ok := e.d.scroll[e.n]
	if !ok {
		s := e.scrollLocked()
		e.d.mu.Unlock()
		return s, nil
	}
	max := st.height - st.client
	if max < 0 {
		max = 0
	}
	if top > max {
		top = max
	}
	if top < 0 {
		top = 0
	}
	st.top = top
	onScroll := st.onScroll
	e.d.mu.Unlock()

	if onScroll != nil {
		onScroll(e.d, top)
	}

	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	return e.scrollLocked(), nil
}

func (e *Element) Eval(ctx context.Context, fn string) (any, error) {
	return nil, ErrScriptUnsupported
}

func describe(n *html.Node) string {
	if n == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString(n.Data)
	if id := attr(n, "id"); id != "" {
		b.WriteString("#" + id)
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		b.WriteString("." + c)
	}
	if t := strings.TrimSpace(textContent(n)); t != "" && len(t) <= 40 {
		b.WriteString(fmt.Sprintf("(%q)", t))
	}
	return b.String()
}
