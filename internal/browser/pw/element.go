// File: internal/browser/pw/element.go
package pw

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/browser/script"
)

const (
	// nativeActionCeiling bounds Playwright's auto-wait on a native click or
	// fill. A blocked element should fail fast so the caller can fall back.
	nativeActionCeiling = 1500 * time.Millisecond
	pointerPause        = 30 * time.Millisecond
)

type element struct {
	page   *Page
	handle playwright.ElementHandle
	desc   string
}

var _ driver.Element = (*element)(nil)

func (e *element) Describe() string { return e.desc }

func (e *element) call(ctx context.Context, params, body string, out any, args ...any) error {
	fn, err := script.Bind(params, body, args...)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := e.handle.Evaluate(onElement(fn))
	if err != nil {
		return finish(ctx, err)
	}
	return decode(v, out)
}

func (e *element) FindAll(ctx context.Context, sel driver.Selector) ([]driver.Element, error) {
	fn, err := findScript(sel)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	array, err := e.handle.EvaluateHandle(onElement(fn))
	if err != nil {
		return nil, fmt.Errorf("find %s in %s: %w", sel, e.desc, finish(ctx, err))
	}
	return e.page.collect(array, sel)
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	var v bool
	err := e.call(ctx, "", script.Visible, &v)
	return v, err
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	var v string
	err := e.call(ctx, "name", script.Attribute, &v, name)
	return v, err
}

func (e *element) HasAttribute(ctx context.Context, name string) (bool, error) {
	var v bool
	err := e.call(ctx, "name", script.HasAttribute, &v, name)
	return v, err
}

func (e *element) Text(ctx context.Context) (string, error) {
	var v string
	err := e.call(ctx, "", script.Text, &v)
	return v, err
}

func (e *element) Value(ctx context.Context) (string, error) {
	var v string
	err := e.call(ctx, "", script.Value, &v)
	return v, err
}

func (e *element) OuterHTML(ctx context.Context) (string, error) {
	var v string
	err := e.call(ctx, "", script.OuterHTML, &v)
	return v, err
}

func (e *element) Rect(ctx context.Context) (driver.Rect, error) {
	var r driver.Rect
	err := e.call(ctx, "", script.Rect, &r)
	return r, err
}

// Click is Playwright's native click: it waits for the element to be
// visible, stable and the hit target, within a short budget.
func (e *element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := e.handle.Click(playwright.ElementHandleClickOptions{
		Timeout: playwright.Float(actionTimeout(ctx, nativeActionCeiling)),
	})
	return finish(ctx, err)
}

func (e *element) DispatchClick(ctx context.Context) error {
	return e.call(ctx, "", script.DispatchClick, nil)
}

// PointerClick moves the mouse onto the element's centre and presses there.
// Whatever is on top receives the press.
func (e *element) PointerClick(ctx context.Context) error {
	if err := e.ScrollIntoView(ctx); err != nil {
		return err
	}
	box, err := e.handle.BoundingBox()
	if err != nil {
		return finish(ctx, err)
	}
	if box == nil || box.Width == 0 || box.Height == 0 {
		return fmt.Errorf("%w: %s has no box", driver.ErrNotInteractable, e.desc)
	}
	x, y := box.X+box.Width/2, box.Y+box.Height/2

	mouse := e.page.page.Mouse()
	if err := mouse.Move(x, y); err != nil {
		return finish(ctx, err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(pointerPause):
	}
	if err := mouse.Down(); err != nil {
		return finish(ctx, err)
	}
	return finish(ctx, mouse.Up())
}

func (e *element) ScrollIntoView(ctx context.Context) error {
	return e.call(ctx, "", script.ScrollIntoView, nil)
}

func (e *element) Clear(ctx context.Context) error {
	return e.Input(ctx, "")
}

// Input fills the control in one step. Fill raises input; change is
// dispatched afterwards so listeners that commit on change see the value.
func (e *element) Input(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := e.handle.Fill(text, playwright.ElementHandleFillOptions{
		Timeout: playwright.Float(actionTimeout(ctx, nativeActionCeiling)),
	})
	if err != nil {
		return finish(ctx, err)
	}
	return finish(ctx, e.handle.DispatchEvent("change", map[string]any{"bubbles": true}))
}

// Press sends the chord through Playwright's keyboard, which already speaks
// the "Alt+ArrowDown" notation.
func (e *element) Press(ctx context.Context, keys string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := e.handle.Press(keys, playwright.ElementHandlePressOptions{
		Timeout: playwright.Float(actionTimeout(ctx, nativeActionCeiling)),
	})
	return finish(ctx, err)
}

func (e *element) ScrollState(ctx context.Context) (driver.ScrollState, error) {
	var s driver.ScrollState
	err := e.call(ctx, "", script.ScrollState, &s)
	return s, err
}

func (e *element) ScrollTo(ctx context.Context, top float64) (driver.ScrollState, error) {
	var s driver.ScrollState
	err := e.call(ctx, "top", script.ScrollTo, &s, top)
	return s, err
}

// Eval calls the function declaration fn with `this` bound to the element.
func (e *element) Eval(ctx context.Context, fn string) (any, error) {
	var out any
	err := e.call(ctx, "", "return ("+fn+").call(this);", &out)
	return out, err
}
