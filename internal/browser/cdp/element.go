// File: internal/browser/cdp/element.go
package cdp

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/browser/script"
)

// pointerPause separates the move from the press in a pointer click, giving
// hover handlers a frame to run.
const pointerPause = 30 * time.Millisecond

type element struct {
	page *Page
	id   runtime.RemoteObjectID
	desc string
}

var _ driver.Element = (*element)(nil)

func (e *element) Describe() string { return e.desc }

func (e *element) call(ctx context.Context, params, body string, out any, args ...any) error {
	fn, err := script.Bind(params, body, args...)
	if err != nil {
		return err
	}
	return e.page.callOn(ctx, e.id, fn, out)
}

func (e *element) FindAll(ctx context.Context, sel driver.Selector) ([]driver.Element, error) {
	body, args, err := script.FindBody(sel)
	if err != nil {
		return nil, err
	}
	fn, err := script.Bind("expr", body, args...)
	if err != nil {
		return nil, err
	}
	var out []driver.Element
	err = e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		res, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(e.id).
			WithObjectGroup(objectGroup).
			Do(ctx)
		if err != nil {
			return classify(err)
		}
		if exc != nil {
			return fmt.Errorf("find %s in %s: %w", sel, e.desc, exceptionError(exc))
		}
		out, err = e.page.collect(ctx, res, sel)
		return err
	}))
	return out, err
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

type point struct{ X, Y float64 }

func (e *element) clickPoint(ctx context.Context, hitTest bool) (point, error) {
	var pt point
	err := e.call(ctx, "hitTest", script.ClickPoint, &pt, hitTest)
	return pt, err
}

func mouseClick(pt point, pause time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MouseMoved, pt.X, pt.Y).Do(ctx); err != nil {
			return err
		}
		if pause > 0 {
			if err := chromedp.Sleep(pause).Do(ctx); err != nil {
				return err
			}
		}
		if err := input.DispatchMouseEvent(input.MousePressed, pt.X, pt.Y).
			WithButton(input.Left).WithButtons(1).WithClickCount(1).Do(ctx); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseReleased, pt.X, pt.Y).
			WithButton(input.Left).WithClickCount(1).Do(ctx)
	})
}

// Click hit-tests the centre and clicks there with trusted input events.
// A covered element fails with ErrNotInteractable without clicking.
func (e *element) Click(ctx context.Context) error {
	pt, err := e.clickPoint(ctx, true)
	if err != nil {
		return err
	}
	return e.page.run(ctx, mouseClick(pt, 0))
}

func (e *element) DispatchClick(ctx context.Context) error {
	return e.call(ctx, "", script.DispatchClick, nil)
}

// PointerClick moves the pointer onto the element before pressing. It does
// not hit-test; whatever is on top receives the press.
func (e *element) PointerClick(ctx context.Context) error {
	pt, err := e.clickPoint(ctx, false)
	if err != nil {
		return err
	}
	return e.page.run(ctx, mouseClick(pt, pointerPause))
}

func (e *element) ScrollIntoView(ctx context.Context) error {
	return e.call(ctx, "", script.ScrollIntoView, nil)
}

func (e *element) Clear(ctx context.Context) error {
	return e.call(ctx, "text", script.SetValue, nil, "")
}

func (e *element) Input(ctx context.Context, text string) error {
	return e.call(ctx, "text", script.SetValue, nil, text)
}

// Press focuses the element and sends the chord as trusted key events.
func (e *element) Press(ctx context.Context, keys string) error {
	c, err := parseChord(keys)
	if err != nil {
		return err
	}
	if err := e.call(ctx, "", script.Focus, nil); err != nil {
		return err
	}
	return e.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, ev := range c.events() {
			if err := ev.Do(ctx); err != nil {
				return err
			}
		}
		return nil
	}))
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
