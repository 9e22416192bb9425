// File: internal/browser/cdp/page.go

// Package cdp implements the driver contract on the Chrome DevTools Protocol
// through chromedp. Element handles are remote object ids; every element
// operation is one Runtime.callFunctionOn against the handle.
package cdp

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/browser/script"
)

// objectGroup owns every remote object a page hands out, so Close can
// release them in one call.
const objectGroup = "scalpel-e2e"

// Page is one browser tab.
type Page struct {
	tabCtx      context.Context
	cancel      context.CancelFunc
	logger      *zap.Logger
	loadTimeout time.Duration

	closeOnce sync.Once
	onClose   func()
}

var _ driver.Driver = (*Page)(nil)

// run executes actions on the tab, bounded by the caller's context. Cancelling
// ctx aborts the actions without closing the tab.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// callOn runs fn with `this` bound to the remote object id and decodes the
// by-value result into out (which may be nil).
func (p *Page) callOn(ctx context.Context, id runtime.RemoteObjectID, fn string, out any) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		res, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(id).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(ctx)
		if err != nil {
			return classify(err)
		}
		if exc != nil {
			return exceptionError(exc)
		}
		return decode(res, out)
	}))
}

func decode(res *runtime.RemoteObject, out any) error {
	if out == nil || res == nil || len(res.Value) == 0 {
		return nil
	}
	if err := jsoniter.Unmarshal([]byte(res.Value), out); err != nil {
		return fmt.Errorf("decode script result: %w", err)
	}
	return nil
}

// collect turns a remote array of nodes into element handles and releases
// the array itself.
func (p *Page) collect(ctx context.Context, array *runtime.RemoteObject, sel driver.Selector) ([]driver.Element, error) {
	if array == nil || array.ObjectID == "" {
		return nil, nil
	}
	defer func() { _ = runtime.ReleaseObject(array.ObjectID).Do(ctx) }()

	props, _, _, exc, err := runtime.GetProperties(array.ObjectID).WithOwnProperties(true).Do(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if exc != nil {
		return nil, exceptionError(exc)
	}

	type indexed struct {
		i  int
		el *element
	}
	var found []indexed
	for _, prop := range props {
		idx, convErr := strconv.Atoi(prop.Name)
		if convErr != nil || prop.Value == nil || prop.Value.ObjectID == "" {
			continue
		}
		desc := prop.Value.Description
		if desc == "" {
			desc = sel.String()
		}
		found = append(found, indexed{idx, &element{page: p, id: prop.Value.ObjectID, desc: desc}})
	}
	out := make([]driver.Element, len(found))
	for _, f := range found {
		if f.i < len(out) {
			out[f.i] = f.el
		}
	}
	// Guard against sparse indices, which a well-formed array never has.
	compact := out[:0]
	for _, el := range out {
		if el != nil {
			compact = append(compact, el)
		}
	}
	return compact, nil
}

// FindAll searches the whole document.
func (p *Page) FindAll(ctx context.Context, sel driver.Selector) ([]driver.Element, error) {
	body, args, err := script.FindBody(sel)
	if err != nil {
		return nil, err
	}
	fn, err := script.Bind("expr", body, args...)
	if err != nil {
		return nil, err
	}
	var out []driver.Element
	err = p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		res, exc, err := runtime.Evaluate(fmt.Sprintf("(%s).call(document)", fn)).
			WithObjectGroup(objectGroup).
			Do(ctx)
		if err != nil {
			return classify(err)
		}
		if exc != nil {
			return fmt.Errorf("find %s: %w", sel, exceptionError(exc))
		}
		out, err = p.collect(ctx, res, sel)
		return err
	}))
	return out, err
}

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if p.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.loadTimeout)
		defer cancel()
	}
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	p.logger.Debug("Navigated.", zap.String("url", url))
	return nil
}

// CurrentURL returns the location of the top frame.
func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, chromedp.Location(&url))
	return url, err
}

// Eval evaluates expr in the page, awaiting promises.
func (p *Page) Eval(ctx context.Context, expr string) (any, error) {
	var out any
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		res, exc, err := runtime.Evaluate(expr).
			WithReturnByValue(true).
			WithAwaitPromise(true).
			Do(ctx)
		if err != nil {
			return classify(err)
		}
		if exc != nil {
			return exceptionError(exc)
		}
		return decode(res, &out)
	}))
	return out, err
}

// Screenshot captures the viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Close releases the page's remote objects and closes the tab. It is safe
// to call more than once.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.run(releaseCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			return runtime.ReleaseObjectGroup(objectGroup).Do(ctx)
		}))
		// Cancelling a context created by chromedp.NewContext closes its target.
		p.cancel()
		if p.onClose != nil {
			p.onClose()
		}
	})
	return nil
}
