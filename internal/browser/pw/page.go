// File: internal/browser/pw/page.go

// Package pw implements the driver contract on Playwright. Element reads run
// the same in-page scripts as the cdp driver; clicks, keys and fills use
// Playwright's own input pipeline.
package pw

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/browser/script"
)

// Page is one tab inside its own browser context.
type Page struct {
	page        playwright.Page
	bctx        playwright.BrowserContext
	logger      *zap.Logger
	loadTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
	onClose   func()
}

var _ driver.Driver = (*Page)(nil)

// onElement wraps a bound script so Playwright calls it with the handle as `this`.
func onElement(fn string) string { return "el => (" + fn + ").call(el)" }

// decode round-trips a Playwright result into out.
func decode(v any, out any) error {
	if out == nil || v == nil {
		return nil
	}
	raw, err := jsoniter.Marshal(v)
	if err != nil {
		return fmt.Errorf("decode script result: %w", err)
	}
	if err := jsoniter.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode script result: %w", err)
	}
	return nil
}

// collect turns a remote array of nodes into element handles and disposes
// the array itself.
func (p *Page) collect(array playwright.JSHandle, sel driver.Selector) ([]driver.Element, error) {
	defer func() { _ = array.Dispose() }()

	props, err := array.GetProperties()
	if err != nil {
		return nil, classify(err)
	}
	type indexed struct {
		i  int
		el *element
	}
	found := make([]indexed, 0, len(props))
	for name, prop := range props {
		idx, convErr := strconv.Atoi(name)
		h := prop.AsElement()
		if convErr != nil || h == nil {
			_ = prop.Dispose()
			continue
		}
		found = append(found, indexed{idx, &element{
			page:   p,
			handle: h,
			desc:   fmt.Sprintf("%s[%d]", sel, idx),
		}})
	}
	sort.Slice(found, func(a, b int) bool { return found[a].i < found[b].i })

	out := make([]driver.Element, len(found))
	for i, f := range found {
		out[i] = f.el
	}
	return out, nil
}

func findScript(sel driver.Selector) (string, error) {
	body, args, err := script.FindBody(sel)
	if err != nil {
		return "", err
	}
	return script.Bind("expr", body, args...)
}

// FindAll searches the whole document.
func (p *Page) FindAll(ctx context.Context, sel driver.Selector) ([]driver.Element, error) {
	fn, err := findScript(sel)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	array, err := p.page.EvaluateHandle("() => (" + fn + ").call(document)")
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", sel, finish(ctx, err))
	}
	return p.collect(array, sel)
}

// Navigate loads url and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	ceiling := p.loadTimeout
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(actionTimeout(ctx, ceiling)),
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("navigate to %s: %w", url, ctx.Err())
		}
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	p.logger.Debug("Navigated.", zap.String("url", url))
	return nil
}

// CurrentURL returns the location of the top frame.
func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.URL(), nil
}

// Eval evaluates expr in the page. Playwright awaits returned promises.
func (p *Page) Eval(ctx context.Context, expr string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := p.page.Evaluate(expr)
	if err != nil {
		return nil, finish(ctx, err)
	}
	var out any
	return out, decode(v, &out)
}

// Screenshot captures the viewport as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	buf, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Type:    playwright.ScreenshotTypePng,
		Timeout: playwright.Float(actionTimeout(ctx, 30*time.Second)),
	})
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", finish(ctx, err))
	}
	return buf, nil
}

// Close closes the tab and its browser context. It is safe to call more than once.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		if err := p.page.Close(); err != nil {
			p.logger.Debug("Page close failed.", zap.Error(err))
		}
		if err := p.bctx.Close(); err != nil {
			p.closeErr = fmt.Errorf("close browser context: %w", err)
		}
		if p.onClose != nil {
			p.onClose()
		}
	})
	return p.closeErr
}
