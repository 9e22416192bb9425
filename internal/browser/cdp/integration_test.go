// File: internal/browser/cdp/integration_test.go
package cdp

import (
	"context"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/config"
)

const fixture = `<!doctype html><html><body>
<button id="go" onclick="document.getElementById('out').textContent='clicked'">Go</button>
<div id="cover-host" style="position:relative">
  <button id="covered" onclick="document.getElementById('out').textContent='covered-clicked'">Under</button>
  <div style="position:absolute;inset:0;background:#fff"></div>
</div>
<input id="name" disabled>
<input id="free" onkeydown="if(event.altKey&&event.key==='ArrowDown'){this.dataset.opened='yes'}">
<div id="scroller" style="height:50px;overflow:auto"><div style="height:500px">tall</div></div>
<span id="out"></span>
</body></html>`

// newTestPage launches Chrome when SCALPEL_E2E_CHROME is set.
func newTestPage(t *testing.T) (*Page, context.Context) {
	t.Helper()
	if os.Getenv("SCALPEL_E2E_CHROME") == "" {
		t.Skip("set SCALPEL_E2E_CHROME=1 to run against a local Chrome")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)

	cfg := config.NewDefaultConfig().Browser()
	alloc, err := NewAllocator(ctx, zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = alloc.Shutdown(context.Background()) })

	page, err := alloc.NewDriver(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = page.Close() })

	require.NoError(t, page.Navigate(ctx, "data:text/html,"+url.PathEscape(fixture)))
	return page, ctx
}

func first(t *testing.T, ctx context.Context, f driver.Finder, sel driver.Selector) driver.Element {
	t.Helper()
	els, err := f.FindAll(ctx, sel)
	require.NoError(t, err)
	require.NotEmpty(t, els, sel.String())
	return els[0]
}

func TestPageAgainstChrome(t *testing.T) {
	page, ctx := newTestPage(t)

	t.Run("find by css, id and xpath", func(t *testing.T) {
		for _, sel := range []driver.Selector{driver.CSS("button"), driver.ID("go"), driver.XPath("//button[@id='go']")} {
			els, err := page.FindAll(ctx, sel)
			require.NoError(t, err)
			assert.NotEmpty(t, els, sel.String())
		}
		els, err := page.FindAll(ctx, driver.CSS(".absent"))
		require.NoError(t, err)
		assert.Empty(t, els)
	})

	t.Run("native click and hit test", func(t *testing.T) {
		require.NoError(t, first(t, ctx, page, driver.ID("go")).Click(ctx))
		out := first(t, ctx, page, driver.ID("out"))
		text, err := out.Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "clicked", text)

		err = first(t, ctx, page, driver.ID("covered")).Click(ctx)
		assert.ErrorIs(t, err, driver.ErrNotInteractable)

		require.NoError(t, first(t, ctx, page, driver.ID("covered")).DispatchClick(ctx))
		text, err = out.Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "covered-clicked", text)
	})

	t.Run("attributes and input", func(t *testing.T) {
		name := first(t, ctx, page, driver.ID("name"))
		has, err := name.HasAttribute(ctx, "disabled")
		require.NoError(t, err)
		assert.True(t, has)

		free := first(t, ctx, page, driver.ID("free"))
		require.NoError(t, free.Input(ctx, "Kardiyoloji"))
		v, err := free.Value(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Kardiyoloji", v)

		require.NoError(t, free.Press(ctx, "Alt+ArrowDown"))
		opened, err := free.Attribute(ctx, "data-opened")
		require.NoError(t, err)
		assert.Equal(t, "yes", opened)
	})

	t.Run("scrolling", func(t *testing.T) {
		sc := first(t, ctx, page, driver.ID("scroller"))
		st, err := sc.ScrollTo(ctx, 1e6)
		require.NoError(t, err)
		assert.True(t, st.AtEnd())
		assert.Equal(t, float64(450), st.Max())
	})

	t.Run("detached handle is stale", func(t *testing.T) {
		out := first(t, ctx, page, driver.ID("out"))
		_, err := page.Eval(ctx, `document.getElementById("out").remove(), true`)
		require.NoError(t, err)
		_, err = out.Text(ctx)
		assert.ErrorIs(t, err, driver.ErrStale)
	})

	t.Run("screenshot", func(t *testing.T) {
		png, err := page.Screenshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte("\x89PNG"), png[:4])
	})
}
