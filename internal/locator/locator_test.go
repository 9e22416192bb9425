// File: internal/locator/locator_test.go
package locator

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/testing/fakedom"
)

const page = `<html><body>
<button class="legacy">Legacy</button>
<button id="save" hidden>Save</button>
<button class="save-alt">Save</button>
</body></html>`

func TestResolve_FirstStrategyWithHitsWins(t *testing.T) {
	d := fakedom.New(page)
	ctx := context.Background()

	loc := New("save button", driver.CSS("#missing"), driver.XPath("//button[@class='legacy']"), driver.CSS(".save-alt"))
	els, err := loc.Resolve(ctx, d)
	require.NoError(t, err)
	require.Len(t, els, 1)
	assert.Contains(t, els[0].Describe(), "legacy")
}

func TestResolve_NoneMatches(t *testing.T) {
	d := fakedom.New(page)
	loc := CSS("ghost", ".nope", "#nothing")

	_, err := loc.Resolve(context.Background(), d)
	var nf *driver.ElementNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ghost [css=.nope | css=#nothing]", nf.Locator)
	assert.True(t, driver.IsTransient(err))
}

func TestResolve_EmptyLocator(t *testing.T) {
	_, err := Locator{}.Resolve(context.Background(), fakedom.New(page))
	assert.Error(t, err)
}

func TestFirstVisible_SkipsHidden(t *testing.T) {
	d := fakedom.New(page)
	loc := New("save", driver.ID("save"), driver.CSS(".save-alt"))

	el, err := loc.FirstVisible(context.Background(), d)
	require.NoError(t, err)
	assert.Contains(t, el.Describe(), "save-alt")

	_, err = New("hidden only", driver.ID("save")).FirstVisible(context.Background(), d)
	var nf *driver.ElementNotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestOrAndNamed_DoNotMutate(t *testing.T) {
	base := CSS("base", ".a")
	ext := base.Or(driver.XPath("//b")).Named("ext")

	assert.Equal(t, "base [css=.a]", base.String())
	assert.Equal(t, "ext [css=.a | xpath=//b]", ext.String())
	if diff := cmp.Diff([]driver.Selector{driver.CSS(".a"), driver.XPath("//b")}, ext.Selectors()); diff != "" {
		t.Errorf("selectors mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveAll_Concatenates(t *testing.T) {
	d := fakedom.New(page)
	els, err := CSS("buttons", ".legacy", "button").ResolveAll(context.Background(), d)
	require.NoError(t, err)
	assert.Len(t, els, 4)
}

func TestVisible_DropsStale(t *testing.T) {
	d := fakedom.New(page)
	ctx := context.Background()
	els, err := CSS("all", "button").Resolve(ctx, d)
	require.NoError(t, err)

	d.Remove(d.MustFind(".legacy"))
	vis, err := Visible(ctx, els)
	require.NoError(t, err)
	assert.Len(t, vis, 1)
}
