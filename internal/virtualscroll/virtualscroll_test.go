// File: internal/virtualscroll/virtualscroll_test.go
package virtualscroll

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/locator"
	"github.com/xkilldash9x/scalpel-e2e/internal/testing/fakedom"
)

func mountList(t *testing.T, n int) (*fakedom.Document, *fakedom.VirtualList) {
	t.Helper()
	labels := make([]string, n)
	for i := range labels {
		labels[i] = fmt.Sprintf("Hasta %03d", i)
	}
	d := fakedom.New(`<html><body><ul id="list"></ul></body></html>`)
	v := d.MountVirtualList("#list", labels, 20, 100, nil)
	return d, v
}

var (
	listLoc = locator.New("list", driver.ID("list"))
	rowLoc  = locator.CSS("rows", "li")
)

func TestFindInScrollable_FindsOffscreenItem(t *testing.T) {
	d, v := mountList(t, 200)
	ctx := context.Background()

	el, found, err := FindInScrollable(ctx, Locate(d, listLoc), rowLoc, TextEquals("hasta 150"),
		WithSettle(0), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.True(t, found)
	text, err := el.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Hasta 150", text)
	assert.Greater(t, v.Renders(), 1)
}

func TestFindInScrollable_TerminatesWhenMissing(t *testing.T) {
	d, v := mountList(t, 50)

	el, found, err := FindInScrollable(context.Background(), Locate(d, listLoc), rowLoc, TextEquals("nobody"),
		WithSettle(0), WithMaxSteps(1000))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, el)
	// 50 rows of 20px in a 100px viewport: 900px of travel at 100px per step.
	assert.LessOrEqual(t, v.Renders(), 11)
}

func TestFindInScrollable_StepBudget(t *testing.T) {
	d, _ := mountList(t, 500)
	_, found, err := FindInScrollable(context.Background(), Locate(d, listLoc), rowLoc, TextEquals("Hasta 499"),
		WithSettle(0), WithMaxSteps(3))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFindInScrollable_FromTopResetsScroll(t *testing.T) {
	d, _ := mountList(t, 100)
	ctx := context.Background()
	list, err := listLoc.First(ctx, d)
	require.NoError(t, err)
	_, err = list.ScrollTo(ctx, 1000)
	require.NoError(t, err)

	_, found, err := FindInScrollable(ctx, Fixed(list), rowLoc, TextEquals("Hasta 001"), WithSettle(0))
	require.NoError(t, err)
	assert.False(t, found, "without FromTop the search only moves down")

	el, found, err := FindInScrollable(ctx, Locate(d, listLoc), rowLoc, TextEquals("Hasta 001"), WithSettle(0), FromTop())
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, el.Describe(), "Hasta 001")
}

func TestFindInScrollable_ByVerticalPosition(t *testing.T) {
	d := fakedom.New(`<html><body><div id="grid">
<div class="tile" data-y="80">10:00 late</div>
<div class="tile" data-y="20">10:00 early</div>
</div></body></html>`)
	ctx := context.Background()
	grid := locator.New("grid", driver.ID("grid"))
	tiles := locator.CSS("tiles", ".tile")

	el, found, err := FindInScrollable(ctx, Locate(d, grid), tiles, AnyTextContains(nil, "10:00"), WithSettle(0))
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, el.Describe(), "late")

	el, found, err = FindInScrollable(ctx, Locate(d, grid), tiles, AnyTextContains(nil, "10:00"), WithSettle(0), ByVerticalPosition())
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, el.Describe(), "early")
}

func TestFindInScrollable_AttributeMatch(t *testing.T) {
	d := fakedom.New(`<html><body><table id="wrap"><tbody>
<tr><td class="cell" aria-label="Pazartesi 09.30">x</td></tr>
</tbody></table></body></html>`)
	el, found, err := FindInScrollable(context.Background(), Locate(d, locator.New("wrap", driver.ID("wrap"))),
		locator.CSS("cells", "td.cell"), AnyTextContains([]string{"aria-label"}, "09:30", "09.30"), WithSettle(0))
	require.NoError(t, err)
	require.True(t, found)
	assert.NotNil(t, el)
}

func TestFindInScrollable_Cancelled(t *testing.T) {
	d, _ := mountList(t, 500)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := FindInScrollable(ctx, Locate(d, listLoc), rowLoc, TextEquals("nobody"), WithSettle(time.Millisecond))
	assert.ErrorIs(t, err, context.Canceled)
}
