// File: internal/interact/interact_test.go
package interact

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/locator"
	"github.com/xkilldash9x/scalpel-e2e/internal/testing/fakedom"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

func fastTimeouts() wait.Timeouts {
	return wait.Timeouts{
		Tiny:    50 * time.Millisecond,
		Short:   100 * time.Millisecond,
		Medium:  200 * time.Millisecond,
		Long:    400 * time.Millisecond,
		Default: 200 * time.Millisecond,
		Poll:    10 * time.Millisecond,
	}
}

func newInteractor(t *testing.T) *Interactor {
	return New(zaptest.NewLogger(t), fastTimeouts(), WithRetry(3, 5*time.Millisecond))
}

const buttonPage = `<html><body><button id="save" class="btn">Save</button></body></html>`

func clickKinds(d *fakedom.Document) []fakedom.ClickKind {
	var out []fakedom.ClickKind
	for _, c := range d.Clicks() {
		out = append(out, c.Kind)
	}
	return out
}

func TestSafeClick_FallbackChain(t *testing.T) {
	tests := []struct {
		name    string
		blocked []fakedom.ClickKind
		want    []fakedom.ClickKind
	}{
		{"native works", nil, []fakedom.ClickKind{fakedom.NativeClick}},
		{"synthetic after native", []fakedom.ClickKind{fakedom.NativeClick}, []fakedom.ClickKind{fakedom.SyntheticClick}},
		{"pointer last", []fakedom.ClickKind{fakedom.NativeClick, fakedom.SyntheticClick}, []fakedom.ClickKind{fakedom.PointerClick}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := fakedom.New(buttonPage)
			var hits int
			d.OnClick("#save", func(*fakedom.Document, *html.Node) { hits++ })
			for _, k := range tt.blocked {
				d.BlockClick(k, "#save")
			}

			err := newInteractor(t).SafeClick(context.Background(), d, locator.New("save", driver.ID("save")))
			require.NoError(t, err)
			assert.Equal(t, 1, hits)
			assert.Equal(t, tt.want, clickKinds(d))
		})
	}
}

func TestClickObserverSeesLandingLevel(t *testing.T) {
	d := fakedom.New(buttonPage)
	d.BlockClick(fakedom.NativeClick, "#save")

	var levels []ClickLevel
	i := New(zaptest.NewLogger(t), fastTimeouts(), WithClickObserver(func(l ClickLevel) { levels = append(levels, l) }))
	loc := locator.New("save", driver.ID("save"))
	require.NoError(t, i.SafeClick(context.Background(), d, loc))

	el, err := loc.First(context.Background(), d)
	require.NoError(t, err)
	require.NoError(t, i.ClickElement(context.Background(), el))

	assert.Equal(t, []ClickLevel{LevelSynthetic, LevelSynthetic}, levels)
}

func TestSafeClick_AllLevelsFail(t *testing.T) {
	d := fakedom.New(buttonPage)
	for _, k := range []fakedom.ClickKind{fakedom.NativeClick, fakedom.SyntheticClick, fakedom.PointerClick} {
		d.BlockClick(k, "#save")
	}

	err := newInteractor(t).SafeClick(context.Background(), d, locator.New("save", driver.ID("save")))
	require.Error(t, err)
	assert.ErrorIs(t, err, driver.ErrNotInteractable)
	for _, level := range []string{"native click", "synthetic click", "pointer click"} {
		assert.Contains(t, err.Error(), level)
	}
}

func TestSafeClick_MissingElementIsNotRetriedThroughFallbacks(t *testing.T) {
	d := fakedom.New(buttonPage)
	err := newInteractor(t).SafeClick(context.Background(), d, locator.CSS("ghost", "#ghost"))

	var te *driver.TimeoutError
	require.ErrorAs(t, err, &te)
	var nf *driver.ElementNotFoundError
	assert.ErrorAs(t, err, &nf)
	assert.Empty(t, d.Clicks())
}

func TestSafeClick_HiddenFallsBackToSynthetic(t *testing.T) {
	d := fakedom.New(`<html><body><button id="save" hidden>Save</button></body></html>`)
	core, logs := observer.New(zapcore.WarnLevel)

	i := New(zap.New(core), fastTimeouts())
	require.NoError(t, i.SafeClick(context.Background(), d, locator.New("save", driver.ID("save"))))
	assert.Equal(t, []fakedom.ClickKind{fakedom.SyntheticClick}, clickKinds(d))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "synthetic", logs.All()[0].ContextMap()["level"])
}

func TestClickElement_StaleReturnsImmediately(t *testing.T) {
	d := fakedom.New(buttonPage)
	ctx := context.Background()
	el, err := locator.New("save", driver.ID("save")).First(ctx, d)
	require.NoError(t, err)
	d.Rerender(d.MustFind("#save"))

	err = newInteractor(t).ClickElement(ctx, el)
	assert.ErrorIs(t, err, driver.ErrStale)
	assert.Empty(t, d.Clicks())
}

func TestSafeType(t *testing.T) {
	d := fakedom.New(`<html><body><input id="name" value="old"><input id="upper"></body></html>`)
	d.OnInput("#upper", func(d *fakedom.Document, n *html.Node) {
		if v := d.Attr(n, "value"); v == "abc" {
			d.SetAttr(n, "value", "ABC")
		}
	})
	i := newInteractor(t)
	ctx := context.Background()

	require.NoError(t, i.SafeType(ctx, d, locator.New("name", driver.ID("name")), "Ayşe", WithVerify()))
	assert.Equal(t, "Ayşe", d.Attr(d.MustFind("#name"), "value"))

	err := i.SafeType(ctx, d, locator.New("upper", driver.ID("upper")), "abc", WithVerify(), WithTypeTimeout(60*time.Millisecond))
	var te *driver.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "ABC", te.LastObserved)
}

func TestWaitVisibleAndInvisible(t *testing.T) {
	d := fakedom.New(`<html><body><div id="toast" hidden>Saved</div></body></html>`)
	i := newInteractor(t)
	ctx := context.Background()
	loc := locator.New("toast", driver.ID("toast"))

	timer := time.AfterFunc(30*time.Millisecond, func() { d.Show(d.MustFind("#toast")) })
	defer timer.Stop()
	el, err := i.WaitVisible(ctx, d, loc, time.Second)
	require.NoError(t, err)
	assert.NotNil(t, el)

	_, err = i.WaitText(ctx, d, loc, "saved", 100*time.Millisecond)
	require.NoError(t, err)

	_, err = i.WaitText(ctx, d, loc, "failed", 50*time.Millisecond)
	var te *driver.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "Saved", te.LastObserved)

	d.Remove(d.MustFind("#toast"))
	assert.NoError(t, i.WaitInvisible(ctx, d, loc, 100*time.Millisecond))
}

func TestProbes(t *testing.T) {
	d := fakedom.New(`<html><body>
<button id="a" disabled>A</button>
<button id="b" aria-disabled="true">B</button>
<button id="c" class="btn opacity-60">C</button>
<button id="d" class="btn">D</button>
<span id="e" hidden>E</span>
</body></html>`)
	i := newInteractor(t)
	ctx := context.Background()

	for id, want := range map[string]bool{"a": true, "b": true, "c": true, "d": false} {
		el, err := locator.New(id, driver.ID(id)).First(ctx, d)
		require.NoError(t, err)
		got, err := i.IsDisabled(ctx, el)
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}

	present, err := i.IsPresent(ctx, d, locator.New("e", driver.ID("e")))
	require.NoError(t, err)
	assert.True(t, present)
	shown, err := i.IsDisplayed(ctx, d, locator.New("e", driver.ID("e")))
	require.NoError(t, err)
	assert.False(t, shown)
	present, err = i.IsPresent(ctx, d, locator.New("z", driver.ID("z")))
	require.NoError(t, err)
	assert.False(t, present)
}

func TestEnsureSwitch(t *testing.T) {
	d := fakedom.New(`<html><body>
<span id="sms" class="e-switch-wrapper">sms</span>
<span id="mail" class="e-switch-wrapper e-switch-active e-switch-disabled">mail</span>
</body></html>`)
	d.OnClick(".e-switch-wrapper", func(d *fakedom.Document, n *html.Node) {
		if d.HasClass(n, "e-switch-active") {
			d.RemoveClass(n, "e-switch-active")
		} else {
			d.AddClass(n, "e-switch-active")
		}
	})
	i := newInteractor(t)
	ctx := context.Background()
	sms := locator.New("sms", driver.ID("sms"))

	require.NoError(t, i.EnsureSwitch(ctx, d, sms, true))
	assert.True(t, d.HasClass(d.MustFind("#sms"), "e-switch-active"))
	require.NoError(t, i.EnsureSwitch(ctx, d, sms, true))
	assert.Len(t, d.Clicks(), 1)

	mail := locator.New("mail", driver.ID("mail"))
	require.NoError(t, i.EnsureSwitch(ctx, d, mail, true))
	err := i.EnsureSwitch(ctx, d, mail, false)
	var ase *driver.AmbiguousStateError
	require.ErrorAs(t, err, &ase)
	assert.Equal(t, "disabled", ase.State)
	assert.False(t, errors.Is(err, driver.ErrStale))
}
