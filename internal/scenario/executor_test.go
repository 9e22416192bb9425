// File: internal/scenario/executor_test.go
package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/config"
	"github.com/xkilldash9x/scalpel-e2e/internal/observability"
	"github.com/xkilldash9x/scalpel-e2e/internal/popup"
	"github.com/xkilldash9x/scalpel-e2e/internal/session"
	"github.com/xkilldash9x/scalpel-e2e/internal/statuspoll"
	"github.com/xkilldash9x/scalpel-e2e/internal/testing/fakedom"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

func newSession(t *testing.T, d *fakedom.Document) *session.Session {
	t.Helper()
	return session.New(d, session.Params{
		Logger:       zaptest.NewLogger(t),
		BaseURL:      "https://his.example",
		ArtifactsDir: t.TempDir(),
		Settings: session.Settings{
			Timeouts: wait.Timeouts{
				Tiny:    50 * time.Millisecond,
				Short:   150 * time.Millisecond,
				Medium:  400 * time.Millisecond,
				Long:    800 * time.Millisecond,
				Default: 300 * time.Millisecond,
				Poll:    5 * time.Millisecond,
			},
			Retry: config.RetryConfig{Attempts: 3, Backoff: time.Millisecond},
			Popup: popup.Config{
				OpenTimeout:   60 * time.Millisecond,
				OpenPause:     time.Millisecond,
				TypeAhead:     true,
				CommitTimeout: 300 * time.Millisecond,
				CloseTimeout:  300 * time.Millisecond,
				ChipTimeout:   300 * time.Millisecond,
			},
			StatusPoll: statuspoll.DefaultConfig(),
			Scroll:     config.ScrollConfig{Settle: time.Millisecond},
		},
	})
}

const widgetsPage = `<html><body>
<input id="name" value="">
<button id="go">Kaydet</button>
<div id="status" hidden>Kaydedildi</div>
<span id="sw" class="e-switch-wrapper" aria-checked="false"></span>
<ul id="list"></ul>
</body></html>`

const widgetsScenario = `
name: widgets
steps:
  - action: type
    target: {name: name field, selectors: [{id: name}]}
    text: Ayşe Yılmaz
    verify: true
  - action: click
    target:
      name: save
      selectors:
        - css: "#missing"
        - xpath: "//button[normalize-space(.)='Kaydet']"
  - action: wait_text
    target: {selectors: [{css: "#status"}]}
    text: Kaydedildi
  - action: switch
    target: {selectors: [{id: sw}]}
    on: true
  - action: select
    name: branch
    target: {selectors: [{css: "[data-testid='branch']"}]}
    value: Ataşehir
  - action: multiselect
    name: appointment types
    target: {selectors: [{css: "[data-testid='types']"}]}
    values: [Muayene, Kontrol]
    exact: true
  - action: keep_only
    name: doctors
    target: {selectors: [{css: "[data-testid='doctors']"}]}
    value: Dr. Kaya
  - action: find_in_list
    container: {selectors: [{id: list}]}
    items: {selectors: [{css: li}]}
    text: Hasta 042
    click: true
  - action: screenshot
    name: after
`

func TestRunDrivesEveryWidget(t *testing.T) {
	d := fakedom.New(widgetsPage)
	d.OnClick("#go", func(d *fakedom.Document, n *html.Node) { d.Show(d.MustFind("#status")) })
	d.OnClick("#sw", func(d *fakedom.Document, n *html.Node) { d.SetAttr(d.MustFind("#sw"), "aria-checked", "true") })
	branch := d.MountDropdown(fakedom.DropdownConfig{TestID: "branch", InputID: "branch_input",
		Options: []string{"Merkez", "Ataşehir"}})
	types := d.MountDropdown(fakedom.DropdownConfig{TestID: "types", InputID: "types_input", Multi: true,
		Options: []string{"Muayene", "Kontrol", "Konsültasyon"}, Selected: []string{"Muayene", "Kontrol", "Konsültasyon"}})
	doctors := d.MountChips("doctors", []string{"Dr. Demir", "Dr. Kaya", "Dr. Şahin"})

	labels := make([]string, 100)
	for i := range labels {
		labels[i] = fmt.Sprintf("Hasta %03d", i)
	}
	d.MountVirtualList("#list", labels, 20, 100, nil)
	var picked string
	d.OnClick("#list li", func(d *fakedom.Document, n *html.Node) { picked = d.TextOf(n) })

	sc, err := Parse([]byte(widgetsScenario), "widgets.yaml")
	require.NoError(t, err)

	m := observability.NewMetrics()
	s := newSession(t, d)
	rep, err := NewExecutor(WithMetrics(m)).Run(context.Background(), s, sc)
	require.NoError(t, err)

	assert.True(t, rep.Passed())
	assert.Nil(t, rep.Failed())
	assert.Equal(t, "widgets", rep.Scenario)
	assert.Equal(t, s.ID, rep.SessionID)
	require.Len(t, rep.Steps, 9)
	for _, st := range rep.Steps {
		assert.False(t, st.Skipped, st.Name)
		assert.Empty(t, st.Kind, st.Name)
	}

	assert.Equal(t, "Ayşe Yılmaz", d.Attr(d.MustFind("#name"), "value"))
	assert.Equal(t, "true", d.Attr(d.MustFind("#sw"), "aria-checked"))
	assert.Equal(t, "Ataşehir", branch.Value())
	assert.Equal(t, []string{"Muayene", "Kontrol"}, types.Selected())
	assert.Equal(t, []string{"Dr. Kaya"}, doctors.Labels())
	assert.Equal(t, "Hasta 042", picked)

	shot := rep.Steps[8].Artifact
	assert.Equal(t, filepath.Join(s.ArtifactsDir, "after.png"), shot)
	assert.FileExists(t, shot)

	// One series per action, all passing.
	n, err := testutil.GatherAndCount(m.Registry(), "scalpel_e2e_step_executions_total")
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	d := fakedom.New(`<html><body><div id="panel" hidden></div></body></html>`)
	sc, err := Parse([]byte(`
name: broken
start_url: /appointments
steps:
  - action: wait_visible
    name: panel
    target: {selectors: [{id: panel}]}
  - action: screenshot
`), "")
	require.NoError(t, err)

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	m := observability.NewMetrics()
	rep, err := NewExecutor(WithMetrics(m), WithTracer(tp.Tracer("test"))).
		Run(context.Background(), newSession(t, d), sc)
	require.Error(t, err)

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Index, "the start navigation is step 0")
	assert.Equal(t, ActionWaitVisible, se.Action)
	assert.Contains(t, err.Error(), "step 2 (panel)")

	var te *driver.TimeoutError
	assert.True(t, errors.As(err, &te), "typed cause survives wrapping: %v", err)

	assert.Equal(t, []string{"https://his.example/appointments"}, d.History())
	require.Len(t, rep.Steps, 3)
	assert.Equal(t, ActionNavigate, rep.Steps[0].Action)
	assert.NoError(t, rep.Steps[0].Err)
	assert.Equal(t, "timeout", rep.Steps[1].Kind)
	assert.GreaterOrEqual(t, rep.Steps[1].Duration, 300*time.Millisecond, "waits the session default")
	assert.True(t, rep.Steps[2].Skipped)
	assert.Same(t, &rep.Steps[1], rep.Failed())

	spans := rec.Ended()
	require.Len(t, spans, 2, "skipped steps get no span")
	assert.Equal(t, "step navigate", spans[0].Name())
	assert.Equal(t, "step wait_visible", spans[1].Name())

	n, err := testutil.GatherAndCount(m.Registry(), "scalpel_e2e_step_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunStepTimeoutOverridesDefault(t *testing.T) {
	d := fakedom.New(`<html><body><div id="panel" hidden></div></body></html>`)
	target := &Target{Selectors: []Selector{{ID: "panel"}}}
	sc := &Scenario{Name: "slow", Steps: []Step{{Action: ActionWaitVisible, Target: target, Timeout: 30 * time.Millisecond}}}

	rep, err := NewExecutor().Run(context.Background(), newSession(t, d), sc)
	require.Error(t, err)
	assert.Equal(t, "timeout", rep.Steps[0].Kind)
	assert.Less(t, rep.Steps[0].Duration, 250*time.Millisecond)
}

const loginForm = `<html><body>
<form>
  <input name="username" value="">
  <input type="password" value="">
  <button type="submit">Giriş</button>
</form>
</body></html>`

func TestRunLoginUsesConfiguredCredentials(t *testing.T) {
	d := fakedom.New(loginForm)
	d.OnKey("input[type='password']", "Enter", func(d *fakedom.Document, n *html.Node) {
		d.SetURL("https://his.example/home")
	})
	sc := &Scenario{Name: "login", Steps: []Step{{Action: ActionLogin}}}
	require.NoError(t, Validate(sc))

	exec := NewExecutor(WithCredentials(Credentials{Username: "hemsire", Password: "s3cret", LoginPath: "/giris"}))
	_, err := exec.Run(context.Background(), newSession(t, d), sc)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://his.example/giris"}, d.History())
	assert.Equal(t, "hemsire", d.Attr(d.MustFind("input[name='username']"), "value"))
	assert.Equal(t, "s3cret", d.Attr(d.MustFind("input[type='password']"), "value"))
}

func TestRunLoginWithoutUsername(t *testing.T) {
	d := fakedom.New(loginForm)
	sc := &Scenario{Name: "login", Steps: []Step{{Action: ActionLogin}}}

	_, err := NewExecutor().Run(context.Background(), newSession(t, d), sc)
	assert.ErrorContains(t, err, "no username")
	assert.Empty(t, d.History())
}

func TestRunKeepOnlyMissingChip(t *testing.T) {
	d := fakedom.New(`<html><body></body></html>`)
	d.MountChips("doctors", []string{"Dr. Demir"})
	target := &Target{Selectors: []Selector{{CSS: "[data-testid='doctors']"}}}
	sc := &Scenario{Name: "chips", Steps: []Step{{Action: ActionKeepOnly, Target: target, Value: "Dr. Kaya"}}}

	rep, err := NewExecutor().Run(context.Background(), newSession(t, d), sc)
	var onf *driver.OptionNotFoundError
	require.ErrorAs(t, err, &onf)
	assert.Equal(t, "Dr. Kaya", onf.Label)
	assert.Equal(t, "option_not_found", rep.Steps[0].Kind)
}

func TestRunScreenshotNamesUnnamedSteps(t *testing.T) {
	d := fakedom.New(`<html><body></body></html>`)
	s := newSession(t, d)
	sc := &Scenario{Name: "shots", Steps: []Step{{Action: ActionScreenshot}, {Action: ActionScreenshot}}}

	rep, err := NewExecutor().Run(context.Background(), s, sc)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.ArtifactsDir, "step-02.png"), rep.Steps[1].Artifact)

	data, err := os.ReadFile(rep.Steps[0].Artifact)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(data[:4]))
}

const resourcesPage = `<html><body>
<a id="AppTenantSwitchLink" href="#">değiştir</a>
<form action="/Abp/MultiTenancy/TenantSwitchModal" hidden>
  <input id="Input_Name" value="">
  <button type="submit">Kaydet</button>
</form>
<div id="Grid" class="e-grid">
  <div class="e-gridcontent"><div class="e-content">
    <table id="Grid_content_table"><tbody role="rowgroup">
      <tr class="e-row"><td class="e-rowcell">Dr. Ayşe Kaya</td><td class="e-rowcell"><button class="e-editbutton">Düzenle</button></td></tr>
    </tbody></table>
  </div></div>
</div>
<div id="editor" class="e-dlg-container appointment-resources__dialog" hidden>
  <div class="e-tab-header"><div class="e-toolbar-items">
    <div class="e-toolbar-item e-active"><div class="e-tab-wrap"><span class="e-tab-text">Genel</span></div></div>
    <div class="e-toolbar-item"><div class="e-tab-wrap"><span class="e-tab-text">Çalışma Takvimi</span></div></div>
  </div></div>
  <table class="e-schedule-table e-content-table"><tbody><tr>
    <td class="e-day-wrapper"></td><td class="e-day-wrapper"></td><td class="e-day-wrapper" id="wednesday"></td>
    <td class="e-day-wrapper"></td><td class="e-day-wrapper"></td><td class="e-day-wrapper"></td><td class="e-day-wrapper"></td>
  </tr></tbody></table>
</div>
<div id="workplan" class="e-dlg-container" hidden><div class="e-dlg-header">Takvim Planı Yönetimi</div></div>
</body></html>`

func TestRunResourceWorkplanFlow(t *testing.T) {
	d := fakedom.New(resourcesPage)
	d.OnClick("#AppTenantSwitchLink", func(d *fakedom.Document, n *html.Node) { d.Show(d.MustFind("form")) })
	var tenant string
	d.OnClick("form button", func(d *fakedom.Document, n *html.Node) {
		tenant = d.Attr(d.MustFind("#Input_Name"), "value")
		d.Hide(d.MustFind("form"))
	})
	d.OnClick("button.e-editbutton", func(d *fakedom.Document, n *html.Node) { d.Show(d.MustFind("#editor")) })
	d.OnClick(".e-toolbar-item", func(d *fakedom.Document, n *html.Node) {
		for _, it := range d.Find(".e-toolbar-item") {
			d.RemoveClass(it, "e-active")
		}
		d.AddClass(n, "e-active")
	})
	var day string
	d.OnClick("td.e-day-wrapper", func(d *fakedom.Document, n *html.Node) {
		day = d.Attr(n, "id")
		d.Show(d.MustFind("#workplan"))
	})

	sc, err := Parse([]byte(`
name: resource workplan
steps:
  - action: select_tenant
    tenant: Merkez Hastanesi
  - action: edit_resource
    resource: {name: ayşe kaya, workplan_day: Çarşamba}
`), "")
	require.NoError(t, err)

	rep, err := NewExecutor().Run(context.Background(), newSession(t, d), sc)
	require.NoError(t, err)
	assert.True(t, rep.Passed())
	assert.Equal(t, "Merkez Hastanesi", tenant)
	assert.Equal(t, "wednesday", day)
	assert.True(t, d.HasClass(d.Find(".e-toolbar-item")[1], "e-active"))
}
