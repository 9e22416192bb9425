// File: internal/observability/metrics_test.go
package observability

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/config"
)

func TestMetricsTextfile(t *testing.T) {
	m := NewMetrics()

	done := m.ScenarioStarted()
	m.ObserveStep("select", 120*time.Millisecond, nil)
	m.ObserveStep("select", 80*time.Millisecond, &driver.OptionNotFoundError{Label: "Nöroloji"})
	m.ObserveClick("native")
	m.ObserveClick("synthetic")
	m.ObserveClick("synthetic")
	m.ObservePoll(1, 2)
	done(errors.New("step 2 failed"))

	path := filepath.Join(t.TempDir(), "nested", "e2e.prom")
	require.NoError(t, m.WriteTextfile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)

	assert.Contains(t, out, `scalpel_e2e_scenarios_total{outcome="fail"} 1`)
	assert.Contains(t, out, `scalpel_e2e_step_errors_total{kind="option_not_found"} 1`)
	assert.Contains(t, out, `scalpel_e2e_step_executions_total{action="select",result="pass"} 1`)
	assert.Contains(t, out, `scalpel_e2e_step_executions_total{action="select",result="fail"} 1`)
	assert.Contains(t, out, `scalpel_e2e_interact_clicks_total{level="synthetic"} 2`)
	assert.Contains(t, out, `scalpel_e2e_status_poll_actions_total 1`)
	assert.Contains(t, out, `scalpel_e2e_status_poll_reopens_total 2`)
	assert.Contains(t, out, `scalpel_e2e_scenario_in_flight 0`)
}

func TestMetricsRegistriesAreIndependent(t *testing.T) {
	// Two instances must not panic on duplicate registration.
	a, b := NewMetrics(), NewMetrics()
	assert.NotSame(t, a.Registry(), b.Registry())
}

func TestNilMetricsIsANoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ScenarioStarted()(nil)
		m.ObserveStep("click", time.Second, nil)
		m.ObserveClick("native")
		m.ObservePoll(1, 1)
		assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
	})
	assert.Nil(t, m.Registry())
}

func TestTracing(t *testing.T) {
	t.Run("spans reach the exporter", func(t *testing.T) {
		var buf bytes.Buffer
		tr, err := newTracing(&buf, func() error { return nil }, "scalpel-e2e", "test")
		require.NoError(t, err)

		ctx, span := tr.Tracer().Start(context.Background(), "scenario check-in")
		span.SetAttributes(AttrScenario.String("check-in"))
		_, child := tr.Tracer().Start(ctx, "step select")
		EndSpan(child, errors.New("option not found"))
		EndSpan(span, nil)

		require.NoError(t, tr.Shutdown(context.Background()))
		out := buf.String()
		assert.Contains(t, out, "scenario check-in")
		assert.Contains(t, out, "step select")
		assert.Contains(t, out, "option not found")
		assert.Contains(t, out, "e2e.scenario")
	})

	t.Run("disabled tracing is a no-op", func(t *testing.T) {
		tr, err := NewTracing(config.TracingConfig{Enabled: false}, "scalpel-e2e", "test")
		require.NoError(t, err)
		_, span := tr.Tracer().Start(context.Background(), "ignored")
		assert.False(t, span.SpanContext().IsValid())
		EndSpan(span, nil)
		assert.NoError(t, tr.Shutdown(context.Background()))
	})

	t.Run("file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "spans.json")
		tr, err := NewTracing(config.TracingConfig{Enabled: true, Output: path}, "scalpel-e2e", "test")
		require.NoError(t, err)
		_, span := tr.Tracer().Start(context.Background(), "to file")
		span.End()
		require.NoError(t, tr.Shutdown(context.Background()))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "to file")
	})
}
