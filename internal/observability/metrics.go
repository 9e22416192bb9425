// File: internal/observability/metrics.go
package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
)

const metricsNamespace = "scalpel_e2e"

// Metrics collects run statistics on a private registry, so several runners
// in one process (and parallel tests) never collide on the default one.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	scenarios        *prometheus.CounterVec
	scenarioDuration *prometheus.HistogramVec
	steps            *prometheus.CounterVec
	stepErrors       *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	clicks           *prometheus.CounterVec
	pollActions      prometheus.Counter
	pollReopens      prometheus.Counter
	inFlight         prometheus.Gauge
}

// NewMetrics creates and registers the run metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scenarios: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "scenarios_total",
			Help:      "Scenario runs by outcome.",
		}, []string{"outcome"}),
		scenarioDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "scenario_duration_seconds",
			Help:      "Wall time of a scenario run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5m
		}, []string{"outcome"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "step",
			Name:      "executions_total",
			Help:      "Scenario steps by action and result.",
		}, []string{"action", "result"}),
		stepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "step_errors_total",
			Help:      "Failed steps by error kind.",
		}, []string{"kind"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "step",
			Name:      "duration_seconds",
			Help:      "Wall time of a scenario step.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		}, []string{"action"}),
		clicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "interact",
			Name:      "clicks_total",
			Help:      "Successful clicks by the fallback level that landed them.",
		}, []string{"level"}),
		pollActions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "status_poll",
			Name:      "actions_total",
			Help:      "Actions fired by status-poll loops.",
		}),
		pollReopens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "status_poll",
			Name:      "reopens_total",
			Help:      "Surfaces reopened by status-poll loops.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "scenario",
			Name:      "in_flight",
			Help:      "Scenarios currently running.",
		}),
	}
	m.registry.MustRegister(
		m.scenarios, m.scenarioDuration, m.steps, m.stepErrors, m.stepDuration,
		m.clicks, m.pollActions, m.pollReopens, m.inFlight,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry exposes the underlying registry, e.g. for tests or an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func result(err error) string {
	if err != nil {
		return "fail"
	}
	return "pass"
}

// ScenarioStarted marks a scenario as running and returns the func that
// records its outcome.
func (m *Metrics) ScenarioStarted() func(err error) {
	if m == nil {
		return func(error) {}
	}
	start := time.Now()
	m.inFlight.Inc()
	return func(err error) {
		m.inFlight.Dec()
		r := result(err)
		m.scenarios.WithLabelValues(r).Inc()
		m.scenarioDuration.WithLabelValues(r).Observe(time.Since(start).Seconds())
	}
}

// ObserveStep records one step.
func (m *Metrics) ObserveStep(action string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(action, result(err)).Inc()
	if err != nil {
		m.stepErrors.WithLabelValues(driver.Kind(err)).Inc()
	}
	m.stepDuration.WithLabelValues(action).Observe(d.Seconds())
}

// ObserveClick counts a landed click by level.
func (m *Metrics) ObserveClick(level string) {
	if m == nil {
		return
	}
	m.clicks.WithLabelValues(level).Inc()
}

// ObservePoll records what a status-poll loop had to do.
func (m *Metrics) ObservePoll(actions, reopens int) {
	if m == nil {
		return
	}
	m.pollActions.Add(float64(actions))
	m.pollReopens.Add(float64(reopens))
}

// WriteTextfile writes the registry in the node-exporter textfile format.
// The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
