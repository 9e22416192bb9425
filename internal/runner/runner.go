// File: internal/runner/runner.go

// Package runner executes scenarios on a bounded pool of workers. Every
// scenario gets its own session, so workers share nothing but the launcher.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/scalpel-e2e/internal/config"
	"github.com/xkilldash9x/scalpel-e2e/internal/observability"
	"github.com/xkilldash9x/scalpel-e2e/internal/scenario"
	"github.com/xkilldash9x/scalpel-e2e/internal/session"
)

const (
	defaultConcurrency     = 1
	defaultScenarioTimeout = 10 * time.Minute
	failureShotTimeout     = 15 * time.Second
)

// SessionFactory opens a fresh session per scenario.
type SessionFactory interface {
	New(ctx context.Context, logger *zap.Logger) (*session.Session, error)
}

// Executor runs one scenario on one session.
type Executor interface {
	Run(ctx context.Context, s *session.Session, sc *scenario.Scenario) (*scenario.Report, error)
}

// Summary collects the reports of one run in input order.
type Summary struct {
	RunID    string
	Reports  []*scenario.Report
	Passed   int
	Failed   int
	Duration time.Duration
}

// OK reports whether every scenario passed.
func (s *Summary) OK() bool { return s.Failed == 0 }

// Runner is safe to reuse for consecutive runs, not for concurrent ones.
type Runner struct {
	cfg      config.RunnerConfig
	factory  SessionFactory
	exec     Executor
	logger   *zap.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
	driver   string
	textfile string

	stateLock sync.Mutex
	isRunning bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records scenario outcomes on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithTracer emits a span per scenario.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithMetricsTextfile writes the metrics registry to path after each run.
func WithMetricsTextfile(path string) Option {
	return func(r *Runner) { r.textfile = path }
}

// WithDriverName tags spans with the browser backend.
func WithDriverName(name string) Option {
	return func(r *Runner) { r.driver = name }
}

// New creates a Runner.
func New(cfg config.RunnerConfig, factory SessionFactory, exec Executor, logger *zap.Logger, opts ...Option) (*Runner, error) {
	if factory == nil {
		return nil, errors.New("session factory cannot be nil")
	}
	if exec == nil {
		return nil, errors.New("executor cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		cfg:     cfg,
		factory: factory,
		exec:    exec,
		logger:  logger.Named("runner"),
		tracer:  noop.NewTracerProvider().Tracer(""),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Run executes scenarios on runner.concurrency workers. A failing scenario
// does not stop the others. The error is non-nil only when the run itself
// could not complete, e.g. ctx was cancelled; scenario failures live in the
// summary.
func (r *Runner) Run(ctx context.Context, scenarios []*scenario.Scenario) (*Summary, error) {
	r.stateLock.Lock()
	if r.isRunning {
		r.stateLock.Unlock()
		return nil, errors.New("runner is already running")
	}
	r.isRunning = true
	r.stateLock.Unlock()
	defer func() {
		r.stateLock.Lock()
		r.isRunning = false
		r.stateLock.Unlock()
	}()

	concurrency := r.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	sum := &Summary{RunID: uuid.New().String(), Reports: make([]*scenario.Report, len(scenarios))}
	logger := r.logger.With(zap.String("run_id", sum.RunID))
	logger.Info("Starting run.", zap.Int("scenarios", len(scenarios)), zap.Int("concurrency", concurrency))

	start := time.Now()
	// A plain Group: one scenario's failure must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, sc := range scenarios {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			sum.Reports[i] = r.runOne(ctx, sum.RunID, sc)
			return nil
		})
	}
	_ = g.Wait()
	sum.Duration = time.Since(start)

	for i, rep := range sum.Reports {
		if rep == nil {
			// Never started because ctx ended first.
			sum.Reports[i] = &scenario.Report{Scenario: scenarios[i].Name, Source: scenarios[i].Source, Err: ctx.Err()}
			rep = sum.Reports[i]
		}
		if rep.Passed() {
			sum.Passed++
		} else {
			sum.Failed++
		}
	}

	if r.textfile != "" {
		if err := r.metrics.WriteTextfile(r.textfile); err != nil {
			logger.Warn("Could not write metrics textfile.", zap.Error(err))
		}
	}
	logger.Info("Run finished.",
		zap.Int("passed", sum.Passed),
		zap.Int("failed", sum.Failed),
		zap.Duration("took", sum.Duration))

	if err := ctx.Err(); err != nil {
		return sum, fmt.Errorf("run interrupted: %w", err)
	}
	return sum, nil
}

// runOne owns one scenario from session open to close.
func (r *Runner) runOne(ctx context.Context, runID string, sc *scenario.Scenario) (rep *scenario.Report) {
	timeout := r.cfg.ScenarioTimeout
	if timeout <= 0 {
		timeout = defaultScenarioTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, "scenario "+sc.Name, trace.WithAttributes(
		observability.AttrRunID.String(runID),
		observability.AttrScenario.String(sc.Name),
		observability.AttrDriver.String(r.driver),
	))
	done := r.metrics.ScenarioStarted()
	logger := observability.ForScenario(r.logger, runID, sc.Name)

	defer func() {
		// A panicking step fails its scenario, not the whole run.
		if p := recover(); p != nil {
			logger.Error("Scenario panicked.", zap.Any("panic", p), zap.Stack("stack"))
			rep = &scenario.Report{Scenario: sc.Name, Source: sc.Source, Err: fmt.Errorf("scenario panicked: %v", p)}
		}
		done(rep.Err)
		observability.EndSpan(span, rep.Err)
	}()

	s, err := r.factory.New(ctx, logger)
	if err != nil {
		logger.Error("Could not open session.", zap.Error(err))
		return &scenario.Report{Scenario: sc.Name, Source: sc.Source, Started: time.Now(), Err: err}
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn("Session close failed.", zap.Error(err))
		}
	}()

	rep, err = r.exec.Run(ctx, s, sc)
	if rep == nil {
		rep = &scenario.Report{Scenario: sc.Name, Source: sc.Source, SessionID: s.ID, Err: err}
	}
	if err != nil && r.cfg.ScreenshotOnFailure {
		rep.Screenshot = r.failureShot(ctx, s, runID, sc.Name, logger)
	}
	return rep
}

// failureShot captures the page even when the scenario's own deadline has
// already passed.
func (r *Runner) failureShot(ctx context.Context, s *session.Session, runID, name string, logger *zap.Logger) string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureShotTimeout)
	defer cancel()
	path, err := s.Screenshot(ctx, fmt.Sprintf("failure-%s-%s", name, runID[:8]))
	if err != nil {
		logger.Warn("Failure screenshot failed.", zap.Error(err))
		return ""
	}
	return path
}
