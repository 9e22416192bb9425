// File: internal/scenario/executor.go
package scenario

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/observability"
	"github.com/xkilldash9x/scalpel-e2e/internal/session"
)

// Credentials fill login steps that carry none of their own.
type Credentials struct {
	Username  string
	Password  string
	LoginPath string
}

// StepError is the error of the step that stopped a scenario.
type StepError struct {
	Index  int
	Name   string
	Action Action
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index+1, e.Name, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// StepResult is what one step did.
type StepResult struct {
	Index    int
	Name     string
	Action   Action
	Duration time.Duration
	// Kind buckets Err, see driver.Kind.
	Kind string
	Err  error
	// Artifact is the file a screenshot step wrote.
	Artifact string
	Skipped  bool
}

// Report is the outcome of one scenario run.
type Report struct {
	Scenario  string
	Source    string
	SessionID string
	Started   time.Time
	Duration  time.Duration
	Steps     []StepResult
	Err       error
	// Screenshot is taken by the runner when the scenario failed.
	Screenshot string
}

// Passed reports whether every step succeeded.
func (r *Report) Passed() bool { return r.Err == nil }

// Failed returns the failing step, or nil.
func (r *Report) Failed() *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Err != nil {
			return &r.Steps[i]
		}
	}
	return nil
}

// Executor runs scenarios. It holds no per-run state and may be shared by
// workers; everything a run mutates lives in its session and run value.
type Executor struct {
	metrics *observability.Metrics
	tracer  trace.Tracer
	creds   Credentials
}

type ExecutorOption func(*Executor)

func WithMetrics(m *observability.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		if t != nil {
			e.tracer = t
		}
	}
}

func WithCredentials(c Credentials) ExecutorOption {
	return func(e *Executor) { e.creds = c }
}

func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{tracer: noop.NewTracerProvider().Tracer("")}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes sc on s in order and stops at the first failing step. Steps
// after it are reported as skipped. The returned error is the report's
// error, a *StepError.
func (e *Executor) Run(ctx context.Context, s *session.Session, sc *Scenario) (*Report, error) {
	rep := &Report{
		Scenario:  sc.Name,
		Source:    sc.Source,
		SessionID: s.ID,
		Started:   time.Now(),
		Steps:     make([]StepResult, 0, len(sc.Steps)),
	}
	logger := s.Logger
	r := newRun(s, e.creds, e.metrics, logger)
	logger.Info("Scenario started.", zap.String("name", sc.Name), zap.Int("steps", len(sc.Steps)))

	steps := sc.Steps
	if sc.StartURL != "" {
		steps = append([]Step{{Name: "start", Action: ActionNavigate, URL: sc.StartURL}}, steps...)
	}

	for i, st := range steps {
		if rep.Err != nil {
			rep.Steps = append(rep.Steps, StepResult{Index: i, Name: st.Label(), Action: st.Action, Skipped: true})
			continue
		}
		res := e.step(ctx, r, i, st)
		rep.Steps = append(rep.Steps, res)
		if res.Err != nil {
			rep.Err = &StepError{Index: i, Name: res.Name, Action: st.Action, Err: res.Err}
			logger.Error("Step failed.",
				zap.String("scenario", sc.Name),
				zap.Int("step", i+1),
				zap.String("name", res.Name),
				zap.String("kind", res.Kind),
				zap.Error(res.Err))
		}
	}
	rep.Duration = time.Since(rep.Started)
	if rep.Err == nil {
		logger.Info("Scenario passed.", zap.String("name", sc.Name), zap.Duration("took", rep.Duration))
	}
	return rep, rep.Err
}

func (e *Executor) step(ctx context.Context, r *run, i int, st Step) StepResult {
	res := StepResult{Index: i, Name: st.Label(), Action: st.Action}

	ctx, span := e.tracer.Start(ctx, "step "+string(st.Action), trace.WithAttributes(
		observability.AttrStep.Int(i),
		observability.AttrAction.String(string(st.Action)),
	))
	if st.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, st.Timeout)
		defer cancel()
	}

	r.logger.Debug("Step started.", zap.Int("step", i+1), zap.String("name", res.Name))
	start := time.Now()
	res.Artifact, res.Err = r.do(ctx, i, st)
	res.Duration = time.Since(start)
	res.Kind = driver.Kind(res.Err)

	e.metrics.ObserveStep(string(st.Action), res.Duration, res.Err)
	observability.EndSpan(span, res.Err)
	if res.Err == nil {
		r.logger.Debug("Step done.", zap.Int("step", i+1), zap.Duration("took", res.Duration))
	}
	return res
}
