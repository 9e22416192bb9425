// File: internal/runner/runner_test.go
package runner

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-e2e/internal/config"
	"github.com/xkilldash9x/scalpel-e2e/internal/observability"
	"github.com/xkilldash9x/scalpel-e2e/internal/scenario"
	"github.com/xkilldash9x/scalpel-e2e/internal/session"
	"github.com/xkilldash9x/scalpel-e2e/internal/testing/fakedom"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const page = `<html><body><div id="ready">ok</div><div id="never" hidden></div></body></html>`

type fakeFactory struct {
	mu        sync.Mutex
	docs      []*fakedom.Document
	err       error
	artifacts string
}

func (f *fakeFactory) New(ctx context.Context, logger *zap.Logger) (*session.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	d := fakedom.New(page)
	f.mu.Lock()
	f.docs = append(f.docs, d)
	f.mu.Unlock()
	return session.New(d, session.Params{
		Logger:       logger,
		BaseURL:      "https://his.example",
		ArtifactsDir: f.artifacts,
		Settings: session.Settings{
			Timeouts: wait.Timeouts{
				Tiny: 20 * time.Millisecond, Short: 50 * time.Millisecond, Medium: 100 * time.Millisecond,
				Long: 200 * time.Millisecond, Default: 100 * time.Millisecond, Poll: 5 * time.Millisecond,
			},
		},
	}), nil
}

func (f *fakeFactory) allClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.docs {
		if !d.Closed() {
			return false
		}
	}
	return len(f.docs) > 0
}

func waitFor(name, id string) *scenario.Scenario {
	return &scenario.Scenario{
		Name: name,
		Steps: []scenario.Step{{
			Action: scenario.ActionWaitVisible,
			Target: &scenario.Target{Selectors: []scenario.Selector{{ID: id}}},
		}},
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	f := &fakeFactory{artifacts: t.TempDir()}
	m := observability.NewMetrics()
	textfile := filepath.Join(t.TempDir(), "metrics", "e2e.prom")
	cfg := config.RunnerConfig{Concurrency: 2, ScenarioTimeout: 5 * time.Second, ScreenshotOnFailure: true}

	r, err := New(cfg, f, scenario.NewExecutor(scenario.WithMetrics(m)), zaptest.NewLogger(t),
		WithMetrics(m), WithMetricsTextfile(textfile), WithDriverName("fake"))
	require.NoError(t, err)

	sum, err := r.Run(context.Background(), []*scenario.Scenario{
		waitFor("first", "ready"),
		waitFor("broken", "never"),
		waitFor("third", "ready"),
	})
	require.NoError(t, err)

	assert.False(t, sum.OK())
	assert.Equal(t, 2, sum.Passed)
	assert.Equal(t, 1, sum.Failed)
	assert.NotEmpty(t, sum.RunID)
	require.Len(t, sum.Reports, 3)
	assert.Equal(t, []string{"first", "broken", "third"},
		[]string{sum.Reports[0].Scenario, sum.Reports[1].Scenario, sum.Reports[2].Scenario})

	broken := sum.Reports[1]
	assert.Equal(t, "timeout", broken.Failed().Kind)
	assert.FileExists(t, broken.Screenshot)
	assert.Contains(t, filepath.Base(broken.Screenshot), "failure-broken-")
	assert.Empty(t, sum.Reports[0].Screenshot)

	assert.Len(t, f.docs, 3, "one session per scenario")
	assert.True(t, f.allClosed())

	n, err := testutil.GatherAndCount(m.Registry(), "scalpel_e2e_scenarios_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "pass and fail series")
	assert.FileExists(t, textfile)
}

// gate counts how many runs overlap.
type gate struct {
	inFlight, peak atomic.Int32
	hold           time.Duration
}

func (g *gate) Run(ctx context.Context, s *session.Session, sc *scenario.Scenario) (*scenario.Report, error) {
	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	defer g.inFlight.Add(-1)
	if err := wait.Sleep(ctx, g.hold); err != nil {
		return &scenario.Report{Scenario: sc.Name, Err: err}, err
	}
	return &scenario.Report{Scenario: sc.Name, SessionID: s.ID}, nil
}

func TestRunBoundsConcurrency(t *testing.T) {
	g := &gate{hold: 30 * time.Millisecond}
	r, err := New(config.RunnerConfig{Concurrency: 2}, &fakeFactory{}, g, zaptest.NewLogger(t))
	require.NoError(t, err)

	scenarios := make([]*scenario.Scenario, 6)
	for i := range scenarios {
		scenarios[i] = &scenario.Scenario{Name: string(rune('a' + i))}
	}
	sum, err := r.Run(context.Background(), scenarios)
	require.NoError(t, err)
	assert.True(t, sum.OK())
	assert.Equal(t, int32(2), g.peak.Load())
}

func TestRunScenarioTimeout(t *testing.T) {
	g := &gate{hold: time.Minute}
	r, err := New(config.RunnerConfig{ScenarioTimeout: 30 * time.Millisecond}, &fakeFactory{}, g, zaptest.NewLogger(t))
	require.NoError(t, err)

	start := time.Now()
	sum, err := r.Run(context.Background(), []*scenario.Scenario{{Name: "slow"}})
	require.NoError(t, err, "a scenario timeout is a scenario failure, not a run failure")
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, sum.Failed)
	assert.ErrorIs(t, sum.Reports[0].Err, context.DeadlineExceeded)
}

func TestRunSessionOpenFailure(t *testing.T) {
	boom := errors.New("chrome failed to start")
	r, err := New(config.RunnerConfig{}, &fakeFactory{err: boom}, scenario.NewExecutor(), zaptest.NewLogger(t))
	require.NoError(t, err)

	sum, err := r.Run(context.Background(), []*scenario.Scenario{waitFor("one", "ready")})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	assert.ErrorIs(t, sum.Reports[0].Err, boom)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := New(config.RunnerConfig{}, &fakeFactory{}, &gate{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	sum, err := r.Run(ctx, []*scenario.Scenario{{Name: "a"}, {Name: "b"}})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, sum.Reports, 2)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, "b", sum.Reports[1].Scenario)
}

type panicky struct{}

func (panicky) Run(context.Context, *session.Session, *scenario.Scenario) (*scenario.Report, error) {
	panic("driver exploded")
}

func TestRunRecoversPanics(t *testing.T) {
	f := &fakeFactory{}
	r, err := New(config.RunnerConfig{Concurrency: 2}, f, panicky{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	sum, err := r.Run(context.Background(), []*scenario.Scenario{{Name: "a"}, {Name: "b"}})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Failed)
	assert.ErrorContains(t, sum.Reports[0].Err, "driver exploded")
	assert.True(t, f.allClosed(), "sessions close even when a step panics")
}

func TestRunRejectsReentry(t *testing.T) {
	g := &gate{hold: 100 * time.Millisecond}
	r, err := New(config.RunnerConfig{}, &fakeFactory{}, g, zaptest.NewLogger(t))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Run(context.Background(), []*scenario.Scenario{{Name: "long"}})
	}()
	require.Eventually(t, func() bool { return g.inFlight.Load() == 1 }, time.Second, time.Millisecond)

	_, err = r.Run(context.Background(), []*scenario.Scenario{{Name: "second"}})
	assert.ErrorContains(t, err, "already running")
	<-done
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(config.RunnerConfig{}, nil, scenario.NewExecutor(), nil)
	assert.ErrorContains(t, err, "session factory")
	_, err = New(config.RunnerConfig{}, &fakeFactory{}, nil, nil)
	assert.ErrorContains(t, err, "executor")
}
