// File: internal/statuspoll/statuspoll.go

// Package statuspoll waits for a status that changes asynchronously behind
// the UI. It observes the status, fires an action once when the status is in
// an actionable intermediate state, polls tightly for the effect, and
// reopens the observed surface when it disappears or a window runs out.
package statuspoll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/textmatch"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

// Observation is one reading of the status surface.
type Observation struct {
	Status string
	// Visible is false when the surface has been dismissed.
	Visible bool
}

// Probe is the page-specific side of the loop.
type Probe interface {
	// Observe reads the current status.
	Observe(ctx context.Context) (Observation, error)
	// Act triggers the state change. fired is false when the trigger was not
	// available (e.g. the button is disabled), so nothing happened.
	Act(ctx context.Context) (fired bool, err error)
	// Reopen brings the surface back after it closed or went quiet.
	Reopen(ctx context.Context) error
}

// Classifier maps a status text onto the loop's decisions.
type Classifier interface {
	Done(status string) bool
	Actionable(status string) bool
}

// Words classifies by normalized substring match.
type Words struct {
	DoneWords       []string
	ActionableWords []string
}

func (w Words) Done(status string) bool       { return textmatch.ContainsAny(status, w.DoneWords...) }
func (w Words) Actionable(status string) bool { return textmatch.ContainsAny(status, w.ActionableWords...) }

// Config bounds the loop.
type Config struct {
	Deadline       time.Duration
	Window         time.Duration
	ActionWindow   time.Duration
	ActionInterval time.Duration
	IdleInterval   time.Duration
	MaxReopens     int
}

// DefaultConfig: 30s overall, 12s windows, 8s at 400ms after an action,
// 350ms between idle reads, 3 reopens.
func DefaultConfig() Config {
	return Config{
		Deadline:       30 * time.Second,
		Window:         12 * time.Second,
		ActionWindow:   8 * time.Second,
		ActionInterval: 400 * time.Millisecond,
		IdleInterval:   350 * time.Millisecond,
		MaxReopens:     3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Deadline <= 0 {
		c.Deadline = d.Deadline
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.ActionWindow <= 0 {
		c.ActionWindow = d.ActionWindow
	}
	if c.ActionInterval <= 0 {
		c.ActionInterval = d.ActionInterval
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = d.IdleInterval
	}
	if c.MaxReopens < 0 {
		c.MaxReopens = d.MaxReopens
	}
	return c
}

// Result describes a successful poll.
type Result struct {
	Final   string
	Actions int
	Reopens int
	Elapsed time.Duration
}

// Poller runs the loop with a fixed configuration.
type Poller struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a Poller. A nil logger is replaced by a no-op logger.
func New(cfg Config, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{cfg: cfg.withDefaults(), logger: logger.Named("statuspoll")}
}

// PollUntil runs the loop with DefaultConfig.
func PollUntil(ctx context.Context, probe Probe, cls Classifier, logger *zap.Logger) (Result, error) {
	return New(DefaultConfig(), logger).Poll(ctx, probe, cls)
}

var errSurfaceGone = errors.New("status surface closed")

// Poll observes probe until cls reports done or the deadline passes. The
// returned *driver.TimeoutError carries the last observed status.
func (p *Poller) Poll(ctx context.Context, probe Probe, cls Classifier) (Result, error) {
	start := time.Now()
	var res Result
	var last string

	dctx, cancel := context.WithTimeout(ctx, p.cfg.Deadline)
	defer cancel()

	timeout := func(reason string) error {
		return &driver.TimeoutError{
			Condition:    "status to reach done (" + reason + ")",
			Elapsed:      time.Since(start),
			LastObserved: last,
		}
	}

	for {
		done, err := p.window(dctx, probe, cls, &res, &last)
		if done {
			res.Final = last
			res.Elapsed = time.Since(start)
			p.logger.Debug("Status reached done.",
				zap.String("status", last),
				zap.Int("actions", res.Actions),
				zap.Int("reopens", res.Reopens))
			return res, nil
		}
		if ctx.Err() != nil {
			return res, fmt.Errorf("status poll cancelled: %w", ctx.Err())
		}
		if dctx.Err() != nil {
			return res, timeout("deadline exceeded")
		}
		if err != nil && !errors.Is(err, errSurfaceGone) {
			return res, err
		}

		if res.Reopens >= p.cfg.MaxReopens {
			return res, timeout(fmt.Sprintf("surface reopened %d times", res.Reopens))
		}
		res.Reopens++
		p.logger.Warn("Reopening status surface.", zap.Int("reopen", res.Reopens), zap.String("last", last))
		if err := probe.Reopen(dctx); err != nil {
			if dctx.Err() != nil && ctx.Err() == nil {
				return res, timeout("deadline exceeded")
			}
			if !driver.IsTransient(err) {
				return res, fmt.Errorf("reopen status surface: %w", err)
			}
			p.logger.Debug("Reopen failed, retrying in the next window.", zap.Error(err))
		}
	}
}

// window polls for one window. The action fires at most once per window.
func (p *Poller) window(ctx context.Context, probe Probe, cls Classifier, res *Result, last *string) (bool, error) {
	wctx, cancel := context.WithTimeout(ctx, p.cfg.Window)
	defer cancel()
	lim := rate.NewLimiter(rate.Every(p.cfg.IdleInterval), 1)
	acted := false

	for {
		if err := lim.Wait(wctx); err != nil {
			return false, nil
		}
		obs, err := probe.Observe(wctx)
		if err != nil {
			if wctx.Err() != nil {
				return false, nil
			}
			if !driver.IsTransient(err) {
				return false, err
			}
			continue
		}
		if !obs.Visible {
			return false, errSurfaceGone
		}
		*last = obs.Status
		if cls.Done(obs.Status) {
			return true, nil
		}
		if acted || !cls.Actionable(obs.Status) {
			continue
		}

		fired, err := probe.Act(wctx)
		if err != nil {
			if wctx.Err() != nil {
				return false, nil
			}
			if !driver.IsTransient(err) {
				return false, fmt.Errorf("status action: %w", err)
			}
			p.logger.Debug("Status action failed transiently.", zap.Error(err))
			continue
		}
		if !fired {
			continue
		}
		acted = true
		res.Actions++
		p.logger.Debug("Status action fired.", zap.String("status", obs.Status))

		// Poll tightly for the effect of the action.
		err = wait.Until(wctx, "status after action", func(ctx context.Context) (bool, error) {
			obs, err := probe.Observe(ctx)
			if err != nil {
				return false, err
			}
			if !obs.Visible {
				return false, errSurfaceGone
			}
			*last = obs.Status
			return cls.Done(obs.Status), nil
		}, wait.WithTimeout(p.cfg.ActionWindow), wait.WithInterval(p.cfg.ActionInterval))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, errSurfaceGone):
			return false, err
		case wait.IsTimeout(err), wctx.Err() != nil:
			// Widen back out for the rest of the window.
		default:
			return false, err
		}
	}
}
