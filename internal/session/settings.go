// File: internal/session/settings.go
package session

import (
	"github.com/xkilldash9x/scalpel-e2e/internal/config"
	"github.com/xkilldash9x/scalpel-e2e/internal/popup"
	"github.com/xkilldash9x/scalpel-e2e/internal/statuspoll"
	"github.com/xkilldash9x/scalpel-e2e/internal/virtualscroll"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

// Settings are the engine budgets derived from configuration. Zero fields
// fall back to each component's defaults.
type Settings struct {
	Timeouts   wait.Timeouts
	Retry      config.RetryConfig
	Popup      popup.Config
	StatusPoll statuspoll.Config
	Scroll     config.ScrollConfig
}

// SettingsFrom maps configuration sections onto the component configs.
func SettingsFrom(cfg config.Interface) Settings {
	t := cfg.Timeouts()
	p := cfg.Popup()
	sp := cfg.StatusPoll()
	sc := cfg.Scroll()
	return Settings{
		Timeouts: wait.Timeouts{
			Tiny:    t.Tiny,
			Short:   t.Short,
			Medium:  t.Medium,
			Long:    t.Long,
			Default: t.Default,
			Poll:    t.Poll,
		},
		Retry: cfg.Retry(),
		Popup: popup.Config{
			OpenTimeout:   p.OpenTimeout,
			OpenAttempts:  p.OpenAttempts,
			OpenPause:     p.OpenPause,
			SettleDelay:   p.SettleDelay,
			TypeAhead:     p.TypeAhead,
			CommitTimeout: p.CommitTimeout,
			CloseTimeout:  p.CloseTimeout,
			ChipTimeout:   p.ChipTimeout,
			KeepOnlyGuard: p.KeepOnlyGuard,
			VirtualSteps:  sc.MaxSteps,
			VirtualSettle: sc.Settle,
		},
		StatusPoll: statuspoll.Config{
			Deadline:       sp.Deadline,
			Window:         sp.Window,
			ActionWindow:   sp.ActionWindow,
			ActionInterval: sp.ActionInterval,
			IdleInterval:   sp.IdleInterval,
			MaxReopens:     sp.MaxReopens,
		},
		Scroll: sc,
	}
}

// ScrollOptions turns the scroll section into virtualized-search options.
func (s Settings) ScrollOptions() []virtualscroll.Option {
	var opts []virtualscroll.Option
	if s.Scroll.MaxSteps > 0 {
		opts = append(opts, virtualscroll.WithMaxSteps(s.Scroll.MaxSteps))
	}
	if s.Scroll.MinStep > 0 || s.Scroll.StepRatio > 0 {
		opts = append(opts, virtualscroll.WithStep(s.Scroll.MinStep, s.Scroll.StepRatio))
	}
	if s.Scroll.Settle > 0 {
		opts = append(opts, virtualscroll.WithSettle(s.Scroll.Settle))
	}
	return opts
}
