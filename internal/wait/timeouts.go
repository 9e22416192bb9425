// File: internal/wait/timeouts.go
package wait

import "time"

// Timeouts are the named budgets call sites pick from: short ones for
// existence probes, long ones for navigation and heavy renders.
type Timeouts struct {
	Tiny    time.Duration
	Short   time.Duration
	Medium  time.Duration
	Long    time.Duration
	Default time.Duration
	Poll    time.Duration
}

// DefaultTimeouts returns 2s/5s/20s/60s with a 20s default and 250ms polling.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Tiny:    2 * time.Second,
		Short:   5 * time.Second,
		Medium:  20 * time.Second,
		Long:    60 * time.Second,
		Default: DefaultTimeout,
		Poll:    DefaultInterval,
	}
}

// WithDefaults fills zero fields from DefaultTimeouts.
func (t Timeouts) WithDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Tiny <= 0 {
		t.Tiny = d.Tiny
	}
	if t.Short <= 0 {
		t.Short = d.Short
	}
	if t.Medium <= 0 {
		t.Medium = d.Medium
	}
	if t.Long <= 0 {
		t.Long = d.Long
	}
	if t.Default <= 0 {
		t.Default = d.Default
	}
	if t.Poll <= 0 {
		t.Poll = d.Poll
	}
	return t
}

// Opts turns a budget into wait options using the configured poll interval.
func (t Timeouts) Opts(budget time.Duration) []Option {
	return []Option{WithTimeout(budget), WithInterval(t.Poll)}
}
