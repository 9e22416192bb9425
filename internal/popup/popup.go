// File: internal/popup/popup.go

// Package popup drives overlay-based choice widgets: single and multi-select
// dropdowns and chip collections. Every interaction follows one protocol:
// open the trigger, locate the popup, optionally type ahead, locate the
// option directly or through a virtualized scan, select it and wait for the
// popup and the bound value to settle.
package popup

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/interact"
	"github.com/xkilldash9x/scalpel-e2e/internal/locator"
)

// State is a step of the popup protocol.
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpen
	StateSearching
	StateOptionLocated
	StateSelected
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpening:
		return "OPENING"
	case StateOpen:
		return "OPEN"
	case StateSearching:
		return "OPEN_SEARCHING"
	case StateOptionLocated:
		return "OPTION_LOCATED"
	case StateSelected:
		return "SELECTED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// transitions lists the legal successors of every state. A multi-select
// stays open after a selection, so SELECTED may lead back to searching, and
// a located option may be located again after a re-render.
var transitions = map[State][]State{
	StateClosed:        {StateOpening},
	StateOpening:       {StateOpen, StateClosed},
	StateOpen:          {StateSearching, StateOptionLocated, StateClosed},
	StateSearching:     {StateOptionLocated, StateSearching, StateClosed},
	StateOptionLocated: {StateSelected, StateOptionLocated, StateSearching, StateClosed},
	StateSelected:      {StateClosed, StateOpen, StateSearching, StateOptionLocated},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Dropdown identifies a choice widget by its wrapper block. The input and
// open icon are looked up inside the block.
type Dropdown struct {
	Name  string
	Block locator.Locator
	Multi bool
}

// ChipField identifies a control that renders its selections as removable chips.
type ChipField struct {
	Name  string
	Block locator.Locator
}

// Config holds the protocol's budgets.
type Config struct {
	// OpenTimeout bounds the wait for the expanded signal after one open attempt.
	OpenTimeout  time.Duration
	OpenAttempts int
	OpenPause    time.Duration
	// SettleDelay is the pause after type-ahead input. The list filters
	// asynchronously and exposes no completion signal.
	SettleDelay    time.Duration
	TypeAhead      bool
	CommitTimeout  time.Duration
	CloseTimeout   time.Duration
	ChipTimeout    time.Duration
	KeepOnlyGuard  int
	VirtualSteps   int
	VirtualSettle  time.Duration
	SnapshotLength int
}

// DefaultConfig mirrors the timings the application has been tuned against.
func DefaultConfig() Config {
	return Config{
		OpenTimeout:    2 * time.Second,
		OpenAttempts:   3,
		OpenPause:      250 * time.Millisecond,
		SettleDelay:    150 * time.Millisecond,
		TypeAhead:      true,
		CommitTimeout:  10 * time.Second,
		CloseTimeout:   5 * time.Second,
		ChipTimeout:    5 * time.Second,
		KeepOnlyGuard:  20,
		VirtualSteps:   60,
		VirtualSettle:  40 * time.Millisecond,
		SnapshotLength: 400,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = d.OpenTimeout
	}
	if c.OpenAttempts <= 0 {
		c.OpenAttempts = d.OpenAttempts
	}
	if c.OpenPause < 0 {
		c.OpenPause = d.OpenPause
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = d.SettleDelay
	}
	if c.CommitTimeout <= 0 {
		c.CommitTimeout = d.CommitTimeout
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = d.CloseTimeout
	}
	if c.ChipTimeout <= 0 {
		c.ChipTimeout = d.ChipTimeout
	}
	if c.KeepOnlyGuard <= 0 {
		c.KeepOnlyGuard = d.KeepOnlyGuard
	}
	if c.VirtualSteps <= 0 {
		c.VirtualSteps = d.VirtualSteps
	}
	if c.VirtualSettle < 0 {
		c.VirtualSettle = d.VirtualSettle
	}
	if c.SnapshotLength <= 0 {
		c.SnapshotLength = d.SnapshotLength
	}
	return c
}

// Widget selectors of the component library the application is built on.
var (
	iconSel = []driver.Selector{
		driver.CSS(".e-input-group-icon.e-ddl-icon"),
		driver.CSS(".e-ddl-icon"),
	}
	inputSel = []driver.Selector{driver.CSS("input[id]"), driver.CSS("input")}

	popupCandidates = locator.CSS("open popup",
		"div[id$='_popup'].e-popup",
		".e-popup-open",
		"div.e-popup",
		".e-dropdownbase .e-content",
		"ul[role='listbox']",
		".e-list-parent",
	)
	optionLoc = locator.CSS("options", "li[role='option']", ".e-list-item")
	searchLoc = locator.CSS("popup search",
		"input.e-input-filter",
		".e-filter-parent input",
		"input[type='search']",
	)
	scrollCandidates = locator.CSS("popup scroller",
		".e-content",
		"ul[role='listbox']",
		".e-list-parent",
	)
	selectAllLoc = locator.CSS("select all", ".e-selectall-parent", ".e-all-text")

	chipLoc      = locator.CSS("chips", ".e-chips-collection .e-chips")
	chipTextLoc  = locator.CSS("chip content", ".e-chipcontent")
	chipCloseLoc = locator.CSS("chip close", ".e-chips-close")
)

// Normalized captions of the multi-select "all" affordance.
var (
	clearAllCaptions  = []string{"tumunun secimini kaldir", "clear all", "unselect all"}
	selectAllCaptions = []string{"hepsini sec", "tumunu sec", "select all"}
)

// Protocol runs popup interactions for one session.
type Protocol struct {
	in     *interact.Interactor
	cfg    Config
	logger *zap.Logger
}

// New creates a Protocol on top of an Interactor.
func New(in *interact.Interactor, cfg Config) *Protocol {
	return &Protocol{
		in:     in,
		cfg:    cfg.withDefaults(),
		logger: in.Logger().Named("popup"),
	}
}

// Config returns the effective configuration.
func (p *Protocol) Config() Config { return p.cfg }
