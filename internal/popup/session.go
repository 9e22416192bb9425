// File: internal/popup/session.go
package popup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/locator"
	"github.com/xkilldash9x/scalpel-e2e/internal/textmatch"
	"github.com/xkilldash9x/scalpel-e2e/internal/virtualscroll"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

// Session is one open/select/close cycle of a dropdown. Its handles are
// refreshed after every action that can re-render the popup.
type Session struct {
	p     *Protocol
	root  driver.Finder
	dd    Dropdown
	state State

	// Root is the resolved popup container.
	Root driver.Element
	// Trigger is the dropdown's input.
	Trigger driver.Element
	// Search is the popup's filter input, nil when the popup has none.
	Search driver.Element

	// popup re-resolves Root the same way it was first found.
	popup func(ctx context.Context) (driver.Element, error)
	log   *zap.Logger
}

// State returns the protocol state.
func (s *Session) State() State { return s.state }

// Dropdown returns the widget this session drives.
func (s *Session) Dropdown() Dropdown { return s.dd }

func (s *Session) transition(to State) error {
	if !canTransition(s.state, to) {
		return fmt.Errorf("popup %s: illegal transition %s -> %s", s.dd.Name, s.state, to)
	}
	s.log.Debug("Popup state transition.", zap.String("from", s.state.String()), zap.String("to", to.String()))
	s.state = to
	return nil
}

func (s *Session) block(ctx context.Context) (driver.Element, error) {
	return s.dd.Block.First(ctx, s.root)
}

func (s *Session) input(ctx context.Context) (driver.Element, error) {
	b, err := s.block(ctx)
	if err != nil {
		return nil, err
	}
	return locator.Of(s.dd.Name+" input", inputSel).First(ctx, b)
}

// Open clicks the dropdown's trigger until it reports expanded and resolves
// the popup root. When clicks do not open it, the keyboard combination is
// tried before giving up.
func (p *Protocol) Open(ctx context.Context, root driver.Finder, dd Dropdown) (*Session, error) {
	s := &Session{
		p:     p,
		root:  root,
		dd:    dd,
		state: StateClosed,
		log:   p.logger.With(zap.String("dropdown", dd.Name)),
	}
	if err := s.transition(StateOpening); err != nil {
		return nil, err
	}
	if err := s.open(ctx); err != nil {
		s.state = StateClosed
		return nil, err
	}
	if err := s.Refresh(ctx); err != nil {
		s.state = StateClosed
		return nil, err
	}
	if err := s.transition(StateOpen); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) open(ctx context.Context) error {
	cfg := s.p.cfg
	if ok, _ := s.expanded(ctx); ok {
		return nil
	}

	targets := []struct {
		name string
		find func(ctx context.Context) (driver.Element, error)
	}{
		{"icon", func(ctx context.Context) (driver.Element, error) {
			b, err := s.block(ctx)
			if err != nil {
				return nil, err
			}
			return locator.Of(s.dd.Name+" icon", iconSel).FirstVisible(ctx, b)
		}},
		{"input", s.input},
		{"block", s.block},
	}

	var failures []error
	for attempt := 0; attempt < cfg.OpenAttempts; attempt++ {
		t := targets[attempt%len(targets)]
		err := wait.RetryOnStaleErr(ctx, func(ctx context.Context) error {
			el, err := t.find(ctx)
			if err != nil {
				return err
			}
			return s.p.in.ClickElement(ctx, el)
		}, wait.Named("open "+s.dd.Name))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures = append(failures, fmt.Errorf("click %s: %w", t.name, err))
		} else if err := s.awaitExpanded(ctx); err == nil {
			return nil
		} else {
			failures = append(failures, fmt.Errorf("click %s: %w", t.name, err))
		}
		if attempt < cfg.OpenAttempts-1 {
			if err := wait.Sleep(ctx, cfg.OpenPause); err != nil {
				return err
			}
		}
	}

	s.log.Warn("Dropdown did not open on click, trying keyboard.", zap.Int("attempts", cfg.OpenAttempts))
	err := wait.RetryOnStaleErr(ctx, func(ctx context.Context) error {
		in, err := s.input(ctx)
		if err != nil {
			return err
		}
		return in.Press(ctx, "Alt+ArrowDown")
	}, wait.Named("open "+s.dd.Name+" by keyboard"))
	if err == nil {
		err = s.awaitExpanded(ctx)
	}
	if err == nil {
		return nil
	}
	failures = append(failures, fmt.Errorf("keyboard: %w", err))
	return fmt.Errorf("open dropdown %s: %w", s.dd.Name, errors.Join(failures...))
}

func (s *Session) awaitExpanded(ctx context.Context) error {
	return wait.Until(ctx, s.dd.Name+" to expand", s.expanded,
		wait.WithTimeout(s.p.cfg.OpenTimeout), wait.WithInterval(s.p.in.Timeouts().Poll))
}

// expanded reports the open signal: aria-expanded on the block or input,
// or a visible associated popup.
func (s *Session) expanded(ctx context.Context) (bool, error) {
	b, err := s.block(ctx)
	if err != nil {
		return false, err
	}
	if v, err := b.Attribute(ctx, "aria-expanded"); err != nil {
		return false, err
	} else if v == "true" {
		return true, nil
	}
	in, err := locator.Of(s.dd.Name+" input", inputSel).First(ctx, b)
	if err != nil {
		var nf *driver.ElementNotFoundError
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, err
	}
	if v, err := in.Attribute(ctx, "aria-expanded"); err != nil {
		return false, err
	} else if v == "true" {
		return true, nil
	}
	pop, err := s.associated(ctx, in)
	if err != nil || pop == nil {
		return false, err
	}
	return pop.Visible(ctx)
}

// associated follows the explicit input-to-popup association: "<id>_popup",
// then aria-owns and "<aria-owns>_popup". It returns nil when none resolves.
func (s *Session) associated(ctx context.Context, in driver.Element) (driver.Element, error) {
	var sels []driver.Selector
	id, err := in.Attribute(ctx, "id")
	if err != nil {
		return nil, err
	}
	if id != "" {
		sels = append(sels, driver.ID(id+"_popup"))
	}
	owns, err := in.Attribute(ctx, "aria-owns")
	if err != nil {
		return nil, err
	}
	if owns = strings.TrimSpace(owns); owns != "" {
		owns = strings.Fields(owns)[0]
		sels = append(sels, driver.ID(owns), driver.ID(owns+"_popup"))
	}
	for _, sel := range sels {
		els, err := s.root.FindAll(ctx, sel)
		if err != nil {
			return nil, err
		}
		if len(els) > 0 {
			return els[0], nil
		}
	}
	return nil, nil
}

// detectOpen falls back to the most recently opened visible popup-like
// container holding at least one visible option. Later nodes in document
// order are more recent.
func (s *Session) detectOpen(ctx context.Context) (driver.Element, error) {
	for _, sel := range popupCandidates.Selectors() {
		els, err := s.root.FindAll(ctx, sel)
		if err != nil {
			return nil, err
		}
		for i := len(els) - 1; i >= 0; i-- {
			vis, err := els[i].Visible(ctx)
			if err != nil || !vis {
				continue
			}
			opts, err := optionLoc.ResolveAll(ctx, els[i])
			if err != nil {
				continue
			}
			if v, err := locator.Visible(ctx, opts); err == nil && len(v) > 0 {
				return els[i], nil
			}
		}
	}
	return nil, &driver.ElementNotFoundError{Locator: popupCandidates.String()}
}

func (s *Session) resolvePopup(ctx context.Context) (driver.Element, error) {
	in, err := s.input(ctx)
	if err == nil {
		pop, err := s.associated(ctx, in)
		if err != nil {
			return nil, err
		}
		if pop != nil {
			if vis, err := pop.Visible(ctx); err == nil && vis {
				s.popup = func(ctx context.Context) (driver.Element, error) {
					in, err := s.input(ctx)
					if err != nil {
						return nil, err
					}
					el, err := s.associated(ctx, in)
					if err == nil && el == nil {
						err = &driver.ElementNotFoundError{Locator: s.dd.Name + " popup"}
					}
					return el, err
				}
				return pop, nil
			}
		}
	}
	pop, err := s.detectOpen(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Debug("Popup association missing, using the last visible popup.", zap.String("popup", pop.Describe()))
	s.popup = s.detectOpen
	return pop, nil
}

// Refresh re-resolves the popup root, the trigger and the search input.
func (s *Session) Refresh(ctx context.Context) error {
	t := s.p.in.Timeouts()
	pop, err := wait.Await(ctx, "popup of "+s.dd.Name, func(ctx context.Context) (driver.Element, bool, error) {
		var (
			el  driver.Element
			err error
		)
		if s.popup != nil {
			el, err = s.popup(ctx)
			if err == nil {
				var vis bool
				if vis, err = el.Visible(ctx); err == nil && !vis {
					// The association went stale; detect again.
					el, err = s.resolvePopup(ctx)
				}
			}
		} else {
			el, err = s.resolvePopup(ctx)
		}
		if err != nil {
			return nil, false, err
		}
		return el, true, nil
	}, t.Opts(t.Short)...)
	if err != nil {
		return fmt.Errorf("popup %s: %w", s.dd.Name, err)
	}
	s.Root = pop

	if in, err := s.input(ctx); err == nil {
		s.Trigger = in
	}
	s.Search = nil
	if els, err := searchLoc.ResolveAll(ctx, pop); err == nil {
		if vis, err := locator.Visible(ctx, els); err == nil && len(vis) > 0 {
			s.Search = vis[0]
		}
	}
	return nil
}

// afterStale re-resolves the popup when cause is a stale handle. When the
// popup cannot be found again that failure replaces cause, so the retry
// stops on the real reason.
func (s *Session) afterStale(ctx context.Context, cause error) error {
	if !driver.IsStale(cause) {
		return cause
	}
	if err := s.Refresh(ctx); err != nil {
		s.log.Debug("Popup re-resolution after a stale handle failed.", zap.Error(err))
		if !driver.IsTransient(err) {
			return err
		}
	}
	return cause
}

// Type enters text into the popup's search input and waits the settle
// delay for the list to filter.
func (s *Session) Type(ctx context.Context, text string) error {
	if s.Search == nil {
		return fmt.Errorf("popup %s has no search input", s.dd.Name)
	}
	if err := s.transition(StateSearching); err != nil {
		return err
	}
	err := wait.RetryOnStaleErr(ctx, func(ctx context.Context) error {
		if err := s.Search.Clear(ctx); err != nil {
			return s.afterStale(ctx, err)
		}
		return s.Search.Input(ctx, text)
	}, wait.Named("type ahead in "+s.dd.Name))
	if err != nil {
		return fmt.Errorf("popup %s type-ahead: %w", s.dd.Name, err)
	}
	if err := wait.Sleep(ctx, s.p.cfg.SettleDelay); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// FindOption locates the option labelled label: first among the rendered
// options, then by scanning the virtualized list. A popup with a search
// input filters first when type-ahead is enabled.
func (s *Session) FindOption(ctx context.Context, label string) (driver.Element, error) {
	if s.Search != nil && s.p.cfg.TypeAhead && !s.dd.Multi {
		if err := s.Type(ctx, label); err != nil {
			return nil, err
		}
	}

	el, err := wait.RetryOnStale(ctx, func(ctx context.Context) (driver.Element, error) {
		el, err := s.findRendered(ctx, label)
		if err != nil {
			return nil, s.afterStale(ctx, err)
		}
		return el, nil
	}, wait.Named("find option "+label))
	if err != nil {
		return nil, fmt.Errorf("popup %s: %w", s.dd.Name, err)
	}
	if el == nil {
		el, err = s.findVirtual(ctx, label)
		if err != nil {
			return nil, fmt.Errorf("popup %s: %w", s.dd.Name, err)
		}
	}
	if el == nil {
		return nil, &driver.OptionNotFoundError{Label: label, PopupSnapshot: s.snapshot(ctx)}
	}
	if err := s.transition(StateOptionLocated); err != nil {
		return nil, err
	}
	return el, nil
}

func (s *Session) findRendered(ctx context.Context, label string) (driver.Element, error) {
	els, err := optionLoc.ResolveAll(ctx, s.Root)
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		vis, err := el.Visible(ctx)
		if err != nil {
			return nil, err
		}
		if !vis {
			continue
		}
		ok, err := optionMatches(ctx, el, label)
		if err != nil {
			return nil, err
		}
		if ok {
			return el, nil
		}
	}
	return nil, nil
}

// scroller picks the first candidate inside the popup that actually scrolls.
func (s *Session) scroller(ctx context.Context) (driver.Element, error) {
	els, err := scrollCandidates.ResolveAll(ctx, s.Root)
	if err != nil {
		return nil, err
	}
	els = append(els, s.Root)
	for _, el := range els {
		st, err := el.ScrollState(ctx)
		if err != nil {
			return nil, err
		}
		if st.Max() > 0 {
			return el, nil
		}
	}
	return nil, nil
}

func (s *Session) findVirtual(ctx context.Context, label string) (driver.Element, error) {
	sc, err := s.scroller(ctx)
	if err != nil || sc == nil {
		return nil, err
	}
	s.log.Debug("Option not rendered, scanning the virtualized list.", zap.String("label", label))
	el, found, err := virtualscroll.FindInScrollable(ctx, virtualscroll.Fixed(sc), optionLoc,
		func(ctx context.Context, el driver.Element) (bool, error) { return optionMatches(ctx, el, label) },
		virtualscroll.FromTop(),
		virtualscroll.WithMaxSteps(s.p.cfg.VirtualSteps),
		virtualscroll.WithSettle(s.p.cfg.VirtualSettle),
		virtualscroll.WithLogger(s.log),
	)
	if err != nil || !found {
		return nil, err
	}
	return el, nil
}

// optionTexts returns the texts an option may be known by: its rendered
// text, its data-value and the text of its first span or div.
func optionTexts(ctx context.Context, el driver.Element) ([]string, error) {
	text, err := el.Text(ctx)
	if err != nil {
		return nil, err
	}
	out := []string{text}
	if v, err := el.Attribute(ctx, "data-value"); err != nil {
		return nil, err
	} else if v != "" {
		out = append(out, v)
	}
	inner, err := el.FindAll(ctx, driver.CSS("span, div"))
	if err != nil {
		return nil, err
	}
	if len(inner) > 0 {
		t, err := inner[0].Text(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func optionMatches(ctx context.Context, el driver.Element, label string) (bool, error) {
	texts, err := optionTexts(ctx, el)
	if err != nil {
		return false, err
	}
	for _, t := range texts {
		if textmatch.Equal(t, label) {
			return true, nil
		}
	}
	return false, nil
}

// optionLabel is the display label of an option.
func optionLabel(ctx context.Context, el driver.Element) (string, error) {
	texts, err := optionTexts(ctx, el)
	if err != nil {
		return "", err
	}
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			return t, nil
		}
	}
	return "", nil
}

func isSelected(ctx context.Context, el driver.Element) (bool, error) {
	class, err := el.Attribute(ctx, "class")
	if err != nil {
		return false, err
	}
	if strings.Contains(" "+class+" ", " e-active ") {
		return true, nil
	}
	aria, err := el.Attribute(ctx, "aria-selected")
	if err != nil {
		return false, err
	}
	return aria == "true", nil
}
