// File: internal/popup/select.go
package popup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/textmatch"
	"github.com/xkilldash9x/scalpel-e2e/internal/virtualscroll"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

// Select opens a single-select dropdown, picks label and waits until the
// popup has closed and the bound input has committed the value.
func (p *Protocol) Select(ctx context.Context, root driver.Finder, dd Dropdown, label string) error {
	s, err := p.Open(ctx, root, dd)
	if err != nil {
		return err
	}
	if err := s.choose(ctx, label); err != nil {
		return err
	}
	if err := s.transition(StateSelected); err != nil {
		return err
	}

	var last string
	err = wait.Until(ctx, fmt.Sprintf("%s to commit %q", dd.Name, label), func(ctx context.Context) (bool, error) {
		in, err := s.input(ctx)
		if err != nil {
			return false, err
		}
		v, err := in.Value(ctx)
		if err != nil {
			return false, err
		}
		last = v
		if !textmatch.Equal(v, label) {
			return false, nil
		}
		// The bound value can commit before the overlay goes away.
		gone, err := s.popupGone(ctx)
		if err != nil || !gone {
			return false, err
		}
		exp, err := in.Attribute(ctx, "aria-expanded")
		if err != nil {
			return false, err
		}
		return exp != "true", nil
	}, wait.WithTimeout(p.cfg.CommitTimeout), wait.WithInterval(p.in.Timeouts().Poll))
	if err != nil {
		var te *driver.TimeoutError
		if errors.As(err, &te) {
			te.LastObserved = last
		}
		return fmt.Errorf("select %q in %s: %w", label, dd.Name, err)
	}
	if err := s.transition(StateClosed); err != nil {
		return err
	}
	p.logger.Debug("Option selected.", zap.String("dropdown", dd.Name), zap.String("label", label))
	return nil
}

// choose finds label and clicks it, finding it again when the click lands on
// a handle a re-render has replaced.
func (s *Session) choose(ctx context.Context, label string) error {
	return wait.RetryOnStaleErr(ctx, func(ctx context.Context) error {
		el, err := s.FindOption(ctx, label)
		if err != nil {
			return err
		}
		if err := s.p.in.ClickElement(ctx, el); err != nil {
			return s.afterStale(ctx, err)
		}
		return nil
	}, wait.Named("choose "+label))
}

// SelectMany selects labels in a multi-select. With exact, a popup in the
// "everything selected" state is cleared first and selected items outside
// labels are deselected, so the result is exactly labels. Without exact,
// selections accumulate.
func (p *Protocol) SelectMany(ctx context.Context, root driver.Finder, dd Dropdown, labels []string, exact bool) error {
	s, err := p.Open(ctx, root, dd)
	if err != nil {
		return err
	}
	if err := s.selectMany(ctx, labels, exact); err != nil {
		return fmt.Errorf("multi-select %s: %w", dd.Name, err)
	}
	return p.Close(ctx, s)
}

func (s *Session) selectMany(ctx context.Context, labels []string, exact bool) error {
	if exact {
		if err := s.clearAllIfSelected(ctx); err != nil {
			return err
		}
		if err := s.deselectOthers(ctx, labels); err != nil {
			return err
		}
	}
	for _, label := range labels {
		if err := s.ensureSelected(ctx, label, true); err != nil {
			return err
		}
	}
	return nil
}

// allCaption reads the select-all affordance: "clear" when everything is
// selected, "select" when not, "" when the popup has none.
func (s *Session) allCaption(ctx context.Context) (string, driver.Element, error) {
	els, err := selectAllLoc.Resolve(ctx, s.Root)
	if err != nil {
		var nf *driver.ElementNotFoundError
		if errors.As(err, &nf) {
			return "", nil, nil
		}
		return "", nil, err
	}
	text, err := els[0].Text(ctx)
	if err != nil {
		return "", nil, err
	}
	switch {
	case textmatch.ContainsAny(text, clearAllCaptions...):
		return "clear", els[0], nil
	case textmatch.ContainsAny(text, selectAllCaptions...):
		return "select", els[0], nil
	default:
		return "", els[0], nil
	}
}

func (s *Session) clickAll(ctx context.Context, want string) error {
	err := wait.RetryOnStaleErr(ctx, func(ctx context.Context) error {
		caption, el, err := s.allCaption(ctx)
		if err != nil {
			return err
		}
		if caption == "" || caption == want {
			return nil
		}
		return s.p.in.ClickElement(ctx, el)
	}, wait.Named("toggle all in "+s.dd.Name))
	if err != nil {
		return err
	}
	t := s.p.in.Timeouts()
	return wait.Until(ctx, fmt.Sprintf("%s affordance to read %q", s.dd.Name, want), func(ctx context.Context) (bool, error) {
		caption, _, err := s.allCaption(ctx)
		return caption == "" || caption == want, err
	}, t.Opts(t.Short)...)
}

func (s *Session) clearAllIfSelected(ctx context.Context) error {
	caption, _, err := s.allCaption(ctx)
	if err != nil || caption != "clear" {
		return err
	}
	s.log.Debug("Multi-select is in the all-selected state, clearing first.")
	// After clearing, the affordance offers select-all again.
	return s.clickAll(ctx, "select")
}

// deselectOthers walks the whole list and unselects items not in keep.
func (s *Session) deselectOthers(ctx context.Context, keep []string) error {
	selected, err := s.selectedLabels(ctx)
	if err != nil {
		return err
	}
	for _, l := range selected {
		wanted := false
		for _, k := range keep {
			if textmatch.Equal(l, k) {
				wanted = true
				break
			}
		}
		if !wanted {
			if err := s.ensureSelected(ctx, l, false); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensureSelected clicks label when its selection mark differs from want
// and waits for the mark to follow.
func (s *Session) ensureSelected(ctx context.Context, label string, want bool) error {
	el, err := s.FindOption(ctx, label)
	if err != nil {
		return err
	}
	sel, err := isSelected(ctx, el)
	if err != nil && !driver.IsStale(err) {
		return err
	}
	if err == nil && sel == want {
		return s.transition(StateSelected)
	}
	if err := s.choose(ctx, label); err != nil {
		return err
	}
	t := s.p.in.Timeouts()
	err = wait.Until(ctx, fmt.Sprintf("%q selection in %s to be %t", label, s.dd.Name, want), func(ctx context.Context) (bool, error) {
		el, err := s.findRendered(ctx, label)
		if err != nil || el == nil {
			return false, err
		}
		sel, err := isSelected(ctx, el)
		return err == nil && sel == want, err
	}, t.Opts(t.Short)...)
	if err != nil {
		return err
	}
	return s.transition(StateSelected)
}

// SelectAll opens a multi-select and selects everything through its
// affordance.
func (p *Protocol) SelectAll(ctx context.Context, root driver.Finder, dd Dropdown) error {
	s, err := p.Open(ctx, root, dd)
	if err != nil {
		return err
	}
	caption, _, err := s.allCaption(ctx)
	if err != nil {
		return fmt.Errorf("select all in %s: %w", dd.Name, err)
	}
	if caption == "" {
		return fmt.Errorf("select all in %s: popup has no select-all affordance", dd.Name)
	}
	if err := s.clickAll(ctx, "clear"); err != nil {
		return fmt.Errorf("select all in %s: %w", dd.Name, err)
	}
	return p.Close(ctx, s)
}

// SelectedLabels opens the dropdown, collects the selected options across
// the whole (possibly virtualized) list and closes it again.
func (p *Protocol) SelectedLabels(ctx context.Context, root driver.Finder, dd Dropdown) ([]string, error) {
	s, err := p.Open(ctx, root, dd)
	if err != nil {
		return nil, err
	}
	labels, err := s.selectedLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("selected labels of %s: %w", dd.Name, err)
	}
	return labels, p.Close(ctx, s)
}

func (s *Session) selectedLabels(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	collect := func(ctx context.Context, el driver.Element) (bool, error) {
		sel, err := isSelected(ctx, el)
		if err != nil || !sel {
			return false, err
		}
		l, err := optionLabel(ctx, el)
		if err != nil {
			return false, err
		}
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
		// Never stop early; the scan has to see every row.
		return false, nil
	}

	sc, err := s.scroller(ctx)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		els, err := optionLoc.ResolveAll(ctx, s.Root)
		if err != nil {
			return nil, err
		}
		for _, el := range els {
			if _, err := collect(ctx, el); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	_, _, err = virtualscroll.FindInScrollable(ctx, virtualscroll.Fixed(sc), optionLoc, collect,
		virtualscroll.FromTop(),
		virtualscroll.WithMaxSteps(s.p.cfg.VirtualSteps),
		virtualscroll.WithSettle(s.p.cfg.VirtualSettle),
	)
	if err != nil {
		return nil, err
	}
	// Leave the list scrolled to the top for the next lookup.
	if _, err := sc.ScrollTo(ctx, 0); err != nil && !driver.IsStale(err) {
		return nil, err
	}
	return out, nil
}

// Close dismisses the popup with Escape and waits for it to disappear.
func (p *Protocol) Close(ctx context.Context, s *Session) error {
	if s.state == StateClosed {
		return nil
	}
	err := wait.RetryOnStaleErr(ctx, func(ctx context.Context) error {
		target := s.Search
		if target == nil {
			in, err := s.input(ctx)
			if err != nil {
				return err
			}
			target = in
		}
		err := target.Press(ctx, "Escape")
		if driver.IsStale(err) {
			s.Search = nil
		}
		return err
	}, wait.Named("close "+s.dd.Name))
	if err != nil {
		return fmt.Errorf("close %s: %w", s.dd.Name, err)
	}

	err = wait.Until(ctx, s.dd.Name+" popup to close", s.popupGone,
		wait.WithTimeout(p.cfg.CloseTimeout), wait.WithInterval(p.in.Timeouts().Poll))
	if err != nil {
		return fmt.Errorf("close %s: %w", s.dd.Name, err)
	}
	s.state = StateClosed
	s.Root, s.Search = nil, nil
	return nil
}

// popupGone reports whether the popup this session opened is no longer
// showing: detached, stale or hidden all count.
func (s *Session) popupGone(ctx context.Context) (bool, error) {
	if s.popup == nil {
		return true, nil
	}
	el, err := s.popup(ctx)
	if err != nil {
		var nf *driver.ElementNotFoundError
		if errors.As(err, &nf) || driver.IsStale(err) {
			return true, nil
		}
		return false, err
	}
	vis, err := el.Visible(ctx)
	if driver.IsStale(err) {
		return true, nil
	}
	return !vis, err
}

// Value reads the committed value of a dropdown's input.
func (p *Protocol) Value(ctx context.Context, root driver.Finder, dd Dropdown) (string, error) {
	s := &Session{p: p, root: root, dd: dd, log: p.logger}
	v, err := wait.RetryOnStale(ctx, func(ctx context.Context) (string, error) {
		in, err := s.input(ctx)
		if err != nil {
			return "", err
		}
		return in.Value(ctx)
	}, wait.Named("value of "+dd.Name))
	return strings.TrimSpace(v), err
}
