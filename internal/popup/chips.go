// File: internal/popup/chips.go
package popup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/textmatch"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

// Chip is one rendered selection of a chip field.
type Chip struct {
	Label string
	el    driver.Element
}

// Chips lists the chips currently rendered in field.
func (p *Protocol) Chips(ctx context.Context, root driver.Finder, field ChipField) ([]Chip, error) {
	return wait.RetryOnStale(ctx, func(ctx context.Context) ([]Chip, error) {
		block, err := field.Block.First(ctx, root)
		if err != nil {
			return nil, err
		}
		els, err := chipLoc.ResolveAll(ctx, block)
		if err != nil {
			return nil, err
		}
		chips := make([]Chip, 0, len(els))
		for _, el := range els {
			l, err := chipLabel(ctx, el)
			if err != nil {
				return nil, err
			}
			chips = append(chips, Chip{Label: l, el: el})
		}
		return chips, nil
	}, wait.Named("list chips of "+field.Name))
}

// chipLabel prefers the title attribute, then the chip content, then the
// chip's own text.
func chipLabel(ctx context.Context, el driver.Element) (string, error) {
	title, err := el.Attribute(ctx, "title")
	if err != nil {
		return "", err
	}
	if t := strings.TrimSpace(title); t != "" {
		return t, nil
	}
	content, err := chipTextLoc.ResolveAll(ctx, el)
	if err != nil {
		return "", err
	}
	if len(content) > 0 {
		t, err := content[0].Text(ctx)
		if err != nil {
			return "", err
		}
		if t = strings.TrimSpace(t); t != "" {
			return t, nil
		}
	}
	t, err := el.Text(ctx)
	return strings.TrimSpace(t), err
}

// RemoveChip dismisses the first chip whose label is like label and waits
// until the chip count drops, the chip is hidden or it detaches, whichever
// is observed first.
func (p *Protocol) RemoveChip(ctx context.Context, root driver.Finder, field ChipField, label string) error {
	chips, err := p.Chips(ctx, root, field)
	if err != nil {
		return fmt.Errorf("remove chip %q from %s: %w", label, field.Name, err)
	}
	for i := range chips {
		if textmatch.Like(chips[i].Label, label) {
			return p.removeChip(ctx, root, field, chips, i)
		}
	}
	return fmt.Errorf("remove chip %q from %s: %w", label, field.Name,
		&driver.ElementNotFoundError{Locator: fmt.Sprintf("chip %q in %s", label, field.Block)})
}

func (p *Protocol) removeChip(ctx context.Context, root driver.Finder, field ChipField, chips []Chip, i int) error {
	chip := chips[i]
	before := len(chips)

	closes, err := chipCloseLoc.Resolve(ctx, chip.el)
	if err != nil {
		return fmt.Errorf("remove chip %q from %s: %w", chip.Label, field.Name, err)
	}
	if err := p.in.ClickElement(ctx, closes[0]); err != nil {
		return fmt.Errorf("remove chip %q from %s: %w", chip.Label, field.Name, err)
	}

	err = wait.Until(ctx, fmt.Sprintf("chip %q of %s to go away", chip.Label, field.Name), func(ctx context.Context) (bool, error) {
		vis, err := chip.el.Visible(ctx)
		if driver.IsStale(err) || (err == nil && !vis) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		now, err := p.Chips(ctx, root, field)
		if err != nil {
			return false, err
		}
		return len(now) < before, nil
	}, wait.WithTimeout(p.cfg.ChipTimeout), wait.WithInterval(p.in.Timeouts().Poll))
	if err != nil {
		return fmt.Errorf("remove chip %q from %s: %w", chip.Label, field.Name, err)
	}
	p.logger.Debug("Chip removed.", zap.String("field", field.Name), zap.String("label", chip.Label))
	return nil
}

// ErrKeepOnlyGuard reports that KeepOnly kept removing chips without converging.
var ErrKeepOnlyGuard = errors.New("chip removal did not converge")

// KeepOnly removes every chip that is not like label, then duplicates of
// label. It reports whether exactly one matching chip remains.
func (p *Protocol) KeepOnly(ctx context.Context, root driver.Finder, field ChipField, label string) (bool, error) {
	for guard := 0; guard < p.cfg.KeepOnlyGuard; guard++ {
		chips, err := p.Chips(ctx, root, field)
		if err != nil {
			return false, fmt.Errorf("keep only %q in %s: %w", label, field.Name, err)
		}

		victim := -1
		matched := 0
		for i, c := range chips {
			if !textmatch.Like(c.Label, label) {
				victim = i
				break
			}
			matched++
			if matched > 1 && victim < 0 {
				victim = i
			}
		}
		if victim < 0 {
			return matched == 1, nil
		}

		if err := p.removeChip(ctx, root, field, chips, victim); err != nil {
			if driver.IsStale(err) {
				continue
			}
			return false, fmt.Errorf("keep only %q in %s: %w", label, field.Name, err)
		}
	}
	return false, fmt.Errorf("keep only %q in %s after %d removals: %w", label, field.Name, p.cfg.KeepOnlyGuard, ErrKeepOnlyGuard)
}
