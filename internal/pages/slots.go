// File: internal/pages/slots.go
package pages

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/locator"
	"github.com/xkilldash9x/scalpel-e2e/internal/virtualscroll"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

// minScheduleRows is a full day at half-hour resolution.
const minScheduleRows = 48

var (
	contentWrapLoc = locator.CSS("schedule content", "div[id^='Schedule-'] .e-table-container .e-content-wrap")
	scheduleRowLoc = locator.CSS("schedule rows",
		"div[id^='Schedule-'] .e-table-container .e-content-wrap table.e-content-table tbody[role='rowgroup'] tr")
	workCellLoc = locator.CSS("work cells",
		"td.e-work-cells[data-group-index='0']",
		"td.e-work-cells",
	)
	rowCellLoc = workCellLoc.Or(driver.CSS("td")).Named("row cell")

	sidebarTitleLoc   = byTestID("sidebar title", "sidebar-title")
	sidebarContentLoc = locator.CSS("sidebar content", "[data-testid='sidebar-content']", ".sidebar-main-section")
)

// SlotSelection is a half-hour cell of the day grid. FirstHalf selects
// HH:00, otherwise HH:30.
type SlotSelection struct {
	Hour      int
	FirstHalf bool
}

// SlotAt builds the selection for a wall-clock start. minute must be 0 or 30.
func SlotAt(hour, minute int) (SlotSelection, error) {
	if minute != 0 && minute != 30 {
		return SlotSelection{}, fmt.Errorf("slot minute must be 0 or 30, got %d", minute)
	}
	sel := SlotSelection{Hour: hour, FirstHalf: minute == 0}
	return sel, sel.Validate()
}

// ParseSlot reads "HH:mm".
func ParseSlot(hhmm string) (SlotSelection, error) {
	clock, err := parseClock(hhmm)
	if err != nil {
		return SlotSelection{}, err
	}
	var h, m int
	if _, err := fmt.Sscanf(clock, "%d:%d", &h, &m); err != nil {
		return SlotSelection{}, fmt.Errorf("invalid slot %q: %w", hhmm, err)
	}
	return SlotAt(h, m)
}

func (s SlotSelection) Validate() error {
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("slot hour must be within 0..23, got %d", s.Hour)
	}
	return nil
}

func (s SlotSelection) Minute() int {
	if s.FirstHalf {
		return 0
	}
	return 30
}

// StartText renders the start as "HH:mm".
func (s SlotSelection) StartText() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute())
}

// StartDurationMillis is the start as milliseconds since midnight, the unit
// the scheduler stamps on its tiles.
func (s SlotSelection) StartDurationMillis() int64 {
	return int64(s.Hour*60+s.Minute()) * 60_000
}

// rowIndex is the 1-based grid row of the slot. Grids whose first row is
// the half hour put HH:30 before HH:00.
func (s SlotSelection) rowIndex(halfHourFirst bool) int {
	base := 2 * s.Hour
	switch {
	case halfHourFirst && s.FirstHalf:
		return base + 2
	case halfHourFirst:
		return base + 1
	case s.FirstHalf:
		return base + 1
	default:
		return base + 2
	}
}

// needles are the labels a cell for this slot may carry.
func (s SlotSelection) needles() []string {
	return []string{s.StartText(), fmt.Sprintf("%02d.%02d", s.Hour, s.Minute())}
}

// ClickSlotAt clicks the grid cell starting at hour:minute and waits for the
// booking sidebar. Cells are searched by label through the virtualized grid
// first; grids without labelled cells fall back to row arithmetic.
func (p *AppointmentsPage) ClickSlotAt(ctx context.Context, hour, minute int) error {
	sel, err := SlotAt(hour, minute)
	if err != nil {
		return err
	}
	return p.ClickSlot(ctx, sel)
}

// ClickSlot is ClickSlotAt for a prepared selection.
func (p *AppointmentsPage) ClickSlot(ctx context.Context, sel SlotSelection) error {
	if err := sel.Validate(); err != nil {
		return err
	}
	if _, err := p.s.Interact.WaitVisible(ctx, p.s.Driver, contentWrapLoc, p.s.Timeouts.Long); err != nil {
		return fmt.Errorf("schedule grid: %w", err)
	}

	clicked, err := p.clickLabelledCell(ctx, sel)
	if err != nil {
		return err
	}
	if !clicked {
		p.s.Logger.Debug("No labelled cell for slot, using row index.", zap.String("start", sel.StartText()))
		if err := p.clickRowCell(ctx, sel); err != nil {
			return err
		}
	}
	if err := p.waitSidebar(ctx); err != nil {
		return fmt.Errorf("slot %s: %w", sel.StartText(), err)
	}
	p.slot, p.hasSlot = sel, true
	return nil
}

func (p *AppointmentsPage) clickLabelledCell(ctx context.Context, sel SlotSelection) (bool, error) {
	var found bool
	err := wait.RetryOnStaleErr(ctx, func(ctx context.Context) error {
		el, ok, err := virtualscroll.FindInScrollable(ctx,
			virtualscroll.Locate(p.s.Driver, contentWrapLoc),
			workCellLoc,
			virtualscroll.AnyTextContains([]string{"aria-label"}, sel.needles()...),
			p.s.ScrollOptions(virtualscroll.FromTop())...,
		)
		if err != nil || !ok {
			found = false
			return err
		}
		found = true
		if err := p.s.Interact.ScrollIntoView(ctx, el); err != nil {
			return err
		}
		return p.s.Interact.ClickElement(ctx, el)
	}, wait.Named("click slot "+sel.StartText()))
	if err != nil {
		return false, fmt.Errorf("click slot %s: %w", sel.StartText(), err)
	}
	return found, nil
}

func (p *AppointmentsPage) clickRowCell(ctx context.Context, sel SlotSelection) error {
	err := wait.RetryOnStaleErr(ctx, func(ctx context.Context) error {
		rows, err := wait.Await(ctx, fmt.Sprintf("at least %d schedule rows", minScheduleRows),
			func(ctx context.Context) ([]driver.Element, bool, error) {
				rows, err := scheduleRowLoc.Resolve(ctx, p.s.Driver)
				if err != nil {
					return nil, false, err
				}
				return rows, len(rows) >= minScheduleRows, nil
			}, p.s.Timeouts.Opts(p.s.Timeouts.Medium)...)
		if err != nil {
			return err
		}

		halfFirst, err := halfHourFirst(ctx, rows[0])
		if err != nil {
			return err
		}
		idx := sel.rowIndex(halfFirst)
		if idx > len(rows) {
			return fmt.Errorf("row %d beyond the %d rendered rows", idx, len(rows))
		}
		cell, err := rowCellLoc.First(ctx, rows[idx-1])
		if err != nil {
			return err
		}
		if err := p.s.Interact.ScrollIntoView(ctx, cell); err != nil {
			return err
		}
		return p.s.Interact.ClickElement(ctx, cell)
	}, wait.Named("click slot row "+sel.StartText()))
	if err != nil {
		return fmt.Errorf("click slot %s by row: %w", sel.StartText(), err)
	}
	return nil
}

// halfHourFirst inspects the first row's cell for a ":30" or ".30" label.
func halfHourFirst(ctx context.Context, row driver.Element) (bool, error) {
	cell, err := rowCellLoc.First(ctx, row)
	if err != nil {
		return false, err
	}
	label, err := cell.Attribute(ctx, "aria-label")
	if err != nil {
		return false, err
	}
	if label == "" {
		if label, err = cell.Text(ctx); err != nil {
			return false, err
		}
	}
	return strings.Contains(label, ":30") || strings.Contains(label, ".30"), nil
}

// waitSidebar waits for the booking sidebar title and a content pane that
// is not mid-transition.
func (p *AppointmentsPage) waitSidebar(ctx context.Context) error {
	in := p.s.Interact
	if _, err := in.WaitVisible(ctx, p.s.Driver, sidebarTitleLoc, p.s.Timeouts.Medium); err != nil {
		return err
	}
	return wait.Until(ctx, "sidebar content to settle", func(ctx context.Context) (bool, error) {
		el, err := sidebarContentLoc.FirstVisible(ctx, p.s.Driver)
		if err != nil {
			return false, err
		}
		style, err := el.Attribute(ctx, "style")
		if err != nil {
			return false, err
		}
		style = strings.ReplaceAll(style, " ", "")
		return !strings.Contains(style, "opacity:0;") && !strings.HasSuffix(style, "opacity:0") &&
			!strings.Contains(style, "display:none"), nil
	}, p.s.Timeouts.Opts(p.s.Timeouts.Medium)...)
}
