// File: internal/pages/appointments.go
package pages

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/locator"
	"github.com/xkilldash9x/scalpel-e2e/internal/popup"
	"github.com/xkilldash9x/scalpel-e2e/internal/session"
)

// AppointmentsPath is the scheduler route.
const AppointmentsPath = "/appointment-service/appointments"

var (
	branchBlock     = byTestID("branch filter", "location-filter", "branch-filter", "sube-filter")
	departmentBlock = byTestID("department filter", "department-filter", "departman-filter")
	doctorBlock     = byTestID("doctor filter", "doctor-filter", "kaynaklar-filter", "resource-filter")

	filterPanelLoc = locator.CSS("filter panel",
		"[data-testid='filter-buttons']",
		"[data-testid='department-filter']",
		"[data-testid='doctor-filter']",
	)
	filterButtonsLoc = byTestID("filter buttons", "filter-buttons")
	filterToggleLoc  = locator.New("filter toggle",
		driver.XPath("//button[contains(normalize-space(.),'Filtre')]"),
		driver.XPath("//a[contains(normalize-space(.),'Filtre')]"),
	)
	acceptLoc = locator.CSS("accept filters", "[data-testid='accept-button']", "button.e-primary").
		Or(driver.XPath("//button[" + textOneOf("Kabul et", "Uygula", "Kaydet") + "]"))
)

// AppointmentsPage drives the scheduler: its filter panel, the day grid
// and the quick popup of booked appointments.
type AppointmentsPage struct {
	s *session.Session

	slot    SlotSelection
	hasSlot bool
}

func NewAppointmentsPage(s *session.Session) *AppointmentsPage {
	return &AppointmentsPage{s: s}
}

// Open navigates to the scheduler and waits for the grid.
func (p *AppointmentsPage) Open(ctx context.Context) error {
	if err := p.s.Open(ctx, AppointmentsPath); err != nil {
		return err
	}
	_, err := p.s.Interact.WaitVisible(ctx, p.s.Driver, contentWrapLoc, p.s.Timeouts.Long)
	return err
}

// -- filters --

func (p *AppointmentsPage) branch() popup.Dropdown {
	return popup.Dropdown{Name: "branch", Block: branchBlock}
}

func (p *AppointmentsPage) department() popup.Dropdown {
	return popup.Dropdown{Name: "department", Block: departmentBlock}
}

// OpenFilterPanel shows the filter panel unless it already is.
func (p *AppointmentsPage) OpenFilterPanel(ctx context.Context) error {
	shown, err := p.s.Interact.IsDisplayed(ctx, p.s.Driver, filterPanelLoc)
	if err != nil {
		return err
	}
	if shown {
		return nil
	}
	if err := p.s.Interact.SafeClick(ctx, p.s.Driver, filterToggleLoc); err != nil {
		return fmt.Errorf("open filter panel: %w", err)
	}
	if _, err := p.s.Interact.WaitVisible(ctx, p.s.Driver, filterPanelLoc, p.s.Timeouts.Medium); err != nil {
		return fmt.Errorf("open filter panel: %w", err)
	}
	return nil
}

// SelectBranch picks the branch and waits for the dependent department and
// doctor filters to unlock.
func (p *AppointmentsPage) SelectBranch(ctx context.Context, name string) error {
	if err := p.OpenFilterPanel(ctx); err != nil {
		return err
	}
	if err := p.s.Popups.Select(ctx, p.s.Driver, p.branch(), name); err != nil {
		return err
	}
	if err := waitEnabled(ctx, p.s, departmentBlock); err != nil {
		return err
	}
	return waitEnabled(ctx, p.s, doctorBlock)
}

// SelectDepartment picks the department and waits for the doctor filter.
func (p *AppointmentsPage) SelectDepartment(ctx context.Context, name string) error {
	if err := p.OpenFilterPanel(ctx); err != nil {
		return err
	}
	if err := p.s.Popups.Select(ctx, p.s.Driver, p.department(), name); err != nil {
		return err
	}
	return waitEnabled(ctx, p.s, doctorBlock)
}

// KeepOnlyDoctor removes every doctor chip except name. It reports false
// when name was never among the chips.
func (p *AppointmentsPage) KeepOnlyDoctor(ctx context.Context, name string) (bool, error) {
	if err := p.OpenFilterPanel(ctx); err != nil {
		return false, err
	}
	return p.s.Popups.KeepOnly(ctx, p.s.Driver, popup.ChipField{Name: "doctor", Block: doctorBlock}, name)
}

// ApplyFilters accepts the panel and waits for it to close.
func (p *AppointmentsPage) ApplyFilters(ctx context.Context) error {
	if err := p.s.Interact.SafeClick(ctx, p.s.Driver, acceptLoc); err != nil {
		return fmt.Errorf("apply filters: %w", err)
	}
	if err := p.s.Interact.WaitInvisible(ctx, p.s.Driver, filterButtonsLoc, p.s.Timeouts.Medium); err != nil {
		return fmt.Errorf("apply filters: %w", err)
	}
	p.s.Logger.Debug("Filters applied.")
	return nil
}

// BranchValue is the committed branch filter value.
func (p *AppointmentsPage) BranchValue(ctx context.Context) (string, error) {
	return p.s.Popups.Value(ctx, p.s.Driver, p.branch())
}

// UseSlot sets the slot later operations act on without clicking the grid.
func (p *AppointmentsPage) UseSlot(sel SlotSelection) error {
	if err := sel.Validate(); err != nil {
		return err
	}
	p.slot, p.hasSlot = sel, true
	p.s.Logger.Debug("Slot selected.", zap.String("start", sel.StartText()))
	return nil
}

// Slot returns the current slot and whether one was set.
func (p *AppointmentsPage) Slot() (SlotSelection, bool) {
	return p.slot, p.hasSlot
}

func (p *AppointmentsPage) currentSlot() (SlotSelection, error) {
	if !p.hasSlot {
		return SlotSelection{}, ErrNoSlot
	}
	return p.slot, nil
}
