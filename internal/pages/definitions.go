// File: internal/pages/definitions.go
package pages

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/locator"
	"github.com/xkilldash9x/scalpel-e2e/internal/popup"
	"github.com/xkilldash9x/scalpel-e2e/internal/session"
	"github.com/xkilldash9x/scalpel-e2e/internal/textmatch"
	"github.com/xkilldash9x/scalpel-e2e/internal/virtualscroll"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

// ResourcesPath lists the bookable resources.
const ResourcesPath = "/appointment-service/appointment-resources"

const (
	// ResourcePageSize is the pager size that keeps most tenants on one page.
	ResourcePageSize = 100
	// resourceScanSteps bounds the scroll through a long resource grid.
	resourceScanSteps = 200
	// gridSettle lets the grid finish its row animation after the spinner.
	gridSettle = 120 * time.Millisecond
)

var (
	definitionsLinkLoc = locator.New("definitions menu",
		driver.CSS("#MenuItem_AppointmentService_AppointmentManagement_AppointmentDefinitions"),
		driver.XPath("//aside//a[contains(@href,'appointment-definitions')]"),
		driver.XPath("//nav//a[contains(@href,'appointment-definitions')]"),
		driver.XPath("//a["+textOneOf("Tanımlar", "Definitions")+"]"),
	)
	resourcesLinkLoc = locator.CSS("resources menu",
		"a#MenuItem_AppointmentService_AppointmentManagement_AppointmentResources",
		"a[href*='appointment-service/appointment-resources']",
	)

	resourceGridLoc = locator.CSS("resource grid", "div.e-grid[id='Grid']", "div[role='grid'].e-grid")
	gridContentLoc  = locator.CSS("resource grid content",
		"div.e-grid[id='Grid'] div.e-gridcontent div.e-content",
		"div.e-grid div.e-gridcontent div.e-content",
	)
	gridSpinnerLoc = locator.CSS("grid spinner", ".e-spinner-pane:not(.e-spin-hide)")
	pageSizeBlock  = locator.CSS("page size", ".e-pager .e-pagerdropdown")
	resourceRowLoc = locator.CSS("resource rows",
		"table#Grid_content_table tbody[role='rowgroup'] tr.e-row",
		"tr.e-row",
	)
	rowCellsLoc  = locator.CSS("row cells", "td.e-rowcell")
	rowSwitchLoc = locator.CSS("row switch", "td.e-rowcell[aria-colindex='4'] div.e-switch-wrapper")
	rowEditLoc   = locator.CSS("edit button", "button.e-editbutton").
		Or(driver.XPath(".//button[@title='Düzenle']"))

	resourceDialogLoc = locator.CSS("resource dialog",
		"div.e-dlg-container.appointment-resources__dialog",
		"div.e-dialog.e-dlg-modal",
	)
)

// DefinitionsPage is the appointment definitions area and its resource grid.
type DefinitionsPage struct {
	s *session.Session
}

func NewDefinitionsPage(s *session.Session) *DefinitionsPage {
	return &DefinitionsPage{s: s}
}

// OpenDefinitions expands the definitions entry of the side panel. It
// reports false when the panel has no such entry; some tenants list the
// resources link at top level.
func (p *DefinitionsPage) OpenDefinitions(ctx context.Context) (bool, error) {
	shown, err := p.s.Interact.IsDisplayed(ctx, p.s.Driver, definitionsLinkLoc)
	if err != nil || !shown {
		return false, err
	}
	if err := p.s.Interact.SafeClick(ctx, p.s.Driver, definitionsLinkLoc); err != nil {
		return false, fmt.Errorf("open definitions: %w", err)
	}
	return true, nil
}

// OpenResources reaches the resource grid through the menu, or by route
// when the menu does not offer it, and waits for the grid to be idle.
func (p *DefinitionsPage) OpenResources(ctx context.Context) error {
	if _, err := p.OpenDefinitions(ctx); err != nil {
		return err
	}
	shown, err := p.s.Interact.IsDisplayed(ctx, p.s.Driver, resourcesLinkLoc)
	if err != nil {
		return err
	}
	if shown {
		err = p.s.Interact.SafeClick(ctx, p.s.Driver, resourcesLinkLoc)
	} else {
		p.s.Logger.Debug("No resources menu entry, navigating directly.")
		err = p.s.Open(ctx, ResourcesPath)
	}
	if err != nil {
		return fmt.Errorf("open resources: %w", err)
	}
	if _, err := p.s.Interact.WaitVisible(ctx, p.s.Driver, gridContentLoc, p.s.Timeouts.Long); err != nil {
		return fmt.Errorf("resource grid: %w", err)
	}
	return p.WaitGridIdle(ctx)
}

// WaitGridIdle waits for the loading spinner to go and the grid to show.
func (p *DefinitionsPage) WaitGridIdle(ctx context.Context) error {
	if err := p.s.Interact.WaitInvisible(ctx, p.s.Driver, gridSpinnerLoc, p.s.Timeouts.Medium); err != nil {
		return fmt.Errorf("grid spinner: %w", err)
	}
	if _, err := p.s.Interact.WaitVisible(ctx, p.s.Driver, resourceGridLoc, p.s.Timeouts.Medium); err != nil {
		return err
	}
	return wait.Sleep(ctx, gridSettle)
}

func (p *DefinitionsPage) pageSize() popup.Dropdown {
	return popup.Dropdown{Name: "page size", Block: pageSizeBlock}
}

// EnsurePageSize sets the pager to n rows. Grids without a pager, or
// already at n, are left alone.
func (p *DefinitionsPage) EnsurePageSize(ctx context.Context, n int) error {
	shown, err := p.s.Interact.IsDisplayed(ctx, p.s.Driver, pageSizeBlock)
	if err != nil {
		return err
	}
	if !shown {
		return nil
	}
	want := strconv.Itoa(n)
	cur, err := p.s.Popups.Value(ctx, p.s.Driver, p.pageSize())
	if err != nil {
		return err
	}
	if strings.TrimSpace(cur) == want {
		return nil
	}
	if err := p.s.Popups.Select(ctx, p.s.Driver, p.pageSize(), want); err != nil {
		return err
	}
	p.s.Logger.Debug("Grid page size changed.", zap.String("from", cur), zap.Int("to", n))
	return p.WaitGridIdle(ctx)
}

// firstCellContains matches grid rows whose first cell holds name.
func firstCellContains(name string) virtualscroll.Matcher {
	return func(ctx context.Context, row driver.Element) (bool, error) {
		cell, err := rowCellsLoc.First(ctx, row)
		var nf *driver.ElementNotFoundError
		if errors.As(err, &nf) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		text, err := cell.Text(ctx)
		if err != nil {
			return false, err
		}
		return textmatch.Contains(text, name), nil
	}
}

// EditResource finds the resource named name in the grid, switches its row
// active when activate is set, and opens its editor dialog.
func (p *DefinitionsPage) EditResource(ctx context.Context, name string, activate bool) (*ResourceEditor, error) {
	if err := p.EnsurePageSize(ctx, ResourcePageSize); err != nil {
		return nil, err
	}
	var found bool
	err := wait.RetryOnStaleErr(ctx, func(ctx context.Context) error {
		row, ok, err := virtualscroll.FindInScrollable(ctx,
			virtualscroll.Locate(p.s.Driver, gridContentLoc),
			resourceRowLoc,
			firstCellContains(name),
			p.s.ScrollOptions(virtualscroll.FromTop(), virtualscroll.WithMaxSteps(resourceScanSteps))...,
		)
		if found = ok; err != nil || !ok {
			return err
		}
		if err := p.s.Interact.ScrollIntoView(ctx, row); err != nil {
			return err
		}
		if activate {
			if err := p.ensureRowActive(ctx, row); err != nil {
				return err
			}
		}
		return p.s.Interact.SafeClick(ctx, row, rowEditLoc)
	}, wait.Named("edit resource "+name))
	if err != nil {
		return nil, fmt.Errorf("edit resource %q: %w", name, err)
	}
	if !found {
		return nil, &driver.OptionNotFoundError{Label: name}
	}

	if _, err := p.s.Interact.WaitVisible(ctx, p.s.Driver, resourceDialogLoc, p.s.Timeouts.Medium); err != nil {
		return nil, fmt.Errorf("resource dialog: %w", err)
	}
	p.s.Logger.Info("Resource editor opened.", zap.String("resource", name))
	return NewResourceEditor(p.s), nil
}

// ensureRowActive turns the row's status switch on. Rows without a switch
// count as active.
func (p *DefinitionsPage) ensureRowActive(ctx context.Context, row driver.Element) error {
	present, err := p.s.Interact.IsPresent(ctx, row, rowSwitchLoc)
	if err != nil || !present {
		return err
	}
	return p.s.Interact.EnsureSwitch(ctx, row, rowSwitchLoc, true)
}
