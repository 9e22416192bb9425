// File: internal/pages/dashboard.go
package pages

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/locator"
	"github.com/xkilldash9x/scalpel-e2e/internal/session"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

var (
	dashboardLoc = locator.New("dashboard",
		driver.XPath("//h2[normalize-space(.)='Modüller']"),
		driver.XPath("//span[contains(normalize-space(.),'Doctorin')]"),
		driver.CSS("nav.h-full.w-\\[60px\\]"),
		driver.CSS(".panel__wrapper-shadow-default"),
	)
	appointmentsLinkLoc = locator.CSS("appointments module", "a[href*='appointment-service/appointments']")
)

// moduleLoc finds the launcher tile captioned title.
func moduleLoc(title string) locator.Locator {
	lit := xpathLiteral(title)
	return locator.New(title+" module",
		driver.XPath("//a[.//p[contains(@class,'truncate') and normalize-space(.)="+lit+"]]"),
		driver.XPath("//a[normalize-space(.)="+lit+"]"),
	)
}

// DashboardPage is the module launcher shown after login.
type DashboardPage struct {
	s *session.Session
}

func NewDashboardPage(s *session.Session) *DashboardPage {
	return &DashboardPage{s: s}
}

// WaitLoaded waits until the browser has left the login route and a
// dashboard landmark shows.
func (p *DashboardPage) WaitLoaded(ctx context.Context) error {
	if err := p.waitURL(ctx, "off the login page", func(url string) bool {
		return !strings.Contains(url, DefaultLoginPath)
	}); err != nil {
		return err
	}
	if _, err := p.s.Interact.WaitVisible(ctx, p.s.Driver, dashboardLoc, p.s.Timeouts.Long); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// OpenModule clicks the launcher tile captioned title.
func (p *DashboardPage) OpenModule(ctx context.Context, title string) error {
	if err := p.WaitLoaded(ctx); err != nil {
		return err
	}
	if err := p.s.Interact.SafeClick(ctx, p.s.Driver, moduleLoc(title)); err != nil {
		return fmt.Errorf("open module %q: %w", title, err)
	}
	p.s.Logger.Info("Module opened.", zap.String("module", title))
	return nil
}

// OpenAppointments follows the scheduler link and waits for its grid.
func (p *DashboardPage) OpenAppointments(ctx context.Context) (*AppointmentsPage, error) {
	if err := p.s.Interact.SafeClick(ctx, p.s.Driver, appointmentsLinkLoc); err != nil {
		return nil, fmt.Errorf("open appointments: %w", err)
	}
	if err := p.waitURL(ctx, "on the scheduler", func(url string) bool {
		return strings.Contains(url, AppointmentsPath)
	}); err != nil {
		return nil, err
	}
	if _, err := p.s.Interact.WaitVisible(ctx, p.s.Driver, contentWrapLoc, p.s.Timeouts.Long); err != nil {
		return nil, fmt.Errorf("schedule grid: %w", err)
	}
	return NewAppointmentsPage(p.s), nil
}

func (p *DashboardPage) waitURL(ctx context.Context, what string, ok func(url string) bool) error {
	return wait.Until(ctx, "browser "+what, func(ctx context.Context) (bool, error) {
		url, err := p.s.Driver.CurrentURL(ctx)
		if err != nil {
			return false, err
		}
		return ok(strings.ToLower(url)), nil
	}, p.s.Timeouts.Opts(p.s.Timeouts.Long)...)
}
