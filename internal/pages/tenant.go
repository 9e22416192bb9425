// File: internal/pages/tenant.go
package pages

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/interact"
	"github.com/xkilldash9x/scalpel-e2e/internal/locator"
	"github.com/xkilldash9x/scalpel-e2e/internal/session"
)

var (
	tenantSwitchLoc = locator.New("tenant switch",
		driver.CSS("#AppTenantSwitchLink"),
		driver.XPath("//*[self::a or self::button][normalize-space(.)='değiştir' or .//span[normalize-space(.)='değiştir']]"),
	)
	tenantFormLoc = locator.CSS("tenant form", "form[action*='TenantSwitchModal']")
	tenantNameLoc = locator.CSS("tenant name", "form[action*='TenantSwitchModal'] #Input_Name", "#Input_Name")
	tenantSaveLoc = locator.CSS("tenant save", "form[action*='TenantSwitchModal'] button[type='submit']")
)

// TenantPage switches the tenant on the login page's tenant modal.
type TenantPage struct {
	s *session.Session
}

func NewTenantPage(s *session.Session) *TenantPage {
	return &TenantPage{s: s}
}

// SelectTenant opens the tenant modal unless it is showing, submits name
// and waits for the modal to close.
func (p *TenantPage) SelectTenant(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("select tenant: empty name")
	}
	in := p.s.Interact
	shown, err := in.IsDisplayed(ctx, p.s.Driver, tenantFormLoc)
	if err != nil {
		return err
	}
	if !shown {
		if err := in.SafeClick(ctx, p.s.Driver, tenantSwitchLoc); err != nil {
			return fmt.Errorf("select tenant: %w", err)
		}
		if _, err := in.WaitVisible(ctx, p.s.Driver, tenantFormLoc, p.s.Timeouts.Medium); err != nil {
			return fmt.Errorf("select tenant: %w", err)
		}
	}
	if err := in.SafeType(ctx, p.s.Driver, tenantNameLoc, name, interact.WithVerify()); err != nil {
		return err
	}
	if err := in.SafeClick(ctx, p.s.Driver, tenantSaveLoc); err != nil {
		return fmt.Errorf("select tenant: %w", err)
	}
	if err := in.WaitInvisible(ctx, p.s.Driver, tenantFormLoc, p.s.Timeouts.Medium); err != nil {
		return fmt.Errorf("select tenant %q: %w", name, err)
	}
	p.s.Logger.Info("Tenant selected.", zap.String("tenant", name))
	return nil
}
