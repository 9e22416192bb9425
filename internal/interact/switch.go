// File: internal/interact/switch.go
package interact

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/locator"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

// SwitchState reads a toggle: e-switch-active or aria-checked="true" means on,
// e-switch-disabled or aria-disabled="true" means it cannot be changed.
func SwitchState(ctx context.Context, el driver.Element) (on, disabled bool, err error) {
	class, err := el.Attribute(ctx, "class")
	if err != nil {
		return false, false, err
	}
	checked, err := el.Attribute(ctx, "aria-checked")
	if err != nil {
		return false, false, err
	}
	ariaDisabled, err := el.Attribute(ctx, "aria-disabled")
	if err != nil {
		return false, false, err
	}
	on = HasAnyClass(class, "e-switch-active") || strings.EqualFold(checked, "true")
	disabled = HasAnyClass(class, "e-switch-disabled") || strings.EqualFold(ariaDisabled, "true")
	return on, disabled, nil
}

// EnsureSwitch drives the toggle at loc into the wanted state. A toggle that
// is already there is left alone; a disabled one that is not fails with
// *driver.AmbiguousStateError.
func (i *Interactor) EnsureSwitch(ctx context.Context, root driver.Finder, loc locator.Locator, want bool) error {
	type reading struct{ on, disabled bool }
	read := func(ctx context.Context) (reading, error) {
		return wait.RetryOnStale(ctx, func(ctx context.Context) (reading, error) {
			el, err := loc.First(ctx, root)
			if err != nil {
				return reading{}, err
			}
			on, disabled, err := SwitchState(ctx, el)
			return reading{on, disabled}, err
		}, i.retryOpts("read switch "+loc.Name())...)
	}

	cur, err := read(ctx)
	if err != nil {
		return fmt.Errorf("ensure switch %s: %w", loc, err)
	}
	if cur.on == want {
		return nil
	}
	if cur.disabled {
		return &driver.AmbiguousStateError{
			Element: loc.String(),
			State:   "disabled",
			Reason:  fmt.Sprintf("cannot switch %s", onOff(want)),
		}
	}

	if err := i.SafeClick(ctx, root, loc); err != nil {
		return fmt.Errorf("ensure switch %s: %w", loc, err)
	}
	err = wait.Until(ctx, fmt.Sprintf("%s to switch %s", loc, onOff(want)), func(ctx context.Context) (bool, error) {
		r, err := read(ctx)
		return err == nil && r.on == want, err
	}, i.timeouts.Opts(i.timeouts.Short)...)
	if err != nil {
		return fmt.Errorf("ensure switch %s: %w", loc, err)
	}
	i.logger.Debug("Switch toggled.", zap.String("locator", loc.String()), zap.Bool("on", want))
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
