// File: internal/pages/quickpopup.go
package pages

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/interact"
	"github.com/xkilldash9x/scalpel-e2e/internal/locator"
	"github.com/xkilldash9x/scalpel-e2e/internal/statuspoll"
	"github.com/xkilldash9x/scalpel-e2e/internal/textmatch"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

const quickPopupXPath = "//div[contains(@class,'e-quick-popup-wrapper')]"

var (
	tileLoc = locator.CSS("appointment tiles",
		"div.e-appointment.e-lib.e-draggable[role='button'][data-group-index='0']",
		"div.e-appointment[role='button']",
	)
	tileTimeLoc = locator.CSS("tile time", ".e-appointment-details span.text-xs")

	quickPopupLoc    = locator.CSS("quick popup", ".e-quick-popup-wrapper.e-lib.e-popup[role='dialog']", ".e-quick-popup-wrapper")
	quickHeaderLoc   = locator.CSS("quick popup header", ".e-popup-header-title-text", "[data-testid='quick-info-header'] .font-semibold")
	quickCloseLoc    = locator.CSS("quick popup close", "button[data-testid='quick-info-close-button']", ".e-quick-popup-wrapper .e-icon-btn")
	quickStatusLoc   = locator.New("appointment status", driver.XPath(quickPopupXPath+"//p[contains(@class,'text-surface-500') and contains(@class,'text-xs') and contains(@class,'truncate')]"))
	checkInButtonLoc = locator.CSS("check-in button",
		"[data-testid='appointment-footer'] button[data-testid='status-button']",
		".e-quick-popup-wrapper [data-testid='status-button']",
	).Or(driver.XPath(quickPopupXPath + "//button[contains(normalize-space(.),'Check-in')]"))

	deleteButtonLoc = locator.CSS("delete appointment", ".e-quick-popup-wrapper [data-testid='appointment-delete-button']").
		Or(driver.XPath(quickPopupXPath + "//button[" + textOneOf("Sil", "Delete") + "]"))
	confirmModalLoc = locator.CSS("confirm dialog", "div[id^='modal-dialog-']", ".e-dlg-container .e-dialog")
	confirmYesLoc   = locator.New("confirm yes",
		driver.XPath("//div[starts-with(@id,'modal-dialog-') or contains(@class,'e-dialog')]//div[contains(@class,'e-footer-content')]//button[normalize-space()='Evet']"),
		driver.CSS(".e-footer-content button.e-primary:not(#okay-button)"),
	)
	reasonOkayLoc = locator.CSS("reason ok", ".e-footer-content #okay-button").
		Or(driver.XPath("//div[contains(@class,'e-footer-content')]//button[" + textOneOf("Tamam", "OK") + "]"))
)

// CheckInWords classify the appointment status shown in the quick popup.
var CheckInWords = statuspoll.Words{
	DoneWords:       []string{"geldi", "tamamlandi"},
	ActionableWords: []string{"bekliyor"},
}

var styleTopRe = regexp.MustCompile(`top:\s*(-?[\d.]+)px`)

// tileMatches tells whether a tile starts at the slot: by its time label,
// its aria-label or the start offset the scheduler stamps on it.
func tileMatches(ctx context.Context, el driver.Element, sel SlotSelection) (bool, error) {
	start := sel.StartText()
	if t, err := tileTimeLoc.First(ctx, el); err == nil {
		text, err := t.Text(ctx)
		if err != nil {
			return false, err
		}
		if strings.HasPrefix(textmatch.Normalize(text), start) {
			return true, nil
		}
	} else if !driver.IsTransient(err) {
		return false, err
	}
	aria, err := el.Attribute(ctx, "aria-label")
	if err != nil {
		return false, err
	}
	if strings.Contains(aria, start+":00") {
		return true, nil
	}
	dur, err := el.Attribute(ctx, "data-top-start-duration")
	if err != nil {
		return false, err
	}
	return dur == strconv.FormatInt(sel.StartDurationMillis(), 10), nil
}

// findTile returns the appointment tile of the slot. Bordered tiles (the
// focused booking) win, then the lowest one on the grid.
func (p *AppointmentsPage) findTile(ctx context.Context, sel SlotSelection) (driver.Element, error) {
	tiles, err := tileLoc.Resolve(ctx, p.s.Driver)
	if err != nil {
		return nil, err
	}
	var best driver.Element
	bestBordered, bestTop := false, -1.0
	for _, el := range tiles {
		ok, err := tileMatches(ctx, el, sel)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		class, err := el.Attribute(ctx, "class")
		if err != nil {
			return nil, err
		}
		style, err := el.Attribute(ctx, "style")
		if err != nil {
			return nil, err
		}
		bordered := interact.HasAnyClass(class, "e-appointment-border")
		top := 0.0
		if m := styleTopRe.FindStringSubmatch(style); m != nil {
			top, _ = strconv.ParseFloat(m[1], 64)
		}
		if best == nil || (bordered && !bestBordered) || (bordered == bestBordered && top >= bestTop) {
			best, bestBordered, bestTop = el, bordered, top
		}
	}
	if best == nil {
		return nil, &driver.ElementNotFoundError{Locator: fmt.Sprintf("appointment tile at %s", sel.StartText())}
	}
	return best, nil
}

// OpenQuickPopup clicks the current slot's tile and waits for its popup.
func (p *AppointmentsPage) OpenQuickPopup(ctx context.Context) error {
	sel, err := p.currentSlot()
	if err != nil {
		return err
	}
	err = wait.RetryOnStaleErr(ctx, func(ctx context.Context) error {
		tile, err := wait.Await(ctx, "appointment tile at "+sel.StartText(), func(ctx context.Context) (driver.Element, bool, error) {
			el, err := p.findTile(ctx, sel)
			return el, err == nil, err
		}, p.s.Timeouts.Opts(p.s.Timeouts.Medium)...)
		if err != nil {
			return err
		}
		if err := p.s.Interact.ScrollIntoView(ctx, tile); err != nil {
			return err
		}
		return p.s.Interact.ClickElement(ctx, tile)
	}, wait.Named("open quick popup"))
	if err != nil {
		return fmt.Errorf("open quick popup: %w", err)
	}
	if _, err := p.s.Interact.WaitVisible(ctx, p.s.Driver, quickPopupLoc, p.s.Timeouts.Medium); err != nil {
		return fmt.Errorf("open quick popup: %w", err)
	}
	return nil
}

// CloseQuickPopup dismisses the popup if it is showing.
func (p *AppointmentsPage) CloseQuickPopup(ctx context.Context) error {
	shown, err := p.s.Interact.IsDisplayed(ctx, p.s.Driver, quickPopupLoc)
	if err != nil || !shown {
		return err
	}
	if err := p.s.Interact.SafeClick(ctx, p.s.Driver, quickCloseLoc); err != nil {
		return err
	}
	return p.s.Interact.WaitInvisible(ctx, p.s.Driver, quickPopupLoc, p.s.Timeouts.Short)
}

// QuickPopupTitle is the header text of the open quick popup.
func (p *AppointmentsPage) QuickPopupTitle(ctx context.Context) (string, error) {
	el, err := quickHeaderLoc.FirstVisible(ctx, p.s.Driver)
	if err != nil {
		return "", err
	}
	return el.Text(ctx)
}

// checkInProbe exposes the quick popup to the status-poll loop.
type checkInProbe struct {
	p *AppointmentsPage
}

func (c checkInProbe) Observe(ctx context.Context) (statuspoll.Observation, error) {
	s := c.p.s
	shown, err := s.Interact.IsDisplayed(ctx, s.Driver, quickPopupLoc)
	if err != nil || !shown {
		return statuspoll.Observation{}, err
	}
	el, err := quickStatusLoc.FirstVisible(ctx, s.Driver)
	var nf *driver.ElementNotFoundError
	if errors.As(err, &nf) {
		return statuspoll.Observation{Visible: true}, nil
	}
	if err != nil {
		return statuspoll.Observation{}, err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return statuspoll.Observation{}, err
	}
	return statuspoll.Observation{Status: text, Visible: true}, nil
}

func (c checkInProbe) Act(ctx context.Context) (bool, error) {
	s := c.p.s
	btn, err := checkInButtonLoc.FirstVisible(ctx, s.Driver)
	var nf *driver.ElementNotFoundError
	if errors.As(err, &nf) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	disabled, err := s.Interact.IsDisabled(ctx, btn)
	if err != nil || disabled {
		return false, err
	}
	if err := s.Interact.ClickElement(ctx, btn); err != nil {
		return false, err
	}
	return true, nil
}

func (c checkInProbe) Reopen(ctx context.Context) error {
	if err := c.p.CloseQuickPopup(ctx); err != nil {
		c.p.s.Logger.Debug("Closing quick popup before reopen failed.", zap.Error(err))
	}
	return c.p.OpenQuickPopup(ctx)
}

// CheckIn marks the current slot's patient as arrived. It opens the quick
// popup, presses check-in while the status is waiting and polls until the
// status reads arrived or completed.
func (p *AppointmentsPage) CheckIn(ctx context.Context) (statuspoll.Result, error) {
	sel, err := p.currentSlot()
	if err != nil {
		return statuspoll.Result{}, err
	}
	shown, err := p.s.Interact.IsDisplayed(ctx, p.s.Driver, quickPopupLoc)
	if err != nil {
		return statuspoll.Result{}, err
	}
	if !shown {
		if err := p.OpenQuickPopup(ctx); err != nil {
			return statuspoll.Result{}, err
		}
	}
	res, err := p.s.Poller.Poll(ctx, checkInProbe{p: p}, CheckInWords)
	if err != nil {
		return res, fmt.Errorf("check in %s: %w", sel.StartText(), err)
	}
	p.s.Logger.Info("Checked in.",
		zap.String("slot", sel.StartText()),
		zap.String("status", res.Final),
		zap.Int("actions", res.Actions),
		zap.Int("reopens", res.Reopens),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// DeleteLastSlotAppointment deletes the booking on the current slot,
// confirming the dialog and acknowledging the reason prompt, then waits for
// the tile to leave the grid.
func (p *AppointmentsPage) DeleteLastSlotAppointment(ctx context.Context) error {
	sel, err := p.currentSlot()
	if err != nil {
		return err
	}
	in := p.s.Interact
	shown, err := in.IsDisplayed(ctx, p.s.Driver, quickPopupLoc)
	if err != nil {
		return err
	}
	if !shown {
		if err := p.OpenQuickPopup(ctx); err != nil {
			return err
		}
	}
	if err := in.SafeClick(ctx, p.s.Driver, deleteButtonLoc); err != nil {
		return fmt.Errorf("delete %s: %w", sel.StartText(), err)
	}
	if _, err := in.WaitVisible(ctx, p.s.Driver, confirmModalLoc, p.s.Timeouts.Medium); err != nil {
		return fmt.Errorf("delete %s: %w", sel.StartText(), err)
	}
	if err := in.SafeClick(ctx, p.s.Driver, confirmYesLoc); err != nil {
		return fmt.Errorf("delete %s: confirm: %w", sel.StartText(), err)
	}

	// The reason prompt only shows for some appointment types.
	if _, err := in.WaitVisible(ctx, p.s.Driver, reasonOkayLoc, p.s.Timeouts.Short); err == nil {
		if err := in.SafeClick(ctx, p.s.Driver, reasonOkayLoc); err != nil {
			return fmt.Errorf("delete %s: reason: %w", sel.StartText(), err)
		}
	} else if !wait.IsTimeout(err) {
		return err
	}

	err = wait.Until(ctx, "appointment tile at "+sel.StartText()+" to disappear", func(ctx context.Context) (bool, error) {
		_, err := p.findTile(ctx, sel)
		var nf *driver.ElementNotFoundError
		if errors.As(err, &nf) {
			return true, nil
		}
		if driver.IsStale(err) {
			return false, nil
		}
		return false, err
	}, p.s.Timeouts.Opts(p.s.Timeouts.Long)...)
	if err != nil {
		return fmt.Errorf("delete %s: %w", sel.StartText(), err)
	}
	if err := in.WaitInvisible(ctx, p.s.Driver, quickPopupLoc, p.s.Timeouts.Medium); err != nil {
		return fmt.Errorf("delete %s: %w", sel.StartText(), err)
	}
	p.s.Logger.Info("Appointment deleted.", zap.String("slot", sel.StartText()))
	return nil
}
