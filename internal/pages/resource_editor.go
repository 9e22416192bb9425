// File: internal/pages/resource_editor.go
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
	"github.com/xkilldash9x/scalpel-e2e/internal/textmatch"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

// daysInWeek is the column count of the weekly workplan calendar.
const daysInWeek = 7

// dayIndex maps folded day names to their Monday-first column.
var dayIndex = map[string]int{
	"pazartesi": 0, "monday": 0,
	"sali": 1, "tuesday": 1,
	"carsamba": 2, "wednesday": 2,
	"persembe": 3, "thursday": 3,
	"cuma": 4, "friday": 4,
	"cumartesi": 5, "saturday": 5,
	"pazar": 6, "sunday": 6,
}

// WorkplanTabCaptions name the calendar tab of the resource editor.
var WorkplanTabCaptions = []string{"Çalışma Takvimi", "Workplan"}

var (
	dialogTabLoc = locator.CSS("dialog tabs",
		".appointment-resources__dialog .e-tab-header .e-toolbar-item",
		"div.e-dlg-container .e-tab-header .e-toolbar-item",
	)
	tabTextLoc = locator.CSS("tab text", ".e-tab-text")
	tabWrapLoc = locator.CSS("tab wrap", ".e-tab-wrap")
	// The calendar is the second tab when captions are localized away.
	workplanTabFallbackLoc = locator.CSS("workplan tab",
		".appointment-resources__dialog [id^='e-item-tab-'][id$='_1'] .e-tab-text",
		".appointment-resources__dialog .e-toolbar-item[data-index='1'] .e-tab-text",
	)
	dayCellLoc = locator.CSS("workplan days",
		".appointment-resources__dialog .e-schedule-table.e-content-table td.e-day-wrapper",
		"div.e-dlg-container .e-schedule-table.e-content-table td.e-day-wrapper",
	)
	dayEntryLoc = locator.CSS("workplan entry", ".e-appointment", "div[id^='e-appointment-wrapper-']")
	// The titled dialog, or an untitled modal laid out as the workplan form.
	workplanBarLoc = locator.New("workplan management",
		driver.XPath(workplanDialogXPaths[0]),
		driver.XPath("//div[starts-with(@id,'modal-dialog-') and contains(@class,'e-dlg-container')]"+
			"[count(.//div[contains(@class,'e-form-group') and contains(@class,'e-label-position-top')]) >= 6]"),
	)
)

// DayIndex returns the Monday-first column of a Turkish or English day
// name, with or without diacritics.
func DayIndex(day string) (int, error) {
	i, ok := dayIndex[textmatch.Normalize(day)]
	if !ok {
		return 0, fmt.Errorf("unknown day %q", day)
	}
	return i, nil
}

// ResourceEditor is the modal dialog that edits one appointment resource.
type ResourceEditor struct {
	s *session.Session
}

func NewResourceEditor(s *session.Session) *ResourceEditor {
	return &ResourceEditor{s: s}
}

// tabSelected reads the active marker of a tab item.
func tabSelected(ctx context.Context, item driver.Element) (bool, error) {
	class, err := item.Attribute(ctx, "class")
	if err != nil {
		return false, err
	}
	if interact.HasAnyClass(class, "e-active") {
		return true, nil
	}
	wrap, err := tabWrapLoc.First(ctx, item)
	var nf *driver.ElementNotFoundError
	if errors.As(err, &nf) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	sel, err := wrap.Attribute(ctx, "aria-selected")
	return sel == "true", err
}

// findTab returns the tab item whose caption contains any of captions.
func (e *ResourceEditor) findTab(ctx context.Context, captions []string) (driver.Element, error) {
	return wait.Await(ctx, fmt.Sprintf("tab %q", captions[0]), func(ctx context.Context) (driver.Element, bool, error) {
		items, err := dialogTabLoc.ResolveAll(ctx, e.s.Driver)
		if err != nil {
			return nil, false, err
		}
		for _, it := range items {
			text, err := it.Text(ctx)
			if err != nil {
				return nil, false, err
			}
			if textmatch.ContainsAny(text, captions...) {
				return it, true, nil
			}
		}
		return nil, false, nil
	}, e.s.Timeouts.Opts(e.s.Timeouts.Short)...)
}

// ClickTab activates the dialog tab captioned with any of captions and
// waits until the tab bar marks it selected.
func (e *ResourceEditor) ClickTab(ctx context.Context, captions ...string) error {
	if len(captions) == 0 {
		return fmt.Errorf("click tab: no caption")
	}
	item, err := e.findTab(ctx, captions)
	if err != nil {
		return fmt.Errorf("click tab: %w", err)
	}
	return e.activate(ctx, item, captions[0])
}

func (e *ResourceEditor) activate(ctx context.Context, item driver.Element, name string) error {
	if ok, err := tabSelected(ctx, item); err == nil && ok {
		return nil
	}
	if err := e.s.Interact.SafeClick(ctx, item, tabTextLoc); err != nil {
		return fmt.Errorf("click tab %s: %w", name, err)
	}
	err := wait.Until(ctx, "tab "+name+" to be selected", func(ctx context.Context) (bool, error) {
		return tabSelected(ctx, item)
	}, e.s.Timeouts.Opts(e.s.Timeouts.Short)...)
	if err != nil {
		return fmt.Errorf("click tab %s: %w", name, err)
	}
	e.s.Logger.Debug("Dialog tab selected.", zap.String("tab", name))
	return nil
}

// OpenWorkplanTab switches the editor to its weekly calendar, by caption or
// by position.
func (e *ResourceEditor) OpenWorkplanTab(ctx context.Context) error {
	item, err := e.findTab(ctx, WorkplanTabCaptions)
	if err == nil {
		return e.activate(ctx, item, "workplan")
	}
	if !wait.IsTimeout(err) {
		return err
	}
	e.s.Logger.Debug("Workplan tab caption not found, using its position.")
	if err := e.s.Interact.SafeClick(ctx, e.s.Driver, workplanTabFallbackLoc); err != nil {
		return fmt.Errorf("open workplan tab: %w", err)
	}
	return nil
}

// OpenWorkplanForDay clicks the given weekday in the calendar, preferring
// an existing entry over the empty cell, and returns the workplan dialog it
// opens.
func (e *ResourceEditor) OpenWorkplanForDay(ctx context.Context, day string) (*WorkplanBar, error) {
	idx, err := DayIndex(day)
	if err != nil {
		return nil, err
	}
	err = wait.RetryOnStaleErr(ctx, func(ctx context.Context) error {
		cells, err := wait.Await(ctx, fmt.Sprintf("%d workplan days", daysInWeek),
			func(ctx context.Context) ([]driver.Element, bool, error) {
				cells, err := dayCellLoc.Resolve(ctx, e.s.Driver)
				if err != nil {
					return nil, false, err
				}
				return cells, len(cells) >= daysInWeek, nil
			}, e.s.Timeouts.Opts(e.s.Timeouts.Medium)...)
		if err != nil {
			return err
		}
		target := cells[idx]
		if entry, err := dayEntryLoc.First(ctx, target); err == nil {
			target = entry
		}
		if err := e.s.Interact.ScrollIntoView(ctx, target); err != nil {
			return err
		}
		return e.s.Interact.ClickElement(ctx, target)
	}, wait.Named("open workplan "+day))
	if err != nil {
		return nil, fmt.Errorf("workplan for %s: %w", day, err)
	}
	if _, err := e.s.Interact.WaitVisible(ctx, e.s.Driver, workplanBarLoc, e.s.Timeouts.Medium); err != nil {
		return nil, fmt.Errorf("workplan for %s: %w", day, err)
	}
	return NewWorkplanBar(e.s), nil
}
