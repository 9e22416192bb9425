// File: internal/pages/workplan.go
package pages

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/locator"
	"github.com/xkilldash9x/scalpel-e2e/internal/popup"
	"github.com/xkilldash9x/scalpel-e2e/internal/session"
)

// Field is the label of a control in the workplan dialog.
type Field string

const (
	FieldBranch          Field = "Şube"
	FieldAppointmentType Field = "Randevu Tipi"
	FieldPlatform        Field = "Platform"
	FieldDepartment      Field = "Departman"
	FieldStartTime       Field = "Başlangıç Saati"
	FieldEndTime         Field = "Bitiş Saati"
)

// The titled dialog first, then any dialog container, latest last.
var workplanDialogXPaths = []string{
	"//*[" + textOneOf("Takvim Planı Yönetimi", "Workplan Management") + "]/ancestor::div[contains(@class,'e-dlg-container')][1]",
	"(//div[contains(@class,'e-dlg-container')])[last()]",
}

var (
	workplanDialogLoc = locator.Of("workplan dialog", dialogScoped(""))
	workplanSaveLoc   = locator.Of("workplan save", dialogScoped("//button[normalize-space(.)='Kaydet']"))
	startTimeInputID  = "work-schedule-start-time"
	endTimeInputID    = "work-schedule-end-time"
)

// dialogScoped anchors suffix below each dialog candidate.
func dialogScoped(suffix string) []driver.Selector {
	sels := make([]driver.Selector, len(workplanDialogXPaths))
	for i, d := range workplanDialogXPaths {
		sels[i] = driver.XPath(d + suffix)
	}
	return sels
}

// groupLoc finds the form group labelled field inside the dialog.
func groupLoc(field Field) locator.Locator {
	return locator.Of(string(field), dialogScoped(
		"//div[contains(@class,'e-form-group') and contains(@class,'e-label-position-top')]"+
			"[.//label[contains(normalize-space(.),"+xpathLiteral(string(field))+")]]"))
}

// WorkplanBar edits a doctor's working plan in the scheduler's modal dialog.
// Every dropdown is resolved from the document root; popups render outside
// the dialog.
type WorkplanBar struct {
	s *session.Session
}

func NewWorkplanBar(s *session.Session) *WorkplanBar {
	return &WorkplanBar{s: s}
}

// EnsureVisible waits for the dialog.
func (w *WorkplanBar) EnsureVisible(ctx context.Context) error {
	_, err := w.s.Interact.WaitVisible(ctx, w.s.Driver, workplanDialogLoc, w.s.Timeouts.Medium)
	if err != nil {
		return fmt.Errorf("workplan dialog: %w", err)
	}
	return nil
}

func (w *WorkplanBar) dropdown(field Field, multi bool) popup.Dropdown {
	return popup.Dropdown{Name: string(field), Block: groupLoc(field), Multi: multi}
}

// SelectBranch picks the single branch.
func (w *WorkplanBar) SelectBranch(ctx context.Context, name string) error {
	if err := w.EnsureVisible(ctx); err != nil {
		return err
	}
	return w.s.Popups.Select(ctx, w.s.Driver, w.dropdown(FieldBranch, false), name)
}

// SelectAll ticks every option of a multi-select field.
func (w *WorkplanBar) SelectAll(ctx context.Context, field Field) error {
	if err := w.EnsureVisible(ctx); err != nil {
		return err
	}
	return w.s.Popups.SelectAll(ctx, w.s.Driver, w.dropdown(field, true))
}

// SelectByTexts selects the comma separated labels in csv. With exact, any
// other selected option is cleared.
func (w *WorkplanBar) SelectByTexts(ctx context.Context, field Field, csv string, exact bool) error {
	labels := SplitCSV(csv)
	if len(labels) == 0 {
		return fmt.Errorf("select %s: no labels in %q", field, csv)
	}
	if err := w.EnsureVisible(ctx); err != nil {
		return err
	}
	return w.s.Popups.SelectMany(ctx, w.s.Driver, w.dropdown(field, true), labels, exact)
}

// Selected lists the selected labels of a multi-select field.
func (w *WorkplanBar) Selected(ctx context.Context, field Field) ([]string, error) {
	return w.s.Popups.SelectedLabels(ctx, w.s.Driver, w.dropdown(field, true))
}

// SetTime types an "HH:mm" value into the start or end time input and tabs
// out so the masked input commits it.
func (w *WorkplanBar) SetTime(ctx context.Context, field Field, hhmm string) error {
	clock, err := parseClock(hhmm)
	if err != nil {
		return err
	}
	var id string
	switch field {
	case FieldStartTime:
		id = startTimeInputID
	case FieldEndTime:
		id = endTimeInputID
	default:
		return fmt.Errorf("%s is not a time field", field)
	}
	loc := locator.New(string(field), driver.CSS("input#"+id)).
		Or(dialogScoped(
			"//div[contains(@class,'e-form-group')][.//label[contains(normalize-space(.)," + xpathLiteral(string(field)) + ")]]//input")...)

	if err := w.EnsureVisible(ctx); err != nil {
		return err
	}
	if err := w.s.Interact.SafeType(ctx, w.s.Driver, loc, clock); err != nil {
		return err
	}
	el, err := loc.FirstVisible(ctx, w.s.Driver)
	if err != nil {
		return err
	}
	if err := el.Press(ctx, "Tab"); err != nil {
		return fmt.Errorf("commit %s: %w", field, err)
	}
	w.s.Logger.Debug("Workplan time set.", zap.String("field", string(field)), zap.String("value", clock))
	return nil
}

// Save submits the dialog and waits for it to close.
func (w *WorkplanBar) Save(ctx context.Context) error {
	if err := w.s.Interact.SafeClick(ctx, w.s.Driver, workplanSaveLoc); err != nil {
		return fmt.Errorf("save workplan: %w", err)
	}
	if err := w.s.Interact.WaitInvisible(ctx, w.s.Driver, workplanDialogLoc, w.s.Timeouts.Medium); err != nil {
		return fmt.Errorf("save workplan: %w", err)
	}
	return nil
}

// SplitCSV splits on commas, trimming blanks and dropping empty entries.
func SplitCSV(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
