// File: internal/scenario/actions.go
package scenario

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/interact"
	"github.com/xkilldash9x/scalpel-e2e/internal/observability"
	"github.com/xkilldash9x/scalpel-e2e/internal/pages"
	"github.com/xkilldash9x/scalpel-e2e/internal/popup"
	"github.com/xkilldash9x/scalpel-e2e/internal/session"
	"github.com/xkilldash9x/scalpel-e2e/internal/virtualscroll"
)

// run is the state of one scenario execution. The appointments page keeps
// the selected slot between the slot step and the steps that act on it.
type run struct {
	s       *session.Session
	creds   Credentials
	metrics *observability.Metrics
	logger  *zap.Logger

	appointments *pages.AppointmentsPage
}

func newRun(s *session.Session, creds Credentials, m *observability.Metrics, logger *zap.Logger) *run {
	return &run{s: s, creds: creds, metrics: m, logger: logger}
}

func (r *run) page() *pages.AppointmentsPage {
	if r.appointments == nil {
		r.appointments = pages.NewAppointmentsPage(r.s)
	}
	return r.appointments
}

// budget is the step's own timeout, or the session default.
func (r *run) budget(st Step) time.Duration {
	if st.Timeout > 0 {
		return st.Timeout
	}
	return r.s.Timeouts.Default
}

func (r *run) dropdown(st Step, multi bool) popup.Dropdown {
	return popup.Dropdown{Name: st.Label(), Block: st.Target.Locator(st.Label()), Multi: multi}
}

func (r *run) chips(st Step) popup.ChipField {
	return popup.ChipField{Name: st.Label(), Block: st.Target.Locator(st.Label())}
}

// do executes st and returns the path of any artifact it wrote.
func (r *run) do(ctx context.Context, i int, st Step) (string, error) {
	s := r.s
	switch st.Action {
	case ActionNavigate:
		return "", s.Open(ctx, st.URL)

	case ActionClick:
		return "", s.Interact.SafeClick(ctx, s.Driver, st.Target.Locator(st.Label()))

	case ActionType:
		var opts []interact.TypeOption
		if st.Verify {
			opts = append(opts, interact.WithVerify())
		}
		if st.Timeout > 0 {
			opts = append(opts, interact.WithTypeTimeout(st.Timeout))
		}
		return "", s.Interact.SafeType(ctx, s.Driver, st.Target.Locator(st.Label()), st.Text, opts...)

	case ActionSelect:
		return "", s.Popups.Select(ctx, s.Driver, r.dropdown(st, false), st.Value)

	case ActionMultiSelect:
		return "", s.Popups.SelectMany(ctx, s.Driver, r.dropdown(st, true), st.Values, st.Exact)

	case ActionSelectAll:
		return "", s.Popups.SelectAll(ctx, s.Driver, r.dropdown(st, true))

	case ActionRemoveChip:
		return "", s.Popups.RemoveChip(ctx, s.Driver, r.chips(st), st.Value)

	case ActionKeepOnly:
		kept, err := s.Popups.KeepOnly(ctx, s.Driver, r.chips(st), st.Value)
		if err != nil {
			return "", err
		}
		if !kept {
			return "", &driver.OptionNotFoundError{Label: st.Value}
		}
		return "", nil

	case ActionWaitVisible:
		_, err := s.Interact.WaitVisible(ctx, s.Driver, st.Target.Locator(st.Label()), r.budget(st))
		return "", err

	case ActionWaitText:
		_, err := s.Interact.WaitText(ctx, s.Driver, st.Target.Locator(st.Label()), st.Text, r.budget(st))
		return "", err

	case ActionSwitch:
		return "", s.Interact.EnsureSwitch(ctx, s.Driver, st.Target.Locator(st.Label()), *st.On)

	case ActionFindInList:
		return "", r.findInList(ctx, st)

	case ActionLogin:
		return "", r.login(ctx, st)

	case ActionFilter:
		return "", r.filter(ctx, st.Filter)

	case ActionSlot:
		sel, err := pages.ParseSlot(st.Slot)
		if err != nil {
			return "", err
		}
		return "", r.page().ClickSlot(ctx, sel)

	case ActionCheckIn:
		res, err := r.page().CheckIn(ctx)
		r.metrics.ObservePoll(res.Actions, res.Reopens)
		return "", err

	case ActionDeleteSlot:
		return "", r.page().DeleteLastSlotAppointment(ctx)

	case ActionWorkplan:
		return "", r.workplan(ctx, st.Workplan)

	case ActionOpenModule:
		return "", pages.NewDashboardPage(s).OpenModule(ctx, st.Module)

	case ActionSelectTenant:
		return "", pages.NewTenantPage(s).SelectTenant(ctx, st.Tenant)

	case ActionEditResource:
		return "", r.editResource(ctx, st.Resource)

	case ActionScreenshot:
		name := st.Name
		if name == "" {
			name = fmt.Sprintf("step-%02d", i+1)
		}
		return s.Screenshot(ctx, name)

	default:
		return "", fmt.Errorf("unknown action %q", st.Action)
	}
}

func (r *run) findInList(ctx context.Context, st Step) error {
	s := r.s
	container := st.Container.Locator("list")
	items := st.Items.Locator("list items")
	el, found, err := virtualscroll.FindInScrollable(ctx,
		virtualscroll.Locate(s.Driver, container), items,
		virtualscroll.AnyTextContains(st.Attrs, st.Text),
		s.ScrollOptions(virtualscroll.FromTop())...)
	if err != nil {
		return err
	}
	if !found {
		return &driver.OptionNotFoundError{Label: st.Text}
	}
	if !st.Click {
		return nil
	}
	if err := s.Interact.ScrollIntoView(ctx, el); err != nil {
		return err
	}
	return s.Interact.ClickElement(ctx, el)
}

func (r *run) login(ctx context.Context, st Step) error {
	user, pass := st.Username, st.Password
	if user == "" {
		user = r.creds.Username
	}
	if pass == "" {
		pass = r.creds.Password
	}
	if user == "" {
		return errors.New("login: no username in step or app config")
	}
	p := pages.NewLoginPage(r.s)
	if st.URL != "" {
		p.Path = st.URL
	} else if r.creds.LoginPath != "" {
		p.Path = r.creds.LoginPath
	}
	return p.Login(ctx, user, pass)
}

func (r *run) filter(ctx context.Context, f *Filter) error {
	p := r.page()
	if err := p.OpenFilterPanel(ctx); err != nil {
		return err
	}
	if f.Branch != "" {
		if err := p.SelectBranch(ctx, f.Branch); err != nil {
			return err
		}
	}
	if f.Department != "" {
		if err := p.SelectDepartment(ctx, f.Department); err != nil {
			return err
		}
	}
	if f.Doctor != "" {
		kept, err := p.KeepOnlyDoctor(ctx, f.Doctor)
		if err != nil {
			return err
		}
		if !kept {
			return &driver.OptionNotFoundError{Label: f.Doctor}
		}
	}
	if f.Apply {
		return p.ApplyFilters(ctx)
	}
	return nil
}

func (r *run) workplan(ctx context.Context, w *Workplan) error {
	bar := pages.NewWorkplanBar(r.s)
	if err := bar.EnsureVisible(ctx); err != nil {
		return err
	}
	if w.Branch != "" {
		if err := bar.SelectBranch(ctx, w.Branch); err != nil {
			return err
		}
	}
	for _, field := range w.SelectAll {
		if err := bar.SelectAll(ctx, pages.Field(field)); err != nil {
			return err
		}
	}
	for _, field := range slices.Sorted(maps.Keys(w.Select)) {
		if err := bar.SelectByTexts(ctx, pages.Field(field), w.Select[field], w.Exact); err != nil {
			return err
		}
	}
	if w.Start != "" {
		if err := bar.SetTime(ctx, pages.FieldStartTime, w.Start); err != nil {
			return err
		}
	}
	if w.End != "" {
		if err := bar.SetTime(ctx, pages.FieldEndTime, w.End); err != nil {
			return err
		}
	}
	if w.Save {
		return bar.Save(ctx)
	}
	return nil
}

func (r *run) editResource(ctx context.Context, res *Resource) error {
	p := pages.NewDefinitionsPage(r.s)
	if res.Open {
		if err := p.OpenResources(ctx); err != nil {
			return err
		}
	}
	ed, err := p.EditResource(ctx, res.Name, res.Activate)
	if err != nil {
		return err
	}
	if res.Tab != "" {
		if err := ed.ClickTab(ctx, res.Tab); err != nil {
			return err
		}
	}
	if res.WorkplanDay == "" {
		return nil
	}
	if err := ed.OpenWorkplanTab(ctx); err != nil {
		return err
	}
	_, err = ed.OpenWorkplanForDay(ctx, res.WorkplanDay)
	return err
}
