// File: internal/scenario/scenario.go

// Package scenario describes end-to-end flows as YAML files and executes them
// step by step against a session.
package scenario

import (
	"time"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/locator"
)

// Action names what a step does.
type Action string

const (
	ActionNavigate    Action = "navigate"
	ActionClick       Action = "click"
	ActionType        Action = "type"
	ActionSelect      Action = "select"
	ActionMultiSelect Action = "multiselect"
	ActionSelectAll   Action = "select_all"
	ActionRemoveChip  Action = "remove_chip"
	ActionKeepOnly    Action = "keep_only"
	ActionWaitVisible Action = "wait_visible"
	ActionWaitText    Action = "wait_text"
	ActionSwitch      Action = "switch"
	ActionFindInList  Action = "find_in_list"
	ActionLogin       Action = "login"
	ActionFilter      Action = "filter"
	ActionSlot        Action = "slot"
	ActionCheckIn     Action = "check_in"
	ActionDeleteSlot  Action = "delete_appointment"
	ActionWorkplan    Action = "workplan"
	ActionScreenshot  Action = "screenshot"

	ActionOpenModule   Action = "open_module"
	ActionSelectTenant Action = "select_tenant"
	ActionEditResource Action = "edit_resource"
)

// Scenario is one flow, loaded from a single file.
type Scenario struct {
	Name     string   `yaml:"name" validate:"required"`
	StartURL string   `yaml:"start_url"`
	Tags     []string `yaml:"tags"`
	Steps    []Step   `yaml:"steps" validate:"required,min=1,dive"`

	// Source is the file the scenario came from, if any.
	Source string `yaml:"-"`
}

// Selector is one ranked lookup strategy. Exactly one field is set.
type Selector struct {
	CSS   string `yaml:"css" validate:"required_without_all=XPath ID,excluded_with=XPath ID"`
	XPath string `yaml:"xpath" validate:"required_without_all=CSS ID,excluded_with=CSS ID"`
	ID    string `yaml:"id" validate:"required_without_all=CSS XPath,excluded_with=CSS XPath"`
}

func (s Selector) driverSelector() driver.Selector {
	switch {
	case s.XPath != "":
		return driver.XPath(s.XPath)
	case s.ID != "":
		return driver.ID(s.ID)
	default:
		return driver.CSS(s.CSS)
	}
}

// Target is a named element with its selectors in priority order.
type Target struct {
	Name      string     `yaml:"name"`
	Selectors []Selector `yaml:"selectors" validate:"required,min=1,dive"`
}

// Locator turns the target into an engine locator. fallback names it when
// the file did not.
func (t *Target) Locator(fallback string) locator.Locator {
	name := t.Name
	if name == "" {
		name = fallback
	}
	sels := make([]driver.Selector, len(t.Selectors))
	for i, s := range t.Selectors {
		sels[i] = s.driverSelector()
	}
	return locator.Of(name, sels)
}

// Filter drives the appointment filter panel. Empty fields are left alone.
type Filter struct {
	Branch     string `yaml:"branch"`
	Department string `yaml:"department"`
	Doctor     string `yaml:"doctor"`
	Apply      bool   `yaml:"apply"`
}

// Workplan edits the workplan dialog. Select maps a field label to a comma
// separated list of option labels.
type Workplan struct {
	Branch    string            `yaml:"branch"`
	SelectAll []string          `yaml:"select_all"`
	Select    map[string]string `yaml:"select"`
	Exact     bool              `yaml:"exact"`
	Start     string            `yaml:"start"`
	End       string            `yaml:"end"`
	Save      bool              `yaml:"save"`
}

// Resource opens the editor of an appointment resource from the resources
// grid. Open reaches the grid through the definitions menu first. With
// WorkplanDay, the editor continues to that day's workplan dialog, ready
// for a workplan step.
type Resource struct {
	Name        string `yaml:"name" validate:"required"`
	Open        bool   `yaml:"open"`
	Activate    bool   `yaml:"activate"`
	Tab         string `yaml:"tab"`
	WorkplanDay string `yaml:"workplan_day"`
}

// Step is one action. Which fields matter depends on Action; the validator
// enforces the required ones per action.
type Step struct {
	Name   string `yaml:"name"`
	Action Action `yaml:"action" validate:"required,oneof=navigate click type select multiselect select_all remove_chip keep_only wait_visible wait_text switch find_in_list login filter slot check_in delete_appointment workplan screenshot open_module select_tenant edit_resource"`

	Target    *Target `yaml:"target" validate:"omitempty"`
	Container *Target `yaml:"container" validate:"omitempty"`
	Items     *Target `yaml:"items" validate:"omitempty"`

	URL    string   `yaml:"url"`
	Text   string   `yaml:"text"`
	Value  string   `yaml:"value"`
	Values []string `yaml:"values"`
	Exact  bool     `yaml:"exact"`
	Verify bool     `yaml:"verify"`
	On     *bool    `yaml:"on"`
	Click  bool     `yaml:"click"`
	// Attrs are extra attributes find_in_list matches against, besides text.
	Attrs []string `yaml:"attrs"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	Slot     string    `yaml:"slot"`
	Filter   *Filter   `yaml:"filter"`
	Workplan *Workplan `yaml:"workplan"`

	Module   string    `yaml:"module"`
	Tenant   string    `yaml:"tenant"`
	Resource *Resource `yaml:"resource" validate:"omitempty"`

	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// Label is how reports and logs refer to the step.
func (s Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return string(s.Action)
}
