// File: internal/scenario/load.go
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/scalpel-e2e/internal/pages"
)

// ValidationError lists every problem found in one scenario file.
type ValidationError struct {
	Source   string
	Problems []string
}

func (e *ValidationError) Error() string {
	src := e.Source
	if src == "" {
		src = "<inline>"
	}
	return fmt.Sprintf("invalid scenario %s: %s", src, strings.Join(e.Problems, "; "))
}

// validate is safe for concurrent use and caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(validateStep, Step{})
	return v
}

// validateStep enforces the fields each action needs.
func validateStep(sl validator.StructLevel) {
	st := sl.Current().Interface().(Step)
	need := func(ok bool, field, name string) {
		if !ok {
			sl.ReportError(nil, field, name, "needed", string(st.Action))
		}
	}

	switch st.Action {
	case ActionNavigate:
		need(st.URL != "", "url", "URL")
	case ActionClick, ActionType, ActionWaitVisible, ActionSelectAll:
		need(st.Target != nil, "target", "Target")
	case ActionWaitText:
		need(st.Target != nil, "target", "Target")
		need(st.Text != "", "text", "Text")
	case ActionSwitch:
		need(st.Target != nil, "target", "Target")
		need(st.On != nil, "on", "On")
	case ActionSelect, ActionRemoveChip, ActionKeepOnly:
		need(st.Target != nil, "target", "Target")
		need(st.Value != "", "value", "Value")
	case ActionMultiSelect:
		need(st.Target != nil, "target", "Target")
		need(len(st.Values) > 0, "values", "Values")
	case ActionFindInList:
		need(st.Container != nil, "container", "Container")
		need(st.Items != nil, "items", "Items")
		need(st.Text != "", "text", "Text")
	case ActionFilter:
		need(st.Filter != nil, "filter", "Filter")
	case ActionWorkplan:
		need(st.Workplan != nil, "workplan", "Workplan")
	case ActionOpenModule:
		need(st.Module != "", "module", "Module")
	case ActionSelectTenant:
		need(st.Tenant != "", "tenant", "Tenant")
	case ActionEditResource:
		need(st.Resource != nil, "resource", "Resource")
		if st.Resource != nil && st.Resource.WorkplanDay != "" {
			if _, err := pages.DayIndex(st.Resource.WorkplanDay); err != nil {
				sl.ReportError(st.Resource.WorkplanDay, "resource.workplan_day", "WorkplanDay", "day", "")
			}
		}
	case ActionSlot:
		need(st.Slot != "", "slot", "Slot")
		if st.Slot != "" {
			if _, err := pages.ParseSlot(st.Slot); err != nil {
				sl.ReportError(st.Slot, "slot", "Slot", "slot", "")
			}
		}
	}
}

// Validate checks sc and returns a *ValidationError describing every problem.
func Validate(sc *Scenario) error {
	err := validate.Struct(sc)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Source: sc.Source}
	seen := make(map[string]bool, len(verrs))
	for _, e := range verrs {
		// A bad selector trips the same rule once per field.
		if msg := describe(e); !seen[msg] {
			seen[msg] = true
			out.Problems = append(out.Problems, msg)
		}
	}
	return out
}

func describe(e validator.FieldError) string {
	// Drop the root type name: "Scenario.steps[1].url" reads as "steps[1].url".
	field := e.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s %q is not one of: %s", field, fmt.Sprint(e.Value()), e.Param())
	case "needed":
		return fmt.Sprintf("%s is required for action %s", field, e.Param())
	case "slot":
		return fmt.Sprintf("%s %q must be HH:00 or HH:30", field, fmt.Sprint(e.Value()))
	case "day":
		return fmt.Sprintf("%s %q is not a day of the week", field, fmt.Sprint(e.Value()))
	case "required_without_all", "excluded_with":
		return fmt.Sprintf("%s: a selector sets exactly one of css, xpath, id", strings.TrimSuffix(field, "."+e.Field()))
	case "gte":
		return fmt.Sprintf("%s must not be negative", field)
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, e.Tag())
	}
}

// Parse decodes and validates one scenario. Unknown keys are rejected.
// Credentials and URLs may reference environment variables as ${NAME}.
func Parse(data []byte, source string) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		if source != "" {
			return nil, fmt.Errorf("parse scenario %s: %w", source, err)
		}
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	sc.Source = source
	sc.StartURL = os.ExpandEnv(sc.StartURL)
	for i := range sc.Steps {
		st := &sc.Steps[i]
		st.URL = os.ExpandEnv(st.URL)
		st.Username = os.ExpandEnv(st.Username)
		st.Password = os.ExpandEnv(st.Password)
	}
	if err := Validate(&sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadFile reads and parses one scenario file.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data, path)
}

// LoadPaths loads files and, for directories, every *.yaml and *.yml file
// directly inside them in name order. Problems in several files are joined.
func LoadPaths(paths ...string) ([]*Scenario, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("scenario path: %w", err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		var found []string
		for _, pattern := range []string{"*.yaml", "*.yml"} {
			m, err := filepath.Glob(filepath.Join(p, pattern))
			if err != nil {
				return nil, err
			}
			found = append(found, m...)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	if len(files) == 0 {
		return nil, errors.New("no scenario files found")
	}

	var (
		out  []*Scenario
		errs []error
		seen = make(map[string]string)
	)
	for _, f := range files {
		sc, err := LoadFile(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, dup := seen[sc.Name]; dup {
			errs = append(errs, fmt.Errorf("scenario %q in %s is already defined in %s", sc.Name, f, prev))
			continue
		}
		seen[sc.Name] = f
		out = append(out, sc)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
