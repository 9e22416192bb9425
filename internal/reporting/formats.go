// File: internal/reporting/formats.go
package reporting

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/beevik/etree"
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/scenario"
)

const ToolName = "scalpel-e2e"

// collector buffers reports for formats that can only be written whole.
type collector struct {
	mu      sync.Mutex
	w       io.WriteCloser
	reports []*scenario.Report
	closed  bool
}

func (c *collector) Write(rep *scenario.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("reporter is closed")
	}
	c.reports = append(c.reports, rep)
	return nil
}

// finish runs render once and closes the writer.
func (c *collector) finish(render func([]*scenario.Report) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return errors.Join(render(c.reports), c.w.Close())
}

// -- text --

// textReporter prints one line per scenario as it finishes, then a total.
type textReporter struct {
	mu             sync.Mutex
	w              io.WriteCloser
	tw             *tabwriter.Writer
	passed, failed int
	closed         bool
}

func newTextReporter(w io.WriteCloser) *textReporter {
	return &textReporter{w: w, tw: tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)}
}

func (r *textReporter) Write(rep *scenario.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("reporter is closed")
	}
	status := "PASS"
	detail := ""
	if rep.Passed() {
		r.passed++
	} else {
		r.failed++
		status = "FAIL"
		detail = errText(rep.Err)
		if rep.Screenshot != "" {
			detail += " [screenshot: " + rep.Screenshot + "]"
		}
	}
	_, err := fmt.Fprintf(r.tw, "%s\t%s\t%s\t%s\n", status, rep.Scenario, rep.Duration.Round(time.Millisecond), detail)
	return err
}

func (r *textReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	flushErr := r.tw.Flush()
	_, err := fmt.Fprintf(r.w, "%d passed, %d failed\n", r.passed, r.failed)
	return errors.Join(flushErr, err, r.w.Close())
}

// -- json --

type jsonStep struct {
	Index      int     `json:"index"`
	Name       string  `json:"name"`
	Action     string  `json:"action"`
	DurationMS float64 `json:"duration_ms"`
	Skipped    bool    `json:"skipped,omitempty"`
	Kind       string  `json:"error_kind,omitempty"`
	Error      string  `json:"error,omitempty"`
	Artifact   string  `json:"artifact,omitempty"`
}

type jsonScenario struct {
	Name       string     `json:"name"`
	Source     string     `json:"source,omitempty"`
	SessionID  string     `json:"session_id,omitempty"`
	Passed     bool       `json:"passed"`
	Started    time.Time  `json:"started"`
	DurationMS float64    `json:"duration_ms"`
	Kind       string     `json:"error_kind,omitempty"`
	Error      string     `json:"error,omitempty"`
	Screenshot string     `json:"screenshot,omitempty"`
	Steps      []jsonStep `json:"steps"`
}

type jsonReport struct {
	Tool        string         `json:"tool"`
	Version     string         `json:"version"`
	GeneratedAt time.Time      `json:"generated_at"`
	Passed      int            `json:"passed"`
	Failed      int            `json:"failed"`
	Scenarios   []jsonScenario `json:"scenarios"`
}

type jsonReporter struct {
	collector
	version string
}

func newJSONReporter(w io.WriteCloser, version string) *jsonReporter {
	return &jsonReporter{collector: collector{w: w}, version: version}
}

func (r *jsonReporter) Close() error {
	return r.finish(func(reports []*scenario.Report) error {
		out := jsonReport{
			Tool:        ToolName,
			Version:     r.version,
			GeneratedAt: time.Now().UTC(),
			Scenarios:   make([]jsonScenario, 0, len(reports)),
		}
		for _, rep := range reports {
			if rep.Passed() {
				out.Passed++
			} else {
				out.Failed++
			}
			sc := jsonScenario{
				Name:       rep.Scenario,
				Source:     rep.Source,
				SessionID:  rep.SessionID,
				Passed:     rep.Passed(),
				Started:    rep.Started,
				DurationMS: millis(rep.Duration),
				Kind:       driver.Kind(rep.Err),
				Error:      errText(rep.Err),
				Screenshot: rep.Screenshot,
				Steps:      make([]jsonStep, 0, len(rep.Steps)),
			}
			for _, st := range rep.Steps {
				sc.Steps = append(sc.Steps, jsonStep{
					Index:      st.Index,
					Name:       st.Name,
					Action:     string(st.Action),
					DurationMS: millis(st.Duration),
					Skipped:    st.Skipped,
					Kind:       st.Kind,
					Error:      errText(st.Err),
					Artifact:   st.Artifact,
				})
			}
			out.Scenarios = append(out.Scenarios, sc)
		}
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(r.w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	})
}

// -- junit --

// junitReporter writes the JUnit XML that CI systems render as test results:
// one testsuite per scenario, one testcase per step.
type junitReporter struct {
	collector
}

func newJUnitReporter(w io.WriteCloser) *junitReporter {
	return &junitReporter{collector: collector{w: w}}
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func (r *junitReporter) Close() error {
	return r.finish(func(reports []*scenario.Report) error {
		doc := etree.NewDocument()
		doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
		root := doc.CreateElement("testsuites")
		root.CreateAttr("name", ToolName)

		var total, failures, skipped int
		var elapsed time.Duration
		for _, rep := range reports {
			suite := root.CreateElement("testsuite")
			suite.CreateAttr("name", rep.Scenario)
			if rep.Source != "" {
				suite.CreateAttr("file", rep.Source)
			}
			if !rep.Started.IsZero() {
				suite.CreateAttr("timestamp", rep.Started.UTC().Format(time.RFC3339))
			}
			suite.CreateAttr("time", seconds(rep.Duration))

			var sFail, sSkip int
			for _, st := range rep.Steps {
				tc := suite.CreateElement("testcase")
				tc.CreateAttr("classname", rep.Scenario)
				tc.CreateAttr("name", fmt.Sprintf("%02d %s", st.Index+1, st.Name))
				tc.CreateAttr("time", seconds(st.Duration))
				switch {
				case st.Skipped:
					sSkip++
					tc.CreateElement("skipped")
				case st.Err != nil:
					sFail++
					f := tc.CreateElement("failure")
					f.CreateAttr("type", st.Kind)
					f.CreateAttr("message", st.Err.Error())
					if st.Artifact != "" || rep.Screenshot != "" {
						tc.CreateElement("system-out").SetText("[[ATTACHMENT|" + firstNonEmpty(st.Artifact, rep.Screenshot) + "]]")
					}
				}
			}
			// A scenario that failed before any step, e.g. no session.
			if len(rep.Steps) == 0 && rep.Err != nil {
				tc := suite.CreateElement("testcase")
				tc.CreateAttr("classname", rep.Scenario)
				tc.CreateAttr("name", "setup")
				tc.CreateAttr("time", "0.000")
				f := tc.CreateElement("failure")
				f.CreateAttr("type", driver.Kind(rep.Err))
				f.CreateAttr("message", rep.Err.Error())
				sFail++
			}
			tests := len(rep.Steps)
			if tests == 0 && rep.Err != nil {
				tests = 1
			}
			suite.CreateAttr("tests", strconv.Itoa(tests))
			suite.CreateAttr("failures", strconv.Itoa(sFail))
			suite.CreateAttr("skipped", strconv.Itoa(sSkip))

			total += tests
			failures += sFail
			skipped += sSkip
			elapsed += rep.Duration
		}
		root.CreateAttr("tests", strconv.Itoa(total))
		root.CreateAttr("failures", strconv.Itoa(failures))
		root.CreateAttr("skipped", strconv.Itoa(skipped))
		root.CreateAttr("time", seconds(elapsed))

		doc.Indent(2)
		_, err := doc.WriteTo(r.w)
		return err
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
