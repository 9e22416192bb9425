// File: internal/reporting/reporter_test.go
package reporting_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beevik/etree"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/reporting"
	"github.com/xkilldash9x/scalpel-e2e/internal/scenario"
)

const testToolVersion = "v1.0.0-test"

type bufCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufCloser) Close() error {
	b.closed = true
	return nil
}

func sampleReports() []*scenario.Report {
	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	failure := &driver.TimeoutError{Condition: "visibility of panel", Elapsed: 300 * time.Millisecond}
	return []*scenario.Report{
		{
			Scenario: "login",
			Source:   "scenarios/login.yaml",
			Started:  started,
			Duration: 1200 * time.Millisecond,
			Steps: []scenario.StepResult{
				{Index: 0, Name: "login", Action: scenario.ActionLogin, Duration: time.Second},
			},
		},
		{
			Scenario:   "check in",
			Started:    started,
			Duration:   2 * time.Second,
			Err:        &scenario.StepError{Index: 1, Name: "panel", Action: scenario.ActionWaitVisible, Err: failure},
			Screenshot: "artifacts/failure-check_in.png",
			Steps: []scenario.StepResult{
				{Index: 0, Name: "start", Action: scenario.ActionNavigate, Duration: 500 * time.Millisecond},
				{Index: 1, Name: "panel", Action: scenario.ActionWaitVisible, Duration: 300 * time.Millisecond, Kind: "timeout", Err: failure},
				{Index: 2, Name: "check_in", Action: scenario.ActionCheckIn, Skipped: true},
			},
		},
	}
}

func writeAll(t *testing.T, format string) *bufCloser {
	t.Helper()
	out := &bufCloser{}
	r, err := reporting.NewWriter(format, out, testToolVersion)
	require.NoError(t, err)
	for _, rep := range sampleReports() {
		require.NoError(t, r.Write(rep))
	}
	require.NoError(t, r.Close())
	assert.True(t, out.closed)

	// Close is idempotent and the reporter refuses late writes.
	assert.NoError(t, r.Close())
	assert.Error(t, r.Write(sampleReports()[0]))
	return out
}

func TestTextReporter(t *testing.T) {
	out := writeAll(t, "text").String()

	assert.Contains(t, out, "PASS  login")
	assert.Contains(t, out, "FAIL  check in")
	assert.Contains(t, out, "timed out after")
	assert.Contains(t, out, "[screenshot: artifacts/failure-check_in.png]")
	assert.Contains(t, out, "1 passed, 1 failed\n")
}

func TestJSONReporter(t *testing.T) {
	out := writeAll(t, "json")

	var got struct {
		Tool      string `json:"tool"`
		Version   string `json:"version"`
		Passed    int    `json:"passed"`
		Failed    int    `json:"failed"`
		Scenarios []struct {
			Name       string  `json:"name"`
			Passed     bool    `json:"passed"`
			DurationMS float64 `json:"duration_ms"`
			Kind       string  `json:"error_kind"`
			Screenshot string  `json:"screenshot"`
			Steps      []struct {
				Action  string `json:"action"`
				Kind    string `json:"error_kind"`
				Skipped bool   `json:"skipped"`
			} `json:"steps"`
		} `json:"scenarios"`
	}
	require.NoError(t, jsoniter.Unmarshal(out.Bytes(), &got))

	assert.Equal(t, reporting.ToolName, got.Tool)
	assert.Equal(t, testToolVersion, got.Version)
	assert.Equal(t, 1, got.Passed)
	assert.Equal(t, 1, got.Failed)
	require.Len(t, got.Scenarios, 2)
	assert.True(t, got.Scenarios[0].Passed)
	assert.InDelta(t, 1200, got.Scenarios[0].DurationMS, 0.001)

	failed := got.Scenarios[1]
	assert.Equal(t, "timeout", failed.Kind)
	assert.Equal(t, "artifacts/failure-check_in.png", failed.Screenshot)
	require.Len(t, failed.Steps, 3)
	assert.Equal(t, "wait_visible", failed.Steps[1].Action)
	assert.Equal(t, "timeout", failed.Steps[1].Kind)
	assert.True(t, failed.Steps[2].Skipped)
}

func TestJUnitReporter(t *testing.T) {
	out := writeAll(t, "junit")

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(out.Bytes()))
	root := doc.SelectElement("testsuites")
	require.NotNil(t, root)
	assert.Equal(t, "4", root.SelectAttrValue("tests", ""))
	assert.Equal(t, "1", root.SelectAttrValue("failures", ""))
	assert.Equal(t, "1", root.SelectAttrValue("skipped", ""))

	suites := root.SelectElements("testsuite")
	require.Len(t, suites, 2)
	assert.Equal(t, "scenarios/login.yaml", suites[0].SelectAttrValue("file", ""))
	assert.Equal(t, "2026-03-02T09:00:00Z", suites[0].SelectAttrValue("timestamp", ""))

	cases := suites[1].SelectElements("testcase")
	require.Len(t, cases, 3)
	assert.Equal(t, "02 panel", cases[1].SelectAttrValue("name", ""))
	assert.Equal(t, "0.300", cases[1].SelectAttrValue("time", ""))
	failure := cases[1].SelectElement("failure")
	require.NotNil(t, failure)
	assert.Equal(t, "timeout", failure.SelectAttrValue("type", ""))
	assert.Contains(t, failure.SelectAttrValue("message", ""), "visibility of panel")
	assert.Contains(t, cases[1].SelectElement("system-out").Text(), "failure-check_in.png")
	assert.NotNil(t, cases[2].SelectElement("skipped"))
}

func TestJUnitReporterSetupFailure(t *testing.T) {
	out := &bufCloser{}
	r, err := reporting.NewWriter("junit", out, testToolVersion)
	require.NoError(t, err)
	require.NoError(t, r.Write(&scenario.Report{Scenario: "no browser", Err: assert.AnError}))
	require.NoError(t, r.Close())

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(out.Bytes()))
	tc := doc.FindElement("//testsuite/testcase[@name='setup']")
	require.NotNil(t, tc)
	assert.Equal(t, "other", tc.SelectElement("failure").SelectAttrValue("type", ""))
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	r, err := reporting.New("json", path, testToolVersion)
	require.NoError(t, err)
	require.NoError(t, r.Write(sampleReports()[0]))
	require.NoError(t, r.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, jsoniter.Valid(data))
}

func TestNewStdout(t *testing.T) {
	for _, path := range []string{"", "stdout"} {
		r, err := reporting.New("text", path, testToolVersion)
		require.NoError(t, err)
		assert.NoError(t, r.Close())
	}
}

func TestNewUnsupportedFormatCleansUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.sarif")
	r, err := reporting.New("sarif", path, testToolVersion)
	assert.Nil(t, r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format: sarif")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "the half-created file is removed")
}
