// File: internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xkilldash9x/scalpel-e2e/internal/scenario"
)

// Reporter writes scenario reports to an output.
type Reporter interface {
	// Write records one finished scenario.
	Write(rep *scenario.Report) error
	// Close finalizes the report and closes any underlying file.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// Formats lists the names New accepts.
var Formats = []string{"text", "json", "junit"}

// New creates a reporter for format writing to outputPath; "" or "stdout"
// means standard output.
func New(format, outputPath, toolVersion string) (Reporter, error) {
	var writer io.WriteCloser
	isStdOut := outputPath == "" || outputPath == "stdout"

	if isStdOut {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	r, err := NewWriter(format, writer, toolVersion)
	if err != nil && !isStdOut {
		writer.Close()
		os.Remove(outputPath)
	}
	return r, err
}

// NewWriter creates a reporter that takes ownership of w.
func NewWriter(format string, w io.WriteCloser, toolVersion string) (Reporter, error) {
	switch format {
	case "text":
		return newTextReporter(w), nil
	case "json":
		return newJSONReporter(w, toolVersion), nil
	case "junit":
		return newJUnitReporter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
