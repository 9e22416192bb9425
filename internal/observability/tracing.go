// File: internal/observability/tracing.go
package observability

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/xkilldash9x/scalpel-e2e/internal/config"
)

const tracerName = "github.com/xkilldash9x/scalpel-e2e"

// Span attribute keys.
var (
	AttrRunID    = attribute.Key("e2e.run.id")
	AttrScenario = attribute.Key("e2e.scenario")
	AttrStep     = attribute.Key("e2e.step.index")
	AttrAction   = attribute.Key("e2e.step.action")
	AttrDriver   = attribute.Key("e2e.browser.driver")
)

// Tracing owns a tracer provider. Disabled tracing hands out a no-op tracer.
type Tracing struct {
	provider trace.TracerProvider
	shutdown func(context.Context) error
}

// NewTracing builds the provider from cfg. Output "stdout" (or empty) writes
// spans to standard output; any other value is a file that is truncated.
func NewTracing(cfg config.TracingConfig, serviceName, version string) (*Tracing, error) {
	if !cfg.Enabled {
		return &Tracing{
			provider: noop.NewTracerProvider(),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	var (
		w       io.Writer = os.Stdout
		closeFn           = func() error { return nil }
	)
	if cfg.Output != "" && cfg.Output != "stdout" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace output: %w", err)
		}
		w, closeFn = f, f.Close
	}
	return newTracing(w, closeFn, serviceName, version)
}

func newTracing(w io.Writer, closeFn func() error, serviceName, version string) (*Tracing, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		_ = closeFn()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	return &Tracing{
		provider: provider,
		shutdown: func(ctx context.Context) error {
			err := provider.Shutdown(ctx)
			if cerr := closeFn(); err == nil {
				err = cerr
			}
			return err
		},
	}, nil
}

// Tracer returns the run tracer.
func (t *Tracing) Tracer() trace.Tracer {
	return t.provider.Tracer(tracerName)
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	return t.shutdown(ctx)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
