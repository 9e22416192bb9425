// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/config"
	"github.com/xkilldash9x/scalpel-e2e/internal/observability"
	"github.com/xkilldash9x/scalpel-e2e/internal/reporting"
	"github.com/xkilldash9x/scalpel-e2e/internal/runner"
	"github.com/xkilldash9x/scalpel-e2e/internal/scenario"
	"github.com/xkilldash9x/scalpel-e2e/internal/session"
)

const shutdownTimeout = 30 * time.Second

// sessionFactory is what the run and probe commands need from a browser backend.
type sessionFactory interface {
	runner.SessionFactory
	Shutdown(ctx context.Context) error
}

// newSessionFactory launches the configured browser. Tests replace it.
var newSessionFactory = func(ctx context.Context, cfg config.Interface, logger *zap.Logger, m *observability.Metrics) (sessionFactory, error) {
	return session.NewFactory(ctx, cfg, logger, m)
}

type runOptions struct {
	concurrency  int
	driver       string
	headless     bool
	baseURL      string
	reportFormat string
	reportOut    string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [scenario files or directories...]",
		Short: "Run UI scenarios against the application under test",
		Long: `Loads every scenario (YAML) from the given files and directories and runs
each one in its own browser session. Scenarios that fail do not stop the
others; the exit code is non-zero when any scenario failed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if err := applyRunFlags(cmd, cfg, opts); err != nil {
				return err
			}
			return runScenarios(cmd.Context(), cmd.OutOrStdout(), cfg, args, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "j", 0, "Number of scenarios to run in parallel")
	cmd.Flags().StringVar(&opts.driver, "driver", "", "Browser driver: chromedp or playwright")
	cmd.Flags().BoolVar(&opts.headless, "headless", true, "Run the browser without a window")
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "Base URL relative paths resolve against")
	cmd.Flags().StringVarP(&opts.reportFormat, "report-format", "f", "text", "Report format: "+strings.Join(reporting.Formats, ", "))
	cmd.Flags().StringVarP(&opts.reportOut, "report-out", "o", "", "Report file (default stdout)")
	return cmd
}

// applyRunFlags copies explicitly set flags over the loaded configuration
// and re-validates it.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, opts *runOptions) error {
	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		cfg.SetRunnerConcurrency(opts.concurrency)
	}
	if flags.Changed("driver") {
		cfg.SetBrowserDriver(opts.driver)
	}
	if flags.Changed("headless") {
		cfg.SetBrowserHeadless(opts.headless)
	}
	if flags.Changed("base-url") {
		cfg.SetAppBaseURL(opts.baseURL)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func runScenarios(ctx context.Context, stdout io.Writer, cfg *config.Config, paths []string, opts *runOptions) error {
	logger := observability.GetLogger()

	// Scenarios are checked before a browser is started.
	scenarios, err := scenario.LoadPaths(paths...)
	if err != nil {
		return err
	}

	var reporter reporting.Reporter
	if opts.reportOut == "" || opts.reportOut == "stdout" {
		reporter, err = reporting.NewWriter(opts.reportFormat, nopCloser{stdout}, Version)
	} else {
		reporter, err = reporting.New(opts.reportFormat, opts.reportOut, Version)
	}
	if err != nil {
		return err
	}

	var metrics *observability.Metrics
	if cfg.Metrics().Enabled {
		metrics = observability.NewMetrics()
	}
	tracing, err := observability.NewTracing(cfg.Tracing(), "scalpel-e2e", Version)
	if err != nil {
		reporter.Close()
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if serr := tracing.Shutdown(sctx); serr != nil {
			logger.Warn("Failed to flush traces.", zap.Error(serr))
		}
	}()

	factory, err := newSessionFactory(ctx, cfg, logger, metrics)
	if err != nil {
		reporter.Close()
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if serr := factory.Shutdown(sctx); serr != nil {
			logger.Warn("Failed to shut down the browser.", zap.Error(serr))
		}
	}()

	app := cfg.App()
	exec := scenario.NewExecutor(
		scenario.WithMetrics(metrics),
		scenario.WithTracer(tracing.Tracer()),
		scenario.WithCredentials(scenario.Credentials{
			Username:  app.Username,
			Password:  app.Password,
			LoginPath: app.LoginPath,
		}),
	)
	runOpts := []runner.Option{
		runner.WithMetrics(metrics),
		runner.WithTracer(tracing.Tracer()),
		runner.WithDriverName(cfg.Browser().Driver),
	}
	if cfg.Metrics().Enabled {
		runOpts = append(runOpts, runner.WithMetricsTextfile(cfg.Metrics().TextfilePath))
	}
	r, err := runner.New(cfg.Runner(), factory, exec, logger, runOpts...)
	if err != nil {
		reporter.Close()
		return err
	}

	summary, runErr := r.Run(ctx, scenarios)
	if summary == nil {
		reporter.Close()
		return runErr
	}
	for _, rep := range summary.Reports {
		if werr := reporter.Write(rep); werr != nil {
			logger.Error("Failed to write report.", zap.String("scenario", rep.Scenario), zap.Error(werr))
		}
	}
	if cerr := reporter.Close(); cerr != nil {
		return fmt.Errorf("failed to finalize report: %w", cerr)
	}
	if runErr != nil {
		return runErr
	}
	if !summary.OK() {
		return &exitError{code: 1, msg: fmt.Sprintf("%d of %d scenarios failed", summary.Failed, len(summary.Reports))}
	}
	return nil
}

// nopCloser keeps the command's output open when a reporter closes it.
type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
