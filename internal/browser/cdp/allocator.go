// File: internal/browser/cdp/allocator.go
package cdp

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/config"
)

const launchProbeTimeout = 30 * time.Second

// Allocator owns one Chrome process. Pages are tabs derived from it.
type Allocator struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	// allocCtx manages the entire browser process.
	allocCtx    context.Context
	allocCancel context.CancelFunc
	// browserCtx is the first tab; closing it would end the browser, so it
	// stays open until Shutdown.
	browserCtx    context.Context
	browserCancel context.CancelFunc

	// wg tracks open pages for a graceful shutdown.
	wg sync.WaitGroup
}

// NewAllocator launches the browser and checks that it responds.
func NewAllocator(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig) (*Allocator, error) {
	a := &Allocator{
		logger: logger.Named("cdp_allocator"),
		cfg:    cfg,
	}
	a.logger.Info("Launching browser...", zap.Bool("headless", cfg.Headless))

	a.allocCtx, a.allocCancel = chromedp.NewExecAllocator(context.WithoutCancel(ctx), buildAllocatorOptions(cfg)...)

	var ctxOpts []chromedp.ContextOption
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(a.logger.Sugar().Debugf))
	}
	a.browserCtx, a.browserCancel = chromedp.NewContext(a.allocCtx, ctxOpts...)

	probeCtx, cancel := context.WithTimeout(a.browserCtx, launchProbeTimeout)
	defer cancel()
	if err := chromedp.Run(probeCtx, chromedp.Navigate("about:blank")); err != nil {
		a.browserCancel()
		a.allocCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	a.logger.Info("Browser launched successfully and is responsive.")
	return a, nil
}

// buildAllocatorOptions assembles the launch flags.
func buildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	// Later flags overwrite earlier ones, so the defaults' headless flag
	// yields to the config.
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)

	w, h := cfg.WindowSize()
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("ignore-certificate-errors", cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.WindowSize(w, h),
	)
	if cfg.Language != "" {
		opts = append(opts, chromedp.Flag("lang", cfg.Language))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	// Custom arguments from the config, "--name=value" or "--name".
	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	// Required inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return opts
}

// NewDriver opens a fresh tab.
func (a *Allocator) NewDriver(ctx context.Context) (*Page, error) {
	tabCtx, cancel := chromedp.NewContext(a.browserCtx)
	// The first Run attaches the target.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	if ctx.Err() != nil {
		cancel()
		return nil, ctx.Err()
	}

	a.wg.Add(1)
	p := &Page{
		tabCtx:      tabCtx,
		cancel:      cancel,
		logger:      a.logger.Named("page"),
		loadTimeout: a.cfg.PageLoadTimeout,
		onClose:     a.wg.Done,
	}
	return p, nil
}

// Shutdown waits for open pages, bounded by ctx, then ends the browser.
func (a *Allocator) Shutdown(ctx context.Context) error {
	a.logger.Info("Browser shutdown initiated. Waiting for open pages...")
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	a.browserCancel()
	a.allocCancel()
	<-a.allocCtx.Done()
	return nil
}
