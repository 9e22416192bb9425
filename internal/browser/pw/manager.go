// File: internal/browser/pw/manager.go
package pw

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/config"
)

const (
	installTimeout      = 5 * time.Minute
	launchTimeout       = 60 * time.Second
	shutdownGracePeriod = 15 * time.Second
)

// Manager owns the Playwright driver and one Chromium instance. Every
// Page gets an isolated browser context.
type Manager struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  *zap.Logger
	cfg     config.BrowserConfig

	// wg tracks open pages for a graceful shutdown.
	wg sync.WaitGroup

	initOnce sync.Once
	initErr  error
}

// NewManager creates a manager. The browser is launched with the first page.
func NewManager(logger *zap.Logger, cfg config.BrowserConfig) *Manager {
	m := &Manager{
		logger: logger.Named("pw_manager"),
		cfg:    cfg,
	}
	m.logger.Debug("Playwright manager created (launch deferred).")
	return m
}

func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Starting Playwright and launching Chromium...", zap.Bool("headless", m.cfg.Headless))

		if m.cfg.AutoInstall {
			if err := m.ensureInstallation(ctx); err != nil {
				m.initErr = err
				return
			}
		}

		pw, err := playwright.Run()
		if err != nil {
			m.initErr = fmt.Errorf("failed to start playwright driver: %w", err)
			return
		}
		browser, err := pw.Chromium.Launch(launchOptions(m.cfg))
		if err != nil {
			_ = pw.Stop()
			m.initErr = fmt.Errorf("failed to launch browser instance: %w", err)
			return
		}
		m.pw, m.browser = pw, browser
		m.logger.Info("Browser launched.", zap.String("browser_version", browser.Version()))
	})
	return m.initErr
}

// ensureInstallation downloads Chromium for the pinned driver if missing.
func (m *Manager) ensureInstallation(ctx context.Context) error {
	m.logger.Info("Verifying Playwright browser installation...")
	installCtx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			errc <- fmt.Errorf("failed to install playwright browsers: %w", err)
			return
		}
		errc <- nil
	}()

	select {
	case err := <-errc:
		return err
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for Playwright installation: %w", installCtx.Err())
	}
}

func launchOptions(cfg config.BrowserConfig) playwright.BrowserTypeLaunchOptions {
	args := []string{"--disable-extensions"}
	if cfg.Headless {
		args = append(args, "--disable-gpu")
	}
	if cfg.Language != "" {
		args = append(args, "--lang="+cfg.Language)
	}
	if runtime.GOOS == "linux" {
		args = append(args, "--no-sandbox", "--disable-dev-shm-usage")
	}
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     append(args, cfg.Args...),
		Timeout:  playwright.Float(float64(launchTimeout.Milliseconds())),
	}
	if cfg.ExecPath != "" {
		opts.ExecutablePath = playwright.String(cfg.ExecPath)
	}
	return opts
}

func contextOptions(cfg config.BrowserConfig) playwright.BrowserNewContextOptions {
	w, h := cfg.WindowSize()
	opts := playwright.BrowserNewContextOptions{
		Viewport:          &playwright.Size{Width: w, Height: h},
		IgnoreHttpsErrors: playwright.Bool(cfg.IgnoreTLSErrors),
	}
	if cfg.Language != "" {
		opts.Locale = playwright.String(cfg.Language)
	}
	return opts
}

// NewDriver opens a page in a fresh browser context, launching the browser
// on first use.
func (m *Manager) NewDriver(ctx context.Context) (*Page, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bctx, err := m.browser.NewContext(contextOptions(m.cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	m.wg.Add(1)
	return &Page{
		page:        page,
		bctx:        bctx,
		logger:      m.logger.Named("page"),
		loadTimeout: m.cfg.PageLoadTimeout,
		onClose:     m.wg.Done,
	}, nil
}

// Shutdown waits for open pages, bounded by ctx, then closes the browser
// and stops the driver.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.pw == nil {
		m.logger.Debug("Manager never launched a browser, nothing to shut down.")
		return nil
	}
	m.logger.Info("Browser shutdown initiated. Waiting for open pages...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	var shutdownErr error
	if err := m.browser.Close(); err != nil {
		m.logger.Error("Failed to close browser instance.", zap.Error(err))
		shutdownErr = fmt.Errorf("failed to close browser: %w", err)
	}
	stopped := make(chan error, 1)
	go func() { stopped <- m.pw.Stop() }()
	select {
	case err := <-stopped:
		if err != nil && shutdownErr == nil {
			shutdownErr = fmt.Errorf("failed to stop playwright driver: %w", err)
		}
	case <-time.After(shutdownGracePeriod):
		m.logger.Warn("Playwright driver did not stop in time.")
	}
	return shutdownErr
}
