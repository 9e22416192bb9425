// File: internal/session/factory.go
package session

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/cdp"
	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/browser/pw"
	"github.com/xkilldash9x/scalpel-e2e/internal/config"
	"github.com/xkilldash9x/scalpel-e2e/internal/interact"
	"github.com/xkilldash9x/scalpel-e2e/internal/observability"
)

// Launcher owns a browser and hands out one driver per session.
type Launcher interface {
	NewDriver(ctx context.Context) (driver.Driver, error)
	Shutdown(ctx context.Context) error
}

type cdpLauncher struct{ a *cdp.Allocator }

func (l cdpLauncher) NewDriver(ctx context.Context) (driver.Driver, error) {
	p, err := l.a.NewDriver(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (l cdpLauncher) Shutdown(ctx context.Context) error { return l.a.Shutdown(ctx) }

type pwLauncher struct{ m *pw.Manager }

func (l pwLauncher) NewDriver(ctx context.Context) (driver.Driver, error) {
	p, err := l.m.NewDriver(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (l pwLauncher) Shutdown(ctx context.Context) error { return l.m.Shutdown(ctx) }

// NewLauncher starts the backend named by browser.driver.
func NewLauncher(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig) (Launcher, error) {
	switch strings.ToLower(cfg.Driver) {
	case config.DriverChromedp, "":
		a, err := cdp.NewAllocator(ctx, logger, cfg)
		if err != nil {
			return nil, err
		}
		return cdpLauncher{a}, nil
	case config.DriverPlaywright:
		return pwLauncher{pw.NewManager(logger, cfg)}, nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", cfg.Driver)
	}
}

// Factory creates sessions on one launcher. It is safe for concurrent use
// as long as the launcher is.
type Factory struct {
	launcher Launcher
	params   Params
	logger   *zap.Logger
}

// NewFactory launches the configured browser backend and prepares session
// parameters from cfg. Clicks are counted on m when it is non-nil.
func NewFactory(ctx context.Context, cfg config.Interface, logger *zap.Logger, m *observability.Metrics) (*Factory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l, err := NewLauncher(ctx, logger, cfg.Browser())
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	p := Params{
		Logger:       logger,
		Settings:     SettingsFrom(cfg),
		BaseURL:      cfg.App().BaseURL,
		ArtifactsDir: cfg.Runner().ArtifactsDir,
	}
	if m != nil {
		p.OnClick = func(level interact.ClickLevel) { m.ObserveClick(string(level)) }
	}
	return NewFactoryWith(l, p), nil
}

// NewFactoryWith builds a Factory around an existing launcher.
func NewFactoryWith(l Launcher, p Params) *Factory {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return &Factory{launcher: l, params: p, logger: p.Logger.Named("session_factory")}
}

// New opens a fresh driver and wraps it in a Session. The logger may be a
// scenario-scoped child; nil keeps the factory's.
func (f *Factory) New(ctx context.Context, logger *zap.Logger) (*Session, error) {
	d, err := f.launcher.NewDriver(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser page: %w", err)
	}
	p := f.params
	if logger != nil {
		p.Logger = logger
	}
	s := New(d, p)
	f.logger.Debug("Session opened.", zap.String("session_id", s.ID))
	return s, nil
}

// Shutdown stops the browser backend.
func (f *Factory) Shutdown(ctx context.Context) error {
	return f.launcher.Shutdown(ctx)
}
