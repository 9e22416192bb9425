// File: internal/session/session.go

// Package session binds one browser driver to the engine components that
// act on it. A Session is owned by exactly one worker; nothing in it is
// shared between scenarios.
package session

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-e2e/internal/interact"
	"github.com/xkilldash9x/scalpel-e2e/internal/popup"
	"github.com/xkilldash9x/scalpel-e2e/internal/statuspoll"
	"github.com/xkilldash9x/scalpel-e2e/internal/virtualscroll"
	"github.com/xkilldash9x/scalpel-e2e/internal/wait"
)

// Session is the explicit context every page object and scenario step
// receives in place of ambient globals.
type Session struct {
	ID           string
	Driver       driver.Driver
	Interact     *interact.Interactor
	Popups       *popup.Protocol
	Poller       *statuspoll.Poller
	Logger       *zap.Logger
	Timeouts     wait.Timeouts
	BaseURL      string
	ArtifactsDir string

	scroll []virtualscroll.Option

	closeOnce sync.Once
	closeErr  error
}

// Params carries what New needs besides the driver.
type Params struct {
	Logger       *zap.Logger
	Settings     Settings
	BaseURL      string
	ArtifactsDir string
	// OnClick, when set, is told which fallback level landed each click.
	OnClick func(interact.ClickLevel)
}

// New wires the engine around d.
func New(d driver.Driver, p Params) *Session {
	id := uuid.New().String()
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session_id", id))

	opts := []interact.Option{}
	if p.Settings.Retry.Attempts > 0 {
		opts = append(opts, interact.WithRetry(p.Settings.Retry.Attempts, p.Settings.Retry.Backoff))
	}
	if p.OnClick != nil {
		opts = append(opts, interact.WithClickObserver(p.OnClick))
	}
	in := interact.New(logger, p.Settings.Timeouts, opts...)

	return &Session{
		ID:           id,
		Driver:       d,
		Interact:     in,
		Popups:       popup.New(in, p.Settings.Popup),
		Poller:       statuspoll.New(p.Settings.StatusPoll, logger),
		Logger:       logger,
		Timeouts:     in.Timeouts(),
		BaseURL:      p.BaseURL,
		ArtifactsDir: p.ArtifactsDir,
		scroll:       p.Settings.ScrollOptions(),
	}
}

// ScrollOptions returns the configured virtualized-search options followed
// by extra.
func (s *Session) ScrollOptions(extra ...virtualscroll.Option) []virtualscroll.Option {
	out := make([]virtualscroll.Option, 0, len(s.scroll)+len(extra)+1)
	out = append(out, virtualscroll.WithLogger(s.Logger))
	out = append(out, s.scroll...)
	return append(out, extra...)
}

// Resolve makes target absolute against BaseURL. Absolute URLs pass through.
func (s *Session) Resolve(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", target, err)
	}
	if u.IsAbs() {
		return target, nil
	}
	if s.BaseURL == "" {
		return "", fmt.Errorf("relative url %q needs app.base_url", target)
	}
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", s.BaseURL, err)
	}
	// Keep a path prefix on the base ("https://host/app") by treating it as a directory.
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	return base.ResolveReference(&url.URL{
		Path:     strings.TrimPrefix(u.Path, "/"),
		RawQuery: u.RawQuery,
		Fragment: u.Fragment,
	}).String(), nil
}

// Open navigates to target and waits for the document to become ready.
func (s *Session) Open(ctx context.Context, target string) error {
	abs, err := s.Resolve(target)
	if err != nil {
		return err
	}
	s.Logger.Info("Opening page.", zap.String("url", abs))
	if err := s.Driver.Navigate(ctx, abs); err != nil {
		return err
	}
	return s.WaitDocumentReady(ctx)
}

// WaitDocumentReady polls document.readyState until it is interactive or complete.
func (s *Session) WaitDocumentReady(ctx context.Context) error {
	return wait.Until(ctx, "document ready", func(ctx context.Context) (bool, error) {
		v, err := s.Driver.Eval(ctx, "document.readyState")
		if err != nil {
			return false, driver.MarkTransient(err)
		}
		state, _ := v.(string)
		return state == "interactive" || state == "complete", nil
	}, s.Timeouts.Opts(s.Timeouts.Long)...)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Screenshot writes a PNG named after name into the artifacts directory and
// returns its path.
func (s *Session) Screenshot(ctx context.Context, name string) (string, error) {
	buf, err := s.Driver.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	dir := s.ArtifactsDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifacts dir: %w", err)
	}
	file := strings.Trim(unsafeName.ReplaceAllString(name, "_"), "_")
	if file == "" {
		file = "screenshot"
	}
	path := filepath.Join(dir, file+".png")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return "", fmt.Errorf("write screenshot: %w", err)
	}
	s.Logger.Info("Screenshot saved.", zap.String("path", path))
	return path, nil
}

// Close closes the driver once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.Driver.Close()
		s.Logger.Debug("Session closed.")
	})
	return s.closeErr
}
