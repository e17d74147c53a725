// Package driver opens and closes remote browser-automation sessions
// against the per-connection browser containers.
package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	serrors "scraper/errors"
	"scraper/logger"
	"scraper/utils/recovery"
)

const defaultPageTimeout = 30 * time.Second

// Session bundles the playwright handles for one remote browser session.
type Session struct {
	Browser playwright.Browser
	Context playwright.BrowserContext
	Page    playwright.Page
}

// Manager creates and tears down Sessions. It owns the playwright
// process shared by every session; the manager itself is stateless with
// respect to its inputs.
type Manager struct {
	cfg Config
	pw  *playwright.Playwright
}

// NewManager starts the playwright driver process.
func NewManager(cfg Config) (*Manager, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	return &Manager{cfg: cfg, pw: pw}, nil
}

// Stop shuts down the playwright process.
func (m *Manager) Stop() {
	if m.pw != nil {
		if err := m.pw.Stop(); err != nil {
			logger.Error("failed to stop playwright", zap.Error(err))
		}
	}
}

// Create connects to the browser published on the connection's host port
// and opens an isolated context carrying the connection's proxy and the
// configured user agent. Connection failures are retried on the
// configured schedule.
func (m *Manager) Create(ctx context.Context, name, port, proxy string) (*Session, error) {
	endpoint := fmt.Sprintf("%s:%s", m.cfg.HostNetwork, port)

	retrier := recovery.NewRetrier(recovery.Config{
		MaxAttempts:  m.cfg.RetryAttempts,
		InitialDelay: time.Duration(m.cfg.RetryInterval * float64(time.Second)),
		Strategy:     recovery.FixedDelay,
	})

	session, err := recovery.DoWithResult(ctx, retrier, func() (*Session, error) {
		return m.connect(endpoint, proxy)
	})
	if err != nil {
		logger.Error("failed to create driver session",
			zap.String("connection", name),
			zap.String("port", port),
			zap.Int("attempts", m.cfg.RetryAttempts))
		return nil, fmt.Errorf("%w: %q on port %s: %v", serrors.ErrDriverCreate, name, port, err)
	}

	logger.Info("driver session created",
		zap.String("connection", name),
		zap.String("endpoint", endpoint))
	return session, nil
}

// connect performs a single connection attempt.
func (m *Manager) connect(endpoint, proxy string) (*Session, error) {
	browser, err := m.pw.Chromium.ConnectOverCDP(endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", endpoint, err)
	}

	opts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: 1920, Height: 1080},
	}
	if m.cfg.Proxy && proxy != "" {
		opts.Proxy = &playwright.Proxy{Server: proxy}
	}
	if m.cfg.UserAgent != "" {
		opts.UserAgent = playwright.String(m.cfg.UserAgent)
	}

	browserCtx, err := browser.NewContext(opts)
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("browser context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		_ = browserCtx.Close()
		_ = browser.Close()
		return nil, fmt.Errorf("page: %w", err)
	}
	page.SetDefaultTimeout(float64(defaultPageTimeout.Milliseconds()))
	page.SetDefaultNavigationTimeout(float64(defaultPageTimeout.Milliseconds()))

	return &Session{Browser: browser, Context: browserCtx, Page: page}, nil
}

// Quit ends a session. Errors are logged and swallowed so teardown is
// idempotent from the controller's viewpoint.
func (m *Manager) Quit(s *Session) {
	if s == nil {
		return
	}
	if s.Page != nil {
		if err := s.Page.Close(); err != nil {
			logger.Error("error closing page", zap.Error(err))
		}
	}
	if s.Context != nil {
		if err := s.Context.Close(); err != nil {
			logger.Error("error closing browser context", zap.Error(err))
		}
	}
	if s.Browser != nil {
		if err := s.Browser.Close(); err != nil {
			logger.Error("error closing browser connection", zap.Error(err))
		}
	}
	logger.Info("driver session terminated")
}
