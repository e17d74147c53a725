// Package proxy manages the pool of outbound proxy endpoints shared by
// every scraping connection. Entries are use-counted and lent to at most
// one connection at a time; the pool refills itself from the source file
// when every entry is in use or exhausted.
package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	serrors "scraper/errors"
	"scraper/logger"
)

const (
	validationWorkers = 10
	validationTimeout = 5 * time.Second
)

type entry struct {
	useCount int
	inUse    bool
}

// Manager holds the proxy pool. All map mutation happens under mu;
// validation probes run outside the lock because they take no pool state.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	order   []string
	entries map[string]*entry
}

// NewManager loads the pool from the configured file, optionally
// validating each endpoint, and returns the initialized manager.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{
		cfg:     cfg,
		entries: make(map[string]*entry),
	}
	proxies, err := m.loadFromFile()
	if err != nil {
		return nil, err
	}
	if cfg.Validation {
		proxies = m.validate(proxies)
	}
	for _, p := range proxies {
		m.insert(p)
	}
	logger.Info("initialized proxy pool", zap.Int("available", len(m.entries)))
	return m, nil
}

// insert registers a fresh endpoint. Caller holds mu or is still
// single-threaded during construction.
func (m *Manager) insert(p string) {
	if _, ok := m.entries[p]; ok {
		return
	}
	m.order = append(m.order, p)
	m.entries[p] = &entry{}
}

// loadFromFile reads one endpoint per non-blank line, trimmed.
func (m *Manager) loadFromFile() ([]string, error) {
	data, err := os.ReadFile(m.cfg.InputFile)
	if err != nil {
		return nil, fmt.Errorf("read proxy pool file %q: %w", m.cfg.InputFile, err)
	}
	var proxies []string
	for _, line := range strings.Split(string(data), "\n") {
		if p := strings.TrimSpace(line); p != "" {
			proxies = append(proxies, p)
		}
	}
	return proxies, nil
}

// validate probes every candidate concurrently, bounded to
// validationWorkers in flight, and keeps the ones that answer 200.
func (m *Manager) validate(proxies []string) []string {
	var (
		wg    sync.WaitGroup
		sem   = make(chan struct{}, validationWorkers)
		vmu   sync.Mutex
		valid []string
	)
	for _, p := range proxies {
		wg.Add(1)
		sem <- struct{}{}
		go func(p string) {
			defer wg.Done()
			defer func() { <-sem }()
			if m.isValid(p) {
				vmu.Lock()
				valid = append(valid, p)
				vmu.Unlock()
			}
		}(p)
	}
	wg.Wait()

	// Preserve file order so Acquire scans deterministically.
	keep := make(map[string]bool, len(valid))
	for _, p := range valid {
		keep[p] = true
	}
	ordered := valid[:0]
	for _, p := range proxies {
		if keep[p] {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

// isValid checks connectivity by fetching the test URL through the proxy.
func (m *Manager) isValid(p string) bool {
	proxyURL, err := url.Parse(m.FormatProxyURL(p))
	if err != nil {
		logger.Warn("invalid proxy endpoint", zap.String("proxy", p), zap.Error(err))
		return false
	}
	client := &http.Client{
		Timeout: validationTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
	}
	resp, err := client.Get(m.cfg.TestURL)
	if err != nil {
		logger.Warn("proxy validation error", zap.String("proxy", p), zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// FormatProxyURL renders an endpoint as a full proxy URL with the
// configured scheme and optional credentials.
func (m *Manager) FormatProxyURL(p string) string {
	scheme := strings.ToLower(m.cfg.ProxyType)
	auth := ""
	if m.cfg.Authentication != nil {
		auth = fmt.Sprintf("%s:%s@", m.cfg.Authentication.Username, m.cfg.Authentication.Password)
	}
	return fmt.Sprintf("%s://%s%s", scheme, auth, p)
}

// Acquire lends the first endpoint, in insertion order, that is below its
// usage limit and not already lent out. When no candidate exists the pool
// reloads itself from the source file and retries once.
func (m *Manager) Acquire() (string, error) {
	m.mu.Lock()
	if p, ok := m.findAvailable(); ok {
		m.mu.Unlock()
		return p, nil
	}
	m.mu.Unlock()

	logger.Info("proxy pool exhausted, reloading proxy pool")
	p, err := m.Reload()
	if err != nil {
		return "", fmt.Errorf("%w: %v", serrors.ErrProxyExhausted, err)
	}
	return p, nil
}

// findAvailable scans under mu and flips the first candidate to lent.
func (m *Manager) findAvailable() (string, bool) {
	for _, p := range m.order {
		e := m.entries[p]
		if e.useCount < m.cfg.UsageLimit && !e.inUse {
			e.useCount++
			e.inUse = true
			return p, true
		}
	}
	return "", false
}

// Reload rereads the source file, inserts endpoints the pool has not seen
// before (validated like at startup), then acquires from the refreshed
// pool.
func (m *Manager) Reload() (string, error) {
	fromFile, err := m.loadFromFile()
	if err != nil {
		return "", fmt.Errorf("%w: %v", serrors.ErrProxyReload, err)
	}

	m.mu.Lock()
	var fresh []string
	for _, p := range fromFile {
		if _, known := m.entries[p]; !known {
			fresh = append(fresh, p)
		}
	}
	m.mu.Unlock()

	if len(fresh) == 0 {
		logger.Error("no proxies available to refresh exhausted proxy pool")
		return "", serrors.ErrProxyReload
	}
	if m.cfg.Validation {
		fresh = m.validate(fresh)
	}

	m.mu.Lock()
	for _, p := range fresh {
		m.insert(p)
	}
	total := len(m.entries)
	p, ok := m.findAvailable()
	m.mu.Unlock()

	logger.Info("reloaded proxy pool", zap.Int("available", total))
	if !ok {
		return "", serrors.ErrProxyExhausted
	}
	return p, nil
}

// Increment bumps an endpoint's use count. An endpoint already at its
// limit is evicted and the caller receives ErrUsageLimit so it can rotate.
func (m *Manager) Increment(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[p]
	if !ok {
		return nil
	}
	if e.useCount < m.cfg.UsageLimit {
		e.useCount++
		e.inUse = true
		return nil
	}
	m.removeLocked(p)
	return fmt.Errorf("proxy %q: %w", p, serrors.ErrUsageLimit)
}

// Release returns an endpoint to the pool; an exhausted endpoint is
// evicted silently instead.
func (m *Manager) Release(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[p]
	if !ok {
		return
	}
	if e.useCount < m.cfg.UsageLimit {
		e.inUse = false
		return
	}
	m.removeLocked(p)
}

// Remove evicts an endpoint from the pool.
func (m *Manager) Remove(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(p)
}

func (m *Manager) removeLocked(p string) {
	if _, ok := m.entries[p]; !ok {
		return
	}
	delete(m.entries, p)
	for i, o := range m.order {
		if o == p {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	logger.Info("proxy removed from the pool", zap.String("proxy", p))
}

// Len reports the number of endpoints currently in the pool.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Usage reports an endpoint's current state, for tests and diagnostics.
func (m *Manager) Usage(p string) (useCount int, inUse, known bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[p]
	if !ok {
		return 0, false, false
	}
	return e.useCount, e.inUse, true
}
