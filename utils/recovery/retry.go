// Package recovery provides the retry helper used around flaky external
// operations: driver session creation and container stops.
package recovery

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"scraper/logger"
)

// Strategy selects how the delay between attempts grows.
type Strategy string

const (
	FixedDelay         Strategy = "fixed"
	ExponentialBackoff Strategy = "exponential"
	LinearBackoff      Strategy = "linear"
)

// Config configures retry behavior.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Strategy     Strategy
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Strategy:     ExponentialBackoff,
	}
}

// Retrier runs an operation until it succeeds or attempts run out.
type Retrier struct {
	cfg Config
}

// NewRetrier creates a retrier with the given config, filling in defaults
// for zero values.
func NewRetrier(cfg Config) *Retrier {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	return &Retrier{cfg: cfg}
}

// Do executes fn, retrying on error with the configured delay schedule.
// The context cancels the wait between attempts.
func (r *Retrier) Do(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}
		delay := r.delay(attempt)
		logger.Warn("operation failed, retrying",
			zap.Error(lastErr),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.cfg.MaxAttempts),
			zap.Duration("delay", delay))
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("operation failed after %d attempts: %w", r.cfg.MaxAttempts, lastErr)
}

// DoWithResult is Do for operations that produce a value.
func DoWithResult[T any](ctx context.Context, r *Retrier, fn func() (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func() error {
		var ferr error
		out, ferr = fn()
		return ferr
	})
	return out, err
}

// delay computes the wait before the next attempt.
func (r *Retrier) delay(attempt int) time.Duration {
	var d time.Duration
	switch r.cfg.Strategy {
	case ExponentialBackoff:
		d = time.Duration(float64(r.cfg.InitialDelay) * math.Pow(2, float64(attempt-1)))
	case LinearBackoff:
		d = r.cfg.InitialDelay * time.Duration(attempt)
	default:
		d = r.cfg.InitialDelay
	}
	if d > r.cfg.MaxDelay {
		d = r.cfg.MaxDelay
	}
	return d
}
