package recovery

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scraper/logger"
)

func TestMain(m *testing.M) {
	logger.InitConsole("error")
	os.Exit(m.Run())
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	r := NewRetrier(Config{MaxAttempts: 3, InitialDelay: time.Millisecond})
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	r := NewRetrier(Config{MaxAttempts: 5, InitialDelay: time.Millisecond, Strategy: FixedDelay})
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	r := NewRetrier(Config{MaxAttempts: 3, InitialDelay: time.Millisecond, Strategy: FixedDelay})
	sentinel := errors.New("still broken")
	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		return sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnContextCancel(t *testing.T) {
	r := NewRetrier(Config{MaxAttempts: 10, InitialDelay: time.Hour, Strategy: FixedDelay})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Do(ctx, func() error { return errors.New("fail") })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult(t *testing.T) {
	r := NewRetrier(Config{MaxAttempts: 2, InitialDelay: time.Millisecond})
	calls := 0
	got, err := DoWithResult(context.Background(), r, func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestDelaySchedules(t *testing.T) {
	exp := NewRetrier(Config{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Strategy: ExponentialBackoff, MaxAttempts: 5})
	assert.Equal(t, time.Second, exp.delay(1))
	assert.Equal(t, 2*time.Second, exp.delay(2))
	assert.Equal(t, 4*time.Second, exp.delay(3))
	assert.Equal(t, 10*time.Second, exp.delay(10), "capped at max delay")

	lin := NewRetrier(Config{InitialDelay: time.Second, MaxDelay: time.Minute, Strategy: LinearBackoff, MaxAttempts: 5})
	assert.Equal(t, 3*time.Second, lin.delay(3))
}
