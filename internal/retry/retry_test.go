package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authErr struct{}

func (authErr) Error() string      { return "login required" }
func (authErr) AuthRequired() bool { return true }

type statusErr int

func (e statusErr) Error() string      { return fmt.Sprintf("HTTP %d: %s", int(e), http.StatusText(int(e))) }
func (e statusErr) GetStatusCode() int { return int(e) }

func fastConfig(attempts int) Config {
	cfg := DefaultConfig()
	cfg.MaxAttempts = attempts
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	return cfg
}

func TestWithRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("ECONNRESET")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	sentinel := errors.New("still broken")
	err := WithRetry(context.Background(), fastConfig(3), func() error {
		calls++
		return sentinel
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsOnAuthError(t *testing.T) {
	calls := 0
	cfg := fastConfig(5)
	cfg.ShouldRetry = func(error) bool { return true }

	err := WithRetry(context.Background(), cfg, func() error {
		calls++
		return fmt.Errorf("scrape: %w", authErr{})
	})

	require.Error(t, err)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, 1, calls)
}

func TestWithRetryHonorsShouldRetry(t *testing.T) {
	calls := 0
	cfg := fastConfig(4)
	cfg.ShouldRetry = func(error) bool { return false }

	_ = WithRetry(context.Background(), cfg, func() error {
		calls++
		return errors.New("permanent")
	})

	assert.Equal(t, 1, calls)
}

func TestWithRetryCallsOnRetry(t *testing.T) {
	var seen []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		seen = append(seen, attempt)
		assert.Greater(t, backoff, time.Duration(0))
	}

	_ = WithRetry(context.Background(), cfg, func() error { return errors.New("x") })

	assert.Equal(t, []int{1, 2}, seen)
}

func TestWithRetryContextCancelled(t *testing.T) {
	cfg := fastConfig(3)
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithRetry(ctx, cfg, func() error {
		calls++
		cancel()
		return errors.New("boom")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestCalculateBackoff(t *testing.T) {
	cfg := Config{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second, Multiplier: 2}

	assert.Equal(t, time.Second, calculateBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoff(1, cfg))
	assert.Equal(t, 4*time.Second, calculateBackoff(2, cfg))
	assert.Equal(t, 5*time.Second, calculateBackoff(3, cfg))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{statusErr(http.StatusTooManyRequests), true},
		{statusErr(http.StatusBadGateway), true},
		{statusErr(http.StatusNotFound), false},
		{context.DeadlineExceeded, true},
		{errors.New("page load error net::ERR_CONNECTION_CLOSED"), true},
		{errors.New("read tcp: ECONNRESET"), true},
		{errors.New("selector syntax error"), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTransient(tt.err), "%v", tt.err)
	}
}

func TestNetworkPresetSkipsPermanentErrors(t *testing.T) {
	cfg := Network()
	cfg.InitialBackoff = time.Millisecond
	calls := 0
	_ = WithRetry(context.Background(), cfg, func() error {
		calls++
		return statusErr(http.StatusForbidden)
	})
	assert.Equal(t, 1, calls)
}
