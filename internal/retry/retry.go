// internal/retry/retry.go
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	Name                 string        // Preset name, used in logs
	MaxAttempts          int           // Maximum number of attempts, including the first
	InitialBackoff       time.Duration // Initial backoff duration
	MaxBackoff           time.Duration // Maximum backoff duration
	Multiplier           float64       // Backoff multiplier
	RetryableStatusCodes []int         // HTTP status codes that should trigger retry

	// ShouldRetry overrides the default transience check when set.
	// Authentication errors are never retried regardless of this hook.
	ShouldRetry func(err error) bool

	// OnRetry is called before sleeping ahead of the next attempt
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// AuthError is implemented by errors that require a new session rather than
// another attempt
type AuthError interface {
	AuthRequired() bool
}

// IsAuthError reports whether any error in the chain is authentication-shaped
func IsAuthError(err error) bool {
	var ae AuthError
	return errors.As(err, &ae) && ae.AuthRequired()
}

// DefaultConfig returns a sensible default retry configuration
func DefaultConfig() Config {
	return Config{
		Name:           "default",
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		RetryableStatusCodes: []int{
			http.StatusTooManyRequests,     // 429
			http.StatusInternalServerError, // 500
			http.StatusBadGateway,          // 502
			http.StatusServiceUnavailable,  // 503
			http.StatusGatewayTimeout,      // 504
		},
	}
}

// Network retries only errors that look like network transience
func Network() Config {
	cfg := DefaultConfig()
	cfg.Name = "network"
	cfg.MaxAttempts = 4
	cfg.InitialBackoff = 500 * time.Millisecond
	cfg.MaxBackoff = 10 * time.Second
	cfg.ShouldRetry = IsTransient
	return cfg
}

// Scraping is the preset used around whole scrape attempts. Every error
// except authentication is retried.
func Scraping() Config {
	cfg := DefaultConfig()
	cfg.Name = "scraping"
	cfg.MaxAttempts = 3
	cfg.InitialBackoff = 2 * time.Second
	cfg.MaxBackoff = 30 * time.Second
	cfg.ShouldRetry = func(err error) bool { return err != nil }
	return cfg
}

// WithRetry executes the given function with retry logic
func WithRetry(ctx context.Context, cfg Config, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := fn()

		if err == nil {
			if attempt > 0 {
				log.Debug().
					Str("policy", cfg.Name).
					Int("attempts", attempt+1).
					Msg("Retry succeeded")
			}
			return nil
		}

		lastErr = err

		if IsAuthError(err) {
			log.Debug().
				Str("policy", cfg.Name).
				Err(err).
				Msg("Authentication error, not retrying")
			return err
		}

		if !shouldRetry(err, cfg) {
			log.Debug().
				Str("policy", cfg.Name).
				Err(err).
				Msg("Error is not retryable")
			return err
		}

		// Don't sleep after the last attempt
		if attempt < cfg.MaxAttempts-1 {
			backoff := calculateBackoff(attempt, cfg)

			log.Debug().
				Str("policy", cfg.Name).
				Int("attempt", attempt+1).
				Int("max_attempts", cfg.MaxAttempts).
				Dur("backoff", backoff).
				Err(err).
				Msg("Retrying after backoff")

			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt+1, err, backoff)
			}

			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry aborted: %w", errors.Join(ctx.Err(), lastErr))
			}
		}
	}

	log.Warn().
		Str("policy", cfg.Name).
		Int("attempts", cfg.MaxAttempts).
		Err(lastErr).
		Msg("Max retry attempts exceeded")

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// calculateBackoff calculates the backoff duration for the given attempt
func calculateBackoff(attempt int, cfg Config) time.Duration {
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	// Exponential backoff: initialBackoff * (multiplier ^ attempt)
	backoff := float64(cfg.InitialBackoff) * math.Pow(multiplier, float64(attempt))

	if cfg.MaxBackoff > 0 && backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}

	return time.Duration(backoff)
}

// shouldRetry determines if an error is retryable
func shouldRetry(err error, cfg Config) bool {
	if err == nil {
		return false
	}
	if cfg.ShouldRetry != nil {
		return cfg.ShouldRetry(err)
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return isRetryableStatus(sc.GetStatusCode(), cfg.RetryableStatusCodes)
	}

	if isTimeoutError(err) {
		return true
	}

	var tempErr interface{ Temporary() bool }
	if errors.As(err, &tempErr) {
		return tempErr.Temporary()
	}

	// Default: retry
	return true
}

func isRetryableStatus(code int, codes []int) bool {
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	return false
}

// transientMarkers are substrings of error messages produced by dropped
// connections, DNS hiccups and navigation failures
var transientMarkers = []string{
	"econnreset",
	"econnrefused",
	"etimedout",
	"eai_again",
	"epipe",
	"connection reset",
	"connection refused",
	"broken pipe",
	"socket hang up",
	"timeout",
	"timed out",
	"temporarily unavailable",
	"net::err_",
	"no such host",
}

// IsTransient reports whether an error looks like a passing network or
// server condition: a 429 or 5xx status, a timeout, or a known network
// error keyword.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.GetStatusCode()
		return code == http.StatusTooManyRequests || code >= 500
	}

	if isTimeoutError(err) {
		return true
	}

	var tempErr interface{ Temporary() bool }
	if errors.As(err, &tempErr) && tempErr.Temporary() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// isTimeoutError checks if an error is a timeout error
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) {
		return timeoutErr.Timeout()
	}

	return false
}

// StatusCoder is an interface for errors that provide an HTTP status code
type StatusCoder interface {
	GetStatusCode() int
}
