// Package resilience provides fault tolerance patterns
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Retry configuration constants
const (
	DefaultMaxRetries = 3
	DefaultDelay      = time.Second
)

// RetryConfig holds retry settings. Delay is applied as-is between
// attempts, with no backoff growth.
type RetryConfig struct {
	MaxRetries  int
	Delay       time.Duration
	IsRetryable func(error) bool
}

// DefaultRetryConfig returns standard retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  DefaultMaxRetries,
		Delay:       DefaultDelay,
		IsRetryable: IsRetryableHTTP,
	}
}

// StatusError is an HTTP response with a non-success status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// IsRetryableHTTP reports whether an error is worth retrying. Transport
// errors always are; status errors only for server faults and throttling.
func IsRetryableHTTP(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*StatusError); ok {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}

// Retry executes fn with a fixed delay between attempts. Returns the
// last error if all attempts fail.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}

		if !cfg.IsRetryable(lastErr) || attempt == cfg.MaxRetries {
			return lastErr
		}

		slog.Debug("retrying after error", "attempt", attempt+1, "max", cfg.MaxRetries, "delay", cfg.Delay, "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Delay):
		}
	}
	return lastErr
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Delay <= 0 {
		c.Delay = DefaultDelay
	}
	if c.IsRetryable == nil {
		c.IsRetryable = IsRetryableHTTP
	}
	return c
}
