package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// RetryConfig configures retry behavior for upstream completion calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns a sensible backoff policy for callers opting
// into retries via WithRetry.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryableError reports whether err is transient and should trigger a retry.
// Rate limiting and upstream server errors are retryable; everything else,
// including context cancellation, fails immediately.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// withRetry invokes fn with exponential backoff until it succeeds, returns a
// non-retryable error, or exhausts the configured attempts. The zero config
// means a single attempt with the error passed through untouched.
func withRetry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	if cfg.MaxRetries <= 0 {
		return fn()
	}

	var zero T
	var lastErr error
	delay := cfg.InitialInterval

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !retryableError(err) {
			return zero, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("chat: canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, cfg.MaxInterval)
		}
	}

	return zero, fmt.Errorf("chat: giving up after %d retries: %w", cfg.MaxRetries, lastErr)
}
