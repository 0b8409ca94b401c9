package search

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"partlogic/searchservice/internal/connectors/common"
)

// RetryConfig controls the backoff between repeated source queries.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns sensible defaults: 3 attempts, 500ms→1s→2s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryWithBackoff runs one source query up to cfg.MaxAttempts times
// with exponential backoff and jitter. Only transient failures are
// retried; a definitive answer from the source fails the attempt
// immediately so the rest of the fan-out is not held up by hopeless
// work. Context cancellation between attempts is respected.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransientError(lastErr) {
			return lastErr
		}
		// No sleep after the last attempt.
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(jitteredDelay(delay, cfg.MaxDelay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}

// jitteredDelay spreads a delay over [0.75, 1.25) of its base so
// parallel retries against the same source do not land together.
func jitteredDelay(base, max time.Duration) time.Duration {
	factor := 0.75 + rand.Float64()*0.5
	jittered := time.Duration(float64(base) * factor)
	if max > 0 && jittered > max {
		jittered = max
	}
	return jittered
}

// isTransientError classifies a source failure. A reply that carries
// its HTTP status decides by status class: 429 and gateway 5xx are
// temporary, anything else is the source's final answer. Failures
// without a status fall back to network heuristics: timeouts, resets,
// truncated bodies and TLS handshakes are worth another try.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	var status *common.UpstreamStatusError
	if errors.As(err, &status) {
		return status.Retryable()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "tls") ||
		strings.Contains(lower, "eof")
}
