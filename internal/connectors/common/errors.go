package common

import (
	"fmt"
	"net/http"
)

// UpstreamStatusError reports a non-2xx reply from a source endpoint.
// Keeping the status code lets the retry and circuit-breaker layers
// tell a throttled source from a broken one.
type UpstreamStatusError struct {
	Source     string
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned HTTP %d", e.Source, e.StatusCode)
	}
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Source, e.StatusCode, e.Body)
}

// Retryable reports whether the status suggests a temporary upstream
// condition. 429 and the gateway 5xx family recover on their own; a
// plain 500 or any 4xx means the request itself will keep failing.
func (e *UpstreamStatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// RateLimited reports whether the source asked us to back off.
func (e *UpstreamStatusError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}
