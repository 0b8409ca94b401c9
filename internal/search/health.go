package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"partlogic/searchservice/internal/connectors/common"
	"partlogic/searchservice/internal/domain"
	"partlogic/searchservice/internal/metrics"
)

const (
	sourceFailureThreshold = 3
	sourceBlockBase        = 2 * time.Minute
	sourceBlockMax         = 15 * time.Minute
	sourceRateLimitBlock   = 1 * time.Minute
)

type sourceHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	lastQuery           string
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

func (s *Service) isSourceBlocked(sourceName string, now time.Time) (bool, time.Time, string) {
	if s == nil {
		return false, time.Time{}, ""
	}
	name := strings.ToLower(strings.TrimSpace(sourceName))
	if name == "" {
		return false, time.Time{}, ""
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	state := s.health[name]
	if state == nil {
		return false, time.Time{}, ""
	}
	if state.blockedUntil.IsZero() || now.After(state.blockedUntil) {
		return false, time.Time{}, ""
	}
	return true, state.blockedUntil, state.lastError
}

func (s *Service) recordSourceResult(sourceName, query string, err error, latency time.Duration, now time.Time) {
	if s == nil {
		return
	}
	name := strings.ToLower(strings.TrimSpace(sourceName))
	if name == "" {
		return
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	state := s.health[name]
	if state == nil {
		state = &sourceHealth{}
		s.health[name] = state
	}
	state.totalRequests++
	state.lastQuery = strings.TrimSpace(query)
	if latency > 0 {
		state.lastLatency = latency
		metrics.SourceRequestDuration.WithLabelValues(name).Observe(latency.Seconds())
	}
	state.lastTimeout = isTimeoutLikeError(err)
	if state.lastTimeout {
		state.timeoutCount++
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.blockedUntil = time.Time{}
		state.lastError = ""
		state.lastSuccessAt = now
		metrics.SourceRequestsTotal.WithLabelValues(name, "ok").Inc()
		metrics.SourceAvailable.WithLabelValues(name).Set(1)
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()

	rateLimited := isRateLimitedError(err)
	status := "error"
	switch {
	case rateLimited:
		status = "rate_limited"
	case state.lastTimeout:
		status = "timeout"
	}
	metrics.SourceRequestsTotal.WithLabelValues(name, status).Inc()

	if state.consecutiveFailures >= sourceFailureThreshold {
		state.blockedUntil = now.Add(exponentialBlockDuration(state.consecutiveFailures))
		metrics.SourceAvailable.WithLabelValues(name).Set(0)
	} else if rateLimited {
		// A throttled source gets rested right away instead of waiting
		// for the failure threshold.
		state.blockedUntil = now.Add(sourceRateLimitBlock)
		metrics.SourceAvailable.WithLabelValues(name).Set(0)
	}
}

func isRateLimitedError(err error) bool {
	var status *common.UpstreamStatusError
	return errors.As(err, &status) && status.RateLimited()
}

// exponentialBlockDuration calculates how long to block a source based on
// consecutive failures: baseDuration × 2^(failures - threshold), capped at 15min.
func exponentialBlockDuration(consecutiveFailures int) time.Duration {
	exponent := consecutiveFailures - sourceFailureThreshold
	if exponent < 0 {
		exponent = 0
	}
	d := sourceBlockBase
	for i := 0; i < exponent; i++ {
		d *= 2
		if d > sourceBlockMax {
			return sourceBlockMax
		}
	}
	return d
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}

func (s *Service) SourceDiagnostics() []domain.SourceDiagnostics {
	infos := s.Sources()
	if len(infos) == 0 {
		return nil
	}

	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	items := make([]domain.SourceDiagnostics, 0, len(infos))
	for _, info := range infos {
		name := strings.ToLower(strings.TrimSpace(info.Name))
		state := s.health[name]
		item := domain.SourceDiagnostics{
			Name:       info.Name,
			Label:      info.Label,
			SourceType: info.SourceType,
			Enabled:    info.Enabled,
		}
		if state != nil {
			item.ConsecutiveFailures = state.consecutiveFailures
			if !state.blockedUntil.IsZero() {
				blockedUntil := state.blockedUntil
				item.BlockedUntil = &blockedUntil
			}
			item.LastError = state.lastError
			if !state.lastSuccessAt.IsZero() {
				lastSuccessAt := state.lastSuccessAt
				item.LastSuccessAt = &lastSuccessAt
			}
			if !state.lastFailureAt.IsZero() {
				lastFailureAt := state.lastFailureAt
				item.LastFailureAt = &lastFailureAt
			}
			item.LastLatencyMS = state.lastLatency.Milliseconds()
			item.LastTimeout = state.lastTimeout
			item.LastQuery = state.lastQuery
			item.TotalRequests = state.totalRequests
			item.TotalFailures = state.totalFailures
			item.TimeoutCount = state.timeoutCount
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items
}
