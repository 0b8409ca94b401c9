package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "partsearch",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "partsearch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	SourceRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "partsearch",
		Name:      "source_requests_total",
		Help:      "Total requests to part sources by source name and result status.",
	}, []string{"source", "status"})

	SourceRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "partsearch",
		Name:      "source_request_duration_seconds",
		Help:      "Part source request duration in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"source"})

	SourceAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "partsearch",
		Name:      "source_available",
		Help:      "Whether a source is available (1) or blocked by circuit breaker (0).",
	}, []string{"source"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "partsearch",
		Name:      "cache_hits_total",
		Help:      "Total number of overall search cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "partsearch",
		Name:      "cache_misses_total",
		Help:      "Total number of overall search cache misses.",
	})

	SourceCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "partsearch",
		Name:      "source_cache_hits_total",
		Help:      "Total number of per-source cache hits.",
	})

	SourceCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "partsearch",
		Name:      "source_cache_misses_total",
		Help:      "Total number of per-source cache misses.",
	})

	AliasesLinkedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "partsearch",
		Name:      "vehicle_aliases_linked_total",
		Help:      "Vehicle aliases linked to canonical vehicles, by resolution path.",
	}, []string{"path"})

	InterchangeSearchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "partsearch",
		Name:      "interchange_searches_total",
		Help:      "Secondary searches triggered by interchange expansion.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SourceRequestsTotal,
		SourceRequestDuration,
		SourceAvailable,
		CacheHitsTotal,
		CacheMissesTotal,
		SourceCacheHitsTotal,
		SourceCacheMissesTotal,
		AliasesLinkedTotal,
		InterchangeSearchesTotal,
	)
}
