// Package metrics exposes the Prometheus instrumentation shared by the
// orchestration components. Collectors register on the default registry and
// are served by the web layer at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_cache_hits_total",
		Help: "Number of cache lookups served from the smart cache.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_cache_misses_total",
		Help: "Number of cache lookups that required a rebuild.",
	})

	CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_cache_evictions_total",
		Help: "Number of cache entries evicted, by reason.",
	}, []string{"reason"})

	CacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dashboard_cache_invalidations_total",
		Help: "Number of cache entries dropped by dependency invalidation.",
	})

	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_breaker_transitions_total",
		Help: "Circuit breaker state transitions, by platform and new state.",
	}, []string{"platform", "state"})

	BreakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_breaker_rejections_total",
		Help: "Calls rejected while a circuit was open, by platform.",
	}, []string{"platform"})

	SchedulerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_scheduler_queue_depth",
		Help: "Number of scheduled requests waiting for dispatch.",
	})

	SchedulerInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dashboard_scheduler_in_flight",
		Help: "Number of scheduled requests currently executing.",
	})

	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_token_refreshes_total",
		Help: "OAuth token refreshes, by platform and outcome.",
	}, []string{"platform", "outcome"})

	PlatformFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dashboard_platform_fetch_duration_seconds",
		Help:    "Duration of upstream platform fetches.",
		Buckets: prometheus.DefBuckets,
	}, []string{"platform"})
)
