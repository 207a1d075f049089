package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "droughtmap_requests_total",
			Help: "Total API requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "droughtmap_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "droughtmap_cache_lookups_total",
			Help: "Result cache lookups by tier and outcome",
		},
		[]string{"tier", "outcome"},
	)

	ImportRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "droughtmap_import_rows_total",
			Help: "Total time-series rows loaded by the import pipeline",
		},
		[]string{"dataset"},
	)

	TrendComputationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "droughtmap_trend_computations_total",
			Help: "Full-history trend computations by trigger",
		},
		[]string{"trigger"},
	)
)
