// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marksheet_cache_events_total",
			Help: "Cache hits, refetches, fallbacks and invalidations",
		},
		[]string{"event"},
	)

	BatchOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marksheet_batch_ops_total",
			Help: "Batch operations by outcome",
		},
		[]string{"outcome"},
	)

	BatchChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marksheet_batch_chunks_total",
			Help: "Committed and failed batch chunks",
		},
		[]string{"outcome"},
	)

	ImportRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marksheet_import_rows_total",
			Help: "Imported rows by outcome",
		},
		[]string{"outcome"},
	)

	MarkStatuses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marksheet_mark_status_total",
			Help: "Evaluated subject marks by resulting status",
		},
		[]string{"subject", "status"},
	)

	StudentAverage = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marksheet_student_average",
			Help:    "Distribution of student averages at persistence time",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"class"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)
