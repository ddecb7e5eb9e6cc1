// Package observability provides observability utilities
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// OperationsTotal tracks remote operations by kind and outcome
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsgate_operations_total",
			Help: "Total number of remote operations executed",
		},
		[]string{"kind", "outcome"}, // outcome: success, failed
	)

	// OperationDuration measures remote operation latency in seconds
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dsgate_operation_duration_seconds",
			Help:    "Remote operation latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"kind"},
	)

	// OperationRetriesTotal counts retry attempts by error class
	OperationRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsgate_operation_retries_total",
			Help: "Total retry attempts by error classification",
		},
		[]string{"class"},
	)

	// BudgetRemaining tracks the current request budget
	BudgetRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dsgate_budget_remaining",
			Help: "Remaining request budget units",
		},
	)

	// BudgetExhaustionsTotal counts forced budget exhaustions
	BudgetExhaustionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dsgate_budget_exhaustions_total",
			Help: "Times the budget was force-exhausted after a throttle signal",
		},
	)

	// CacheEventsTotal counts cache lookups by data class and result
	CacheEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsgate_cache_events_total",
			Help: "Cache lookups by data class and result",
		},
		[]string{"class", "result"}, // result: hit, miss
	)

	// ThrottleMarkersTotal counts throttle markers set
	ThrottleMarkersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dsgate_throttle_markers_total",
			Help: "Throttle markers recorded for recently attempted identities",
		},
	)

	// BulkJobsTotal counts bulk jobs by kind and terminal status
	BulkJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsgate_bulk_jobs_total",
			Help: "Bulk jobs by kind and terminal status",
		},
		[]string{"kind", "status"},
	)

	// BulkItemsTotal counts processed bulk items by kind and outcome
	BulkItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dsgate_bulk_items_total",
			Help: "Bulk items processed by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// BulkBatchSize tracks the current adaptive batch size by job kind
	BulkBatchSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dsgate_bulk_batch_size",
			Help: "Current adaptive batch size",
		},
		[]string{"kind"},
	)

	// BulkJobsActive tracks the number of running bulk jobs
	BulkJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dsgate_bulk_jobs_active",
			Help: "Number of bulk jobs currently running",
		},
	)
)
