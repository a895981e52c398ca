// Package vectorstore provides Prometheus metrics for store operations.
package vectorstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts store operations.
	// Labels: op (add, search, delete, stats), result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vectord",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"op", "result"},
	)

	// OperationDuration tracks operation latency.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vectord",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// RetryAttemptsTotal counts classified failures seen by the retry
	// wrapper. Labels: op, kind (transient, permanent)
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vectord",
			Subsystem: "store",
			Name:      "retry_attempts_total",
			Help:      "Total number of failures classified by the retry wrapper",
		},
		[]string{"op", "kind"},
	)
)
