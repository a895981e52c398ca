package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AcquireDuration observes how long operations wait for a worker slot.
var AcquireDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "vectord",
		Subsystem: "workers",
		Name:      "acquire_duration_seconds",
		Help:      "Time spent waiting for a worker slot.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"op"},
)
