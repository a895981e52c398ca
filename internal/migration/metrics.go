package migration

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RowsTotal counts migrated rows by result: "migrated" for fresh inserts,
// "skipped" for rows an earlier run already wrote.
var RowsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vectord",
		Subsystem: "migration",
		Name:      "rows_total",
		Help:      "Rows processed by the legacy-to-standard migration, by result.",
	},
	[]string{"result"},
)
