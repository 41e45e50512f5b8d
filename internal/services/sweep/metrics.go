package sweep

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Labels: outcome (changed, unchanged, unresolved, failed)
	normalizeGroups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cargodesk",
		Subsystem: "sweep",
		Name:      "normalize_groups_total",
		Help:      "Tracking groups visited by the full normalize sweep",
	}, []string{"outcome"})

	// Labels: outcome (matched, no_mark, error)
	unassignedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cargodesk",
		Subsystem: "sweep",
		Name:      "unassigned_rows_total",
		Help:      "Ownerless tracking rows visited by the unassigned sweep",
	}, []string{"outcome"})

	sweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cargodesk",
		Subsystem: "sweep",
		Name:      "duration_seconds",
		Help:      "Wall time of one sweep run",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"sweep"})
)
