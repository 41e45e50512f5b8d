package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Labels: source (non_admin_owner, mark_inference, unresolved, empty), mode (apply, plan)
	reconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cargodesk",
		Subsystem: "reconcile",
		Name:      "groups_total",
		Help:      "Tracking groups reconciled, by how the owner was resolved",
	}, []string{"source", "mode"})

	reconcileRowsChanged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cargodesk",
		Subsystem: "reconcile",
		Name:      "rows_changed_total",
		Help:      "Tracking rows whose owner or mark changed",
	})

	reconcileErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cargodesk",
		Subsystem: "reconcile",
		Name:      "errors_total",
		Help:      "Reconciliations that failed with a store error",
	})

	reconcileLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cargodesk",
		Subsystem: "reconcile",
		Name:      "latency_seconds",
		Help:      "Time to lock, resolve and apply one tracking group",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})
)
