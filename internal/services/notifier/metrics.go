package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Labels: kind, status (sent, failed, skipped)
	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cargodesk",
		Subsystem: "notifier",
		Name:      "notifications_total",
		Help:      "Notifications by kind and outcome",
	}, []string{"kind", "status"})

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cargodesk",
		Subsystem: "notifier",
		Name:      "events_total",
		Help:      "Domain events handled by the notifier",
	}, []string{"kind"})
)
