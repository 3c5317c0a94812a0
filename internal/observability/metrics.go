package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "worklens",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity batch persisted to Postgres.",
	})
	assignmentCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "worklens",
		Subsystem: "worksheets",
		Name:      "assignments_total",
		Help:      "Worksheet assignment outcomes.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(activityPersistGauge, assignmentCounter)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordAssignment counts one assignment call by outcome ("ok", "conflict",
// "rejected", "error").
func RecordAssignment(outcome string) {
	assignmentCounter.WithLabelValues(outcome).Inc()
}
