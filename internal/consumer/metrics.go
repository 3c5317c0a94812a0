package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "worklens",
		Subsystem: "consumer",
		Name:      "jobs_processed_total",
		Help:      "Number of ingestion jobs successfully handled.",
	}, []string{"topic"})

	rejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "worklens",
		Subsystem: "consumer",
		Name:      "jobs_rejected_total",
		Help:      "Number of jobs acknowledged without processing because their payload was invalid.",
	}, []string{"topic"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "worklens",
		Subsystem: "consumer",
		Name:      "handler_errors_total",
		Help:      "Number of transient handler errors left for redelivery.",
	}, []string{"topic"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "worklens",
		Subsystem: "consumer",
		Name:      "decode_errors_total",
		Help:      "Number of decode failures per topic.",
	}, []string{"topic"})

	sessionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "worklens",
		Subsystem: "consumer",
		Name:      "sessions_extracted_total",
		Help:      "Number of sessions emitted by the extractor.",
	}, []string{"topic"})

	activitiesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "worklens",
		Subsystem: "consumer",
		Name:      "activities_persisted_total",
		Help:      "Number of activities written from extracted sessions.",
	}, []string{"topic"})

	lastJobGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "worklens",
		Subsystem: "consumer",
		Name:      "last_job_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successfully processed job per topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, rejectedCounter, handlerErrorCounter, decodeErrorCounter, sessionsCounter, activitiesCounter, lastJobGauge)
}

func recordProcessed(job Job) {
	processedCounter.WithLabelValues(job.Topic).Inc()
	if !job.Timestamp.IsZero() {
		lastJobGauge.WithLabelValues(job.Topic).Set(float64(job.Timestamp.Unix()))
	}
}

func recordRejected(job Job) {
	rejectedCounter.WithLabelValues(job.Topic).Inc()
}

func recordHandlerError(job Job) {
	handlerErrorCounter.WithLabelValues(job.Topic).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}

func recordSessionsExtracted(topic string, count int) {
	if count > 0 {
		sessionsCounter.WithLabelValues(topic).Add(float64(count))
	}
}

func recordActivitiesPersisted(topic string, count int) {
	if count > 0 {
		activitiesCounter.WithLabelValues(topic).Add(float64(count))
	}
}
