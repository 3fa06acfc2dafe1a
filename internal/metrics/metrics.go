// Package metrics exposes Prometheus instrumentation for the monitoring core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Alert lifecycle metrics
	AlertsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "defacewatch_alerts_generated_total",
			Help: "Total number of alerts generated by severity and type",
		},
		[]string{"severity", "type"},
	)

	AlertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "defacewatch_alerts_suppressed_total",
			Help: "Total number of alerts suppressed by reason",
		},
		[]string{"reason"}, // suppression_window, not_triggered
	)

	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "defacewatch_notifications_sent_total",
			Help: "Total number of notifications delivered by template",
		},
		[]string{"template"},
	)

	NotificationsThrottledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "defacewatch_notifications_throttled_total",
			Help: "Total number of notifications skipped by throttle window",
		},
		[]string{"template"},
	)

	// Pipeline metrics
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "defacewatch_classifications_total",
			Help: "Total number of pipeline classifications by final label",
		},
		[]string{"label"},
	)

	PipelineDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "defacewatch_pipeline_duration_seconds",
			Help:    "Duration of full pipeline classifications",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// Worker pool metrics
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "defacewatch_jobs_processed_total",
			Help: "Total jobs processed by pool and outcome",
		},
		[]string{"pool", "outcome"}, // pool: scraping|classification, outcome: succeeded|failed
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "defacewatch_queue_depth",
			Help: "Current number of pending jobs per queue",
		},
		[]string{"pool"},
	)

	QueueRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "defacewatch_queue_rejected_total",
			Help: "Total jobs rejected because the queue was full",
		},
		[]string{"pool"},
	)

	// Feedback metrics
	FeedbackSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "defacewatch_feedback_submitted_total",
			Help: "Total feedback records by type and source",
		},
		[]string{"type", "source"},
	)

	RetrainingSignalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "defacewatch_retraining_signals_total",
			Help: "Total number of retraining signals raised by feedback volume",
		},
	)
)
