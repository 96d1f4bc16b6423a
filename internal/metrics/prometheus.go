// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the ratings service.
var (
	// Counters.
	RatingActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rating_actions_total",
			Help: "Total number of rating actions by outcome",
		},
		[]string{"action", "status"},
	)

	RatingsThrottledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratings_throttled_total",
			Help: "Total number of rating requests rejected by a throttle scope",
		},
		[]string{"scope"},
	)

	ScreeningOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rating_screening_outcomes_total",
			Help: "Total number of screening hits (denied words, restrictions, links)",
		},
		[]string{"check", "outcome"},
	)

	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rating_tasks_total",
			Help: "Total number of background recompute tasks run",
		},
		[]string{"task", "status"},
	)

	EmailsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rating_emails_total",
			Help: "Total number of notification emails",
		},
		[]string{"kind", "status"},
	)

	SchedulerJobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Total number of scheduler job runs",
		},
		[]string{"job", "status"},
	)

	// Gauges.
	SchedulerLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_last_run_timestamp",
			Help: "Timestamp of last scheduler run",
		},
		[]string{"job"},
	)

	TaskQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rating_task_queue_depth",
			Help: "Tasks waiting in the in-process worker queue",
		},
	)

	// Histograms.
	TaskDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rating_task_duration_seconds",
			Help:    "Duration of background recompute tasks",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordRatingAction increments the rating action counter.
func RecordRatingAction(action, status string) {
	RatingActionsTotal.WithLabelValues(action, status).Inc()
}

// RecordThrottled increments the throttled counter.
func RecordThrottled(scope string) {
	RatingsThrottledTotal.WithLabelValues(scope).Inc()
}

// RecordScreening increments the screening outcome counter.
func RecordScreening(check, outcome string) {
	ScreeningOutcomesTotal.WithLabelValues(check, outcome).Inc()
}

// RecordTask counts a task run and observes its duration.
func RecordTask(task, status string, duration time.Duration) {
	TasksTotal.WithLabelValues(task, status).Inc()
	TaskDurationSeconds.WithLabelValues(task).Observe(duration.Seconds())
}

// SetTaskQueueDepth sets the worker queue depth gauge.
func SetTaskQueueDepth(depth int) {
	TaskQueueDepth.Set(float64(depth))
}

// RecordEmail increments the email counter.
func RecordEmail(kind, status string) {
	EmailsSentTotal.WithLabelValues(kind, status).Inc()
}

// RecordSchedulerJobRun increments the scheduler job run counter and stamps the last run.
func RecordSchedulerJobRun(job, status string) {
	SchedulerJobRunsTotal.WithLabelValues(job, status).Inc()
	SchedulerLastRun.WithLabelValues(job).SetToCurrentTime()
}

// ObserveHTTPRequest observes the duration of an HTTP request.
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequestDurationSeconds.WithLabelValues(method, route, status).Observe(duration.Seconds())
}
