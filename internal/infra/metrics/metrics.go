package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PlanningTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifier_planning_ticks_total",
		Help: "Planning passes over the schedule store",
	})
	PlanningErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifier_planning_errors_total",
		Help: "Planning passes abandoned because the schedule store was unavailable",
	})
	FiringsDue = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_firings_due_total",
		Help: "Schedules found due by a planning pass",
	}, []string{"owner_kind"})
	LeasesContended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notifier_leases_contended_total",
		Help: "Due firings skipped because another instance holds the lease",
	})
	ExecutionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notifier_executions_in_flight",
		Help: "Firings currently being executed",
	})
	ExecutionsQueued = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notifier_executions_queued",
		Help: "Leased firings waiting for a free worker",
	})
	ExecutionSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notifier_execution_seconds",
		Help:    "Duration of one firing execution",
		Buckets: prometheus.DefBuckets,
	}, []string{"owner_kind", "status"})
	NotificationsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_notifications_sent_total",
		Help: "Notifications handed to the mail transport successfully",
	}, []string{"category"})
	NotificationsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_notifications_skipped_total",
		Help: "Notifications not sent, by reason",
	}, []string{"reason"})
	NotificationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_notification_failures_total",
		Help: "Notifications that failed, by stage",
	}, []string{"stage"})
	ScheduleChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_schedule_changes_total",
		Help: "Schedule store mutations applied by the reconciler",
	}, []string{"operation"})
	StoreRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notifier_store_request_duration_seconds",
		Help:    "Latency of backing store requests",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"component", "operation", "status"})
)

// MustRegister registers every collector of this package.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		PlanningTicks,
		PlanningErrors,
		FiringsDue,
		LeasesContended,
		ExecutionsInFlight,
		ExecutionsQueued,
		ExecutionSeconds,
		NotificationsSent,
		NotificationsSkipped,
		NotificationFailures,
		ScheduleChanges,
		StoreRequestDuration,
	)
}

// ObserveStoreRequest records latency and status of a store call.
func ObserveStoreRequest(component, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StoreRequestDuration.WithLabelValues(component, operation, status).Observe(time.Since(start).Seconds())
}

// ObserveExecution records the duration of one firing.
func ObserveExecution(ownerKind string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ExecutionSeconds.WithLabelValues(ownerKind, status).Observe(time.Since(start).Seconds())
}
