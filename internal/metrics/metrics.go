// Package metrics holds the Prometheus collectors for the workflow engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Workflow groups the counters the services increment.
type Workflow struct {
	DiagnosticsCreated   prometheus.Counter
	DegradedDiagnostics  *prometheus.CounterVec
	AppointmentChanges   *prometheus.CounterVec
	NotificationsSent    prometheus.Counter
	NotificationFailures prometheus.Counter
	UpstreamFailures     *prometheus.CounterVec
	EventPublishFailures prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Workflow {
	w := &Workflow{
		DiagnosticsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "curanova",
			Name:      "diagnostics_created_total",
			Help:      "Diagnostics created, including degraded ones.",
		}),
		DegradedDiagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curanova",
			Name:      "diagnostics_degraded_total",
			Help:      "Diagnostics persisted without all of their child rows.",
		}, []string{"missing"}),
		AppointmentChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curanova",
			Name:      "appointment_transitions_total",
			Help:      "Appointment status transitions by target status.",
		}, []string{"status"}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "curanova",
			Name:      "notifications_sent_total",
			Help:      "Appointment confirmation emails handed to the mail provider.",
		}),
		NotificationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "curanova",
			Name:      "notification_failures_total",
			Help:      "Appointment confirmation emails that could not be sent after the status change committed.",
		}),
		UpstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "curanova",
			Name:      "upstream_failures_total",
			Help:      "Failed calls to external AI/ML services.",
		}, []string{"service"}),
		EventPublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "curanova",
			Name:      "event_publish_failures_total",
			Help:      "Workflow events that could not be published.",
		}),
	}
	reg.MustRegister(
		w.DiagnosticsCreated,
		w.DegradedDiagnostics,
		w.AppointmentChanges,
		w.NotificationsSent,
		w.NotificationFailures,
		w.UpstreamFailures,
		w.EventPublishFailures,
	)
	return w
}

// NewUnregistered is used by tests and tools that do not expose /metrics.
func NewUnregistered() *Workflow {
	return New(prometheus.NewRegistry())
}
