// README: Prometheus collectors for ingestion, queue workers, SMS delivery and HTTP traffic.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TelemetrySamplesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "driverbuddy_telemetry_samples_total",
			Help: "Telemetry samples accepted for ingestion",
		},
	)

	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driverbuddy_transitions_total",
			Help: "Detected vehicle state transitions by kind",
		},
		[]string{"transition"},
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driverbuddy_jobs_total",
			Help: "Queue jobs handled by outcome (acked, dropped, retried)",
		},
		[]string{"queue", "outcome"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driverbuddy_job_duration_seconds",
			Help:    "Queue job processing duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue"},
	)

	EnqueueFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driverbuddy_enqueue_failures_total",
			Help: "Jobs that could not be sent to a queue",
		},
		[]string{"queue"},
	)

	SMSSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driverbuddy_sms_sends_total",
			Help: "Outbound SMS send attempts by path and outcome",
		},
		[]string{"path", "outcome"},
	)

	StatusCallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driverbuddy_status_callbacks_total",
			Help: "Provider delivery status callbacks by outcome",
		},
		[]string{"outcome"},
	)

	VirtualAmbiguityTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "driverbuddy_status_virtual_ambiguity_total",
			Help: "Failure callbacks for messages the provider had already accepted",
		},
	)

	InboundMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driverbuddy_inbound_messages_total",
			Help: "Inbound driver replies by association outcome",
		},
		[]string{"outcome"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driverbuddy_notifications_total",
			Help: "Operator notifications by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driverbuddy_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driverbuddy_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(
		TelemetrySamplesTotal,
		TransitionsTotal,
		JobsTotal,
		JobDuration,
		EnqueueFailuresTotal,
		SMSSendsTotal,
		StatusCallbacksTotal,
		VirtualAmbiguityTotal,
		InboundMessagesTotal,
		NotificationsTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

func Outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
