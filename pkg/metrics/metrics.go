package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records login attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authd_auth_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"},
	)

	// VerificationChallenges counts OTP challenges by purpose (register|email|reset)
	// and stage (issued|verified|rejected).
	VerificationChallenges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authd_verification_challenges_total",
			Help: "Total number of OTP verification challenges",
		},
		[]string{"purpose", "stage"},
	)

	// NotificationFailures counts OTP emails that could not be delivered.
	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authd_notification_failures_total",
			Help: "Total number of failed OTP notifications",
		},
		[]string{"purpose"},
	)

	// LeadsSwept counts expired registration leads removed by maintenance.
	LeadsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authd_leads_swept_total",
			Help: "Total number of expired registration leads removed",
		},
	)

	// APILatency measures HTTP request latencies by route template and status class (2xx, 4xx, ...).
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authd_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RequestsInFlight tracks requests currently being served.
	RequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authd_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)
)
