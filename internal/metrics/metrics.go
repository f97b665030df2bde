package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSuccess  = "success"
	ResultInvalid  = "invalid"
	ResultConflict = "conflict"
	ResultError    = "error"
)

var (
	SignupTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signup_total",
			Help: "Signup attempts by outcome",
		},
		[]string{"result"},
	)

	EmailVerificationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_verification_total",
			Help: "Email verification attempts by outcome",
		},
		[]string{"result"},
	)

	EmailSendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_send_total",
			Help: "Transactional emails handed to the notifier",
		},
		[]string{"template", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route", "status"},
	)
)

func IncSignup(result string) {
	SignupTotal.WithLabelValues(result).Inc()
}

func IncEmailVerification(result string) {
	EmailVerificationTotal.WithLabelValues(result).Inc()
}

func IncEmailSend(template string, err error) {
	status := ResultSuccess
	if err != nil {
		status = ResultError
	}
	EmailSendTotal.WithLabelValues(template, status).Inc()
}

func RecordHTTPRequestDuration(method, route, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
