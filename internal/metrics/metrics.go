package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests"},
		[]string{"route", "method", "status"},
	)
	ReqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request duration seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "http_in_flight_requests", Help: "In-flight HTTP requests"},
	)
	Logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auth_logins_total", Help: "Completed login attempts by provider and result"},
		[]string{"provider", "result"},
	)
	TokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auth_tokens_issued_total", Help: "Signed tokens by type"},
		[]string{"type"},
	)
	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "auth_rate_limited_total", Help: "Requests rejected by the rate limiter"},
		[]string{"route"},
	)
)

// MustRegister registers the collectors with the default registry. Counters
// are usable before registration, so tests never call it.
func MustRegister() {
	prometheus.MustRegister(RequestsTotal, ReqDuration, InFlight, Logins, TokensIssued, RateLimited)
}
