package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GatewayRequests counts calls to the birthdays API by operation and outcome.
var GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "birthdayadmin_gateway_requests_total",
	Help: "Requests issued to the birthdays API.",
}, []string{"op", "outcome"})

// GatewayDuration observes round-trip latency of birthdays API calls.
var GatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "birthdayadmin_gateway_request_duration_seconds",
	Help:    "Latency of requests to the birthdays API.",
	Buckets: prometheus.DefBuckets,
}, []string{"op"})

// Notifications counts notifications raised, by severity.
var Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "birthdayadmin_notifications_total",
	Help: "Notifications shown to dashboard users.",
}, []string{"severity"})

// Sessions tracks live dashboard sessions.
var Sessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "birthdayadmin_sessions",
	Help: "Dashboard sessions currently held in memory.",
})

// RateLimited counts requests rejected by the rate limiter.
var RateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Name: "birthdayadmin_rate_limited_total",
	Help: "Requests rejected by the rate limiter.",
})
