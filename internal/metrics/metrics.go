package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsEvaluatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vigil_requests_evaluated_total",
		Help: "Total number of requests evaluated by the trust engine",
	})
	botsDetectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vigil_bots_detected_total",
		Help: "Total number of requests classified as bot traffic",
	})
	honeypotsServedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vigil_honeypots_served_total",
		Help: "Total number of honeypot responses served",
	})
	rateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vigil_rate_limited_total",
		Help: "Total number of requests rejected by the rate limiter",
	})
	storeFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vigil_counter_store_fallback_total",
		Help: "Total number of rate-limit checks served by the in-memory fallback",
	})
	logFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vigil_security_log_failures_total",
		Help: "Total number of security log writes that failed",
	})
)

// Register registers Prometheus collectors. Call once at startup.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(
		requestsEvaluatedTotal,
		botsDetectedTotal,
		honeypotsServedTotal,
		rateLimitedTotal,
		storeFallbackTotal,
		logFailuresTotal,
	)
}

// IncRequestEvaluated increments the evaluated requests counter.
func IncRequestEvaluated() { requestsEvaluatedTotal.Inc() }

// IncBotDetected increments the bot classification counter.
func IncBotDetected() { botsDetectedTotal.Inc() }

// IncHoneypotServed increments the honeypot responses counter.
func IncHoneypotServed() { honeypotsServedTotal.Inc() }

// IncRateLimited increments the rejected requests counter.
func IncRateLimited() { rateLimitedTotal.Inc() }

// IncStoreFallback increments the fallback activations counter.
func IncStoreFallback() { storeFallbackTotal.Inc() }

// IncLogFailure increments the failed audit writes counter.
func IncLogFailure() { logFailuresTotal.Inc() }
