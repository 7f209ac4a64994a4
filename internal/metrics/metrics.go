// Package metrics exposes Prometheus collectors for the engine proxy.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "route"},
	)

	searchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_proxy_searches_total",
			Help: "Total number of searches, labeled by resolution outcome.",
		},
		[]string{"outcome"},
	)

	catalogMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_proxy_catalog_mutations_total",
			Help: "Total number of committed catalog writes, labeled by operation.",
		},
		[]string{"op"},
	)

	invariantRepairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_proxy_default_repairs_total",
			Help: "Default-engine repair runs, labeled by result (noop, promoted, failed).",
		},
		[]string{"result"},
	)

	signInsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_proxy_sign_ins_total",
			Help: "Admin sign-in attempts, labeled by result.",
		},
		[]string{"result"},
	)

	rateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_proxy_rate_limited_total",
			Help: "Requests rejected by a client rate limiter, labeled by limiter.",
		},
		[]string{"limiter"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveSearch counts one search by outcome.
func ObserveSearch(outcome string) {
	searchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveCatalogMutation counts one committed catalog write.
func ObserveCatalogMutation(op string) {
	catalogMutationsTotal.WithLabelValues(op).Inc()
}

// ObserveRepair counts one default-engine repair run.
func ObserveRepair(result string) {
	invariantRepairsTotal.WithLabelValues(result).Inc()
}

// ObserveSignIn counts one sign-in attempt.
func ObserveSignIn(result string) {
	signInsTotal.WithLabelValues(result).Inc()
}

// ObserveRateLimited counts one request rejected by the named limiter.
func ObserveRateLimited(limiter string) {
	rateLimitedTotal.WithLabelValues(limiter).Inc()
}
