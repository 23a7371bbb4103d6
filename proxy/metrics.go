package proxy

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	proxyReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "designgen",
			Name:      "proxy_requests_total",
			Help:      "Total proxy requests by method and result",
		},
		[]string{"method", "result"},
	)

	proxyLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "designgen",
			Name:      "proxy_request_duration_seconds",
			Help:      "End-to-end duration of proxied generation requests",
			Buckets:   []float64{0.5, 1, 3, 6, 9, 15, 30, 60},
		},
	)

	jobOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "designgen",
			Name:      "jobs_total",
			Help:      "Generation jobs by outcome (success, failed, timeout, error)",
		},
		[]string{"outcome"},
	)
)

var metricsRegistered = false

// InitMetrics registers collectors. Safe to skip; metrics are no-ops for
// scraping until registered.
func InitMetrics() {
	if metricsRegistered {
		return
	}
	prometheus.MustRegister(proxyReqs, proxyLatency, jobOutcomes)
	metricsRegistered = true
}

// MetricsHandler returns the http.Handler for /metrics.
func MetricsHandler() http.Handler { return promhttp.Handler() }

func observeRequest(method, result string, dur time.Duration) {
	proxyReqs.WithLabelValues(method, result).Inc()
	proxyLatency.Observe(dur.Seconds())
}

func incJobOutcome(outcome string) { jobOutcomes.WithLabelValues(outcome).Inc() }
