// Package metrics exposes Prometheus collectors for the review portal.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	backendReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reviewer",
			Name:      "backend_requests_total",
			Help:      "Requests to the extraction server by endpoint and result",
		},
		[]string{"endpoint", "result"},
	)

	backendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "reviewer",
			Name:      "backend_request_duration_seconds",
			Help:      "Duration of extraction server requests by endpoint",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	reviewActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reviewer",
			Name:      "review_actions_total",
			Help:      "Review actions (upload, save, finalize) by outcome",
		},
		[]string{"action", "outcome"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "reviewer",
			Name:      "active_sessions",
			Help:      "Review sessions currently held in memory",
		},
	)

	registerOnce sync.Once
)

// Init registers collectors with the default registry. Safe to call twice.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(backendReqs, backendLatency, reviewActions, activeSessions)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

// ObserveBackend records one round-trip to the extraction server.
func ObserveBackend(endpoint, result string, dur time.Duration) {
	backendReqs.WithLabelValues(endpoint, result).Inc()
	backendLatency.WithLabelValues(endpoint).Observe(dur.Seconds())
}

// IncAction counts a review action outcome ("ok", "busy", or an error kind).
func IncAction(action, outcome string) { reviewActions.WithLabelValues(action, outcome).Inc() }

// SetActiveSessions updates the session gauge.
func SetActiveSessions(n int) { activeSessions.Set(float64(n)) }
