// Package metrics exposes process counters on the default Prometheus
// registry, served at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchpost_checks_total",
		Help: "Probe executions by monitor type and resulting status.",
	}, []string{"type", "status"})

	CheckDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "watchpost_check_duration_seconds",
		Help:    "Probe round trip time by monitor type.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	HeartbeatsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchpost_heartbeats_total",
		Help: "Heartbeats recorded, split by scheduler and remote probes.",
	}, []string{"source"})

	IncidentsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watchpost_incidents_opened_total",
		Help: "Incidents opened by the status engine.",
	})

	IncidentsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watchpost_incidents_resolved_total",
		Help: "Incidents resolved by the status engine.",
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchpost_notifications_total",
		Help: "Notification deliveries by channel type and outcome.",
	}, []string{"channel", "outcome"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchpost_http_requests_total",
		Help: "API requests by method and status class.",
	}, []string{"method", "status"})

	HTTPRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "watchpost_http_request_duration_seconds",
		Help:    "API request latency.",
		Buckets: prometheus.DefBuckets,
	})

	StreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "watchpost_stream_clients",
		Help: "Connected SSE and WebSocket subscribers.",
	})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
