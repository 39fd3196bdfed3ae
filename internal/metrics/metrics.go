// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliation
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netmirror_sync_runs_total",
			Help: "Reconciliation runs by result (completed, failed, rejected)",
		},
		[]string{"result"},
	)

	SyncPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netmirror_sync_phase_duration_seconds",
			Help:    "Time spent in each reconciliation phase",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	SyncEntitiesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netmirror_sync_entities_written_total",
			Help: "Entities written by reconciliation, by kind",
		},
		[]string{"kind"},
	)

	SyncCablesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netmirror_sync_cables_skipped_total",
			Help: "Upstream cables skipped for missing terminations",
		},
	)

	// Upstream
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netmirror_upstream_request_duration_seconds",
			Help:    "Upstream inventory API request latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status_code"},
	)

	// Event bus
	BusHandlerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netmirror_bus_handler_failures_total",
			Help: "Event handlers that returned an error or panicked",
		},
		[]string{"event"},
	)

	// Live fan-out
	LiveChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netmirror_live_channels",
			Help: "Currently open live notification channels",
		},
	)

	LiveSendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netmirror_live_send_failures_total",
			Help: "Failed sends to live channels, by broadcast mode",
		},
		[]string{"mode"},
	)

	// HTTP API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netmirror_api_requests_total",
			Help: "API requests by method, route and status",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netmirror_api_request_duration_seconds",
			Help:    "API request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10},
		},
		[]string{"method", "route"},
	)
)

// RecordPhase observes the duration of a reconciliation phase
func RecordPhase(phase string, start time.Time) {
	SyncPhaseDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}

// RecordUpstream observes one upstream request. A zero status means a transport error.
func RecordUpstream(endpoint string, status int, start time.Time) {
	UpstreamRequestDuration.WithLabelValues(endpoint, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
}

// RecordAPIRequest observes one HTTP API request
func RecordAPIRequest(method, route string, status int, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
