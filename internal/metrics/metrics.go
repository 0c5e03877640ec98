// Package metrics exposes Prometheus instrumentation for the harvest engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace is the namespace for all harvestd metrics.
	Namespace = "harvestd"
)

// Metrics holds the engine collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	OutboundCallsTotal *prometheus.CounterVec
	RateLimitWait      prometheus.Histogram
	GroupRunsTotal     *prometheus.CounterVec
	GroupRunDuration   *prometheus.HistogramVec
	TruncationsTotal   *prometheus.CounterVec
	GroupsRunning      prometheus.Gauge
	GroupsQueued       prometheus.Gauge
	ItemsIngestedTotal *prometheus.CounterVec
}

// New creates a Metrics bound to its own registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.OutboundCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "client",
			Name:      "calls_total",
			Help:      "Outbound call attempts by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	m.RateLimitWait = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "client",
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting for a rate limiter slot",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)

	m.GroupRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "scheduler",
			Name:      "group_runs_total",
			Help:      "Completed group runs by status",
		},
		[]string{"status"},
	)

	m.GroupRunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "scheduler",
			Name:      "group_run_duration_seconds",
			Help:      "Duration of group runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 15), // 0.1s to ~55min
		},
		[]string{"status"},
	)

	m.TruncationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "harvester",
			Name:      "truncations_total",
			Help:      "Harvests that stopped at the page cap",
		},
		[]string{"operation"},
	)

	m.GroupsRunning = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "scheduler",
			Name:      "groups_running",
			Help:      "Number of group runs in flight",
		},
	)

	m.GroupsQueued = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "scheduler",
			Name:      "groups_queued",
			Help:      "Number of due groups waiting for a worker slot",
		},
	)

	m.ItemsIngestedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "ingestion",
			Name:      "items_total",
			Help:      "Posts and comments written to the store",
		},
		[]string{"kind"},
	)

	return m
}

// Registry returns the registry the collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCall records one outbound attempt
func (m *Metrics) ObserveCall(operation, outcome string) {
	if m == nil {
		return
	}
	m.OutboundCallsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveRateLimitWait records the time an attempt waited for a slot
func (m *Metrics) ObserveRateLimitWait(d time.Duration) {
	if m == nil {
		return
	}
	m.RateLimitWait.Observe(d.Seconds())
}

// ObserveRun records a finished group run
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.GroupRunsTotal.WithLabelValues(status).Inc()
	m.GroupRunDuration.WithLabelValues(status).Observe(d.Seconds())
}

// IncTruncated counts a harvest stopped at the page cap
func (m *Metrics) IncTruncated(operation string) {
	if m == nil {
		return
	}
	m.TruncationsTotal.WithLabelValues(operation).Inc()
}

// AddIngested counts stored items of kind "post" or "comment"
func (m *Metrics) AddIngested(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsIngestedTotal.WithLabelValues(kind).Add(float64(n))
}

// SetRunning sets the in-flight run gauge
func (m *Metrics) SetRunning(n int) {
	if m == nil {
		return
	}
	m.GroupsRunning.Set(float64(n))
}

// SetQueued sets the pending queue gauge
func (m *Metrics) SetQueued(n int) {
	if m == nil {
		return
	}
	m.GroupsQueued.Set(float64(n))
}
