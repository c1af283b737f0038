// Package metrics exposes Prometheus collectors for the processing pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the collector set for a single process.
type Metrics struct {
	registry *prometheus.Registry

	// Circuit breaker observability. State encodes 0=closed, 1=open,
	// 2=half-open per (country, provider).
	BreakerState     *prometheus.GaugeVec
	CircuitOpenTotal *prometheus.CounterVec
	ProviderRequests *prometheus.CounterVec

	// Worker pipeline.
	WorkerTasksTotal   *prometheus.CounterVec
	WorkerTaskDuration *prometheus.HistogramVec

	// Queue bridge.
	PendingJobsEnqueued prometheus.Counter

	// Real-time fan-out.
	WebSocketConnections prometheus.Gauge
	BroadcastsTotal      *prometheus.CounterVec
}

// New creates and registers the collector set on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "creditcore",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per country/provider (0=closed, 1=open, 2=half-open)",
		}, []string{"country", "provider"}),
		CircuitOpenTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "creditcore",
			Name:      "circuit_open_total",
			Help:      "Calls short-circuited while the breaker was open",
		}, []string{"country", "provider"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "creditcore",
			Name:      "provider_requests_total",
			Help:      "Banking provider calls by outcome",
		}, []string{"country", "provider", "status"}),
		WorkerTasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "creditcore",
			Name:      "worker_tasks_total",
			Help:      "Worker task executions by outcome",
		}, []string{"task_name", "status"}),
		WorkerTaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "creditcore",
			Name:      "worker_task_duration_seconds",
			Help:      "Worker task duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task_name"}),
		PendingJobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "creditcore",
			Name:      "pending_jobs_enqueued_total",
			Help:      "Pending jobs pushed from the visible job table to the work queue",
		}),
		WebSocketConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "creditcore",
			Name:      "websocket_connections",
			Help:      "Currently connected WebSocket sessions",
		}),
		BroadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "creditcore",
			Name:      "broadcasts_total",
			Help:      "Pub/sub broadcast attempts by outcome",
		}, []string{"status"}),
	}

	registry.MustRegister(
		m.BreakerState,
		m.CircuitOpenTotal,
		m.ProviderRequests,
		m.WorkerTasksTotal,
		m.WorkerTaskDuration,
		m.PendingJobsEnqueued,
		m.WebSocketConnections,
		m.BroadcastsTotal,
	)

	return m
}

// Handler returns the HTTP handler serving this process's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
