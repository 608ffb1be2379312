package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autofund"

// ClientMetrics owns the registry for everything the client reports:
// backend calls, cache and offline behaviour, polling and the bridge.
type ClientMetrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	offlineDepth    prometheus.Gauge
	pollTransitions *prometheus.CounterVec
	uploadsTotal    *prometheus.CounterVec

	httpRequestTotal    *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInFlight        prometheus.Gauge
}

func NewClientMetrics(service string) *ClientMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "api",
			Name:        "requests_total",
			Help:        "Backend requests by operation and outcome, retries included.",
			ConstLabels: constLabels,
		},
		[]string{"operation", "outcome"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "api",
			Name:        "request_duration_seconds",
			Help:        "Backend request duration in seconds, retries included.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "api",
			Name:        "retries_total",
			Help:        "Retry attempts scheduled by operation.",
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)
	cacheLookups := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "cache",
			Name:        "lookups_total",
			Help:        "Response cache lookups by result.",
			ConstLabels: constLabels,
		},
		[]string{"result"},
	)
	offlineDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "offline",
			Name:        "queue_depth",
			Help:        "Operations waiting for connectivity.",
			ConstLabels: constLabels,
		},
	)
	pollTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "poll",
			Name:        "transitions_total",
			Help:        "Accepted task status transitions by target status.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "uploads_total",
			Help:        "Document uploads by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"outcome"},
	)
	httpRequestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "requests_total",
			Help:        "Bridge HTTP requests processed.",
			ConstLabels: constLabels,
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "request_duration_seconds",
			Help:        "Bridge HTTP request duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method", "path"},
	)
	httpInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight bridge requests.",
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(
		requestsTotal,
		requestDuration,
		retriesTotal,
		cacheLookups,
		offlineDepth,
		pollTransitions,
		uploadsTotal,
		httpRequestTotal,
		httpRequestDuration,
		httpInFlight,
	)

	return &ClientMetrics{
		registry:            registry,
		requestsTotal:       requestsTotal,
		requestDuration:     requestDuration,
		retriesTotal:        retriesTotal,
		cacheLookups:        cacheLookups,
		offlineDepth:        offlineDepth,
		pollTransitions:     pollTransitions,
		uploadsTotal:        uploadsTotal,
		httpRequestTotal:    httpRequestTotal,
		httpRequestDuration: httpRequestDuration,
		httpInFlight:        httpInFlight,
	}
}

func (m *ClientMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *ClientMetrics) ObserveRequest(operation, outcome string, duration time.Duration) {
	if operation == "" {
		operation = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.requestsTotal.WithLabelValues(operation, outcome).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRetry matches resilience.Config.OnRetry.
func (m *ClientMetrics) RecordRetry(operation string, _ int, _ time.Duration, _ error) {
	m.retriesTotal.WithLabelValues(operation).Inc()
}

func (m *ClientMetrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *ClientMetrics) SetOfflineDepth(depth int) {
	m.offlineDepth.Set(float64(depth))
}

func (m *ClientMetrics) PollTransition(status string) {
	m.pollTransitions.WithLabelValues(status).Inc()
}

func (m *ClientMetrics) Upload(err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.uploadsTotal.WithLabelValues(outcome).Inc()
}
