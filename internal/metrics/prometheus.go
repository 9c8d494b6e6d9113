package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "replkv"

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
)

// Metrics holds the server's Prometheus collectors on a private registry.
// All methods are no-ops on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	activeConnections prometheus.Gauge
	protocolErrors    prometheus.Counter
	replications      *prometheus.CounterVec
	replicationTime   prometheus.Histogram
	keys              prometheus.Gauge
	logBytes          prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests handled, by request kind and outcome.",
		}, []string{"kind", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent executing a request, including replication.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"kind"}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Currently open client connections.",
		}),
		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Connections closed because a request could not be decoded.",
		}),
		replications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replication_forwarded_total",
			Help:      "Writes forwarded to the follower, by outcome.",
		}, []string{"outcome"}),
		replicationTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "replication_duration_seconds",
			Help:      "Time spent forwarding one write to the follower.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		keys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keys",
			Help:      "Live keys in the index.",
		}),
		logBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "log_size_bytes",
			Help:      "Size of the append-only log file.",
		}),
	}

	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.activeConnections,
		m.protocolErrors,
		m.replications,
		m.replicationTime,
		m.keys,
		m.logBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordRequest records one executed request.
func (m *Metrics) RecordRequest(kind, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind, outcome).Inc()
	m.requestDuration.WithLabelValues(kind).Observe(latency.Seconds())
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *Metrics) RecordProtocolError() {
	if m == nil {
		return
	}
	m.protocolErrors.Inc()
}

// RecordReplication records one forward attempt; err is the attempt's result.
func (m *Metrics) RecordReplication(err error, latency time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.replications.WithLabelValues(outcome).Inc()
	m.replicationTime.Observe(latency.Seconds())
}

// SetStoreSize publishes the index and log sizes.
func (m *Metrics) SetStoreSize(keys int, logBytes int64) {
	if m == nil {
		return
	}
	m.keys.Set(float64(keys))
	m.logBytes.Set(float64(logBytes))
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
