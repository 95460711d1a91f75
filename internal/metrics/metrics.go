// Package metrics exposes relay and HTTP counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ABHIRAMSHIBU/internetradio/internal/relay"
)

const namespace = "internetradio"

// Metrics holds Prometheus counters and gauges for the relay. It implements
// relay.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive     prometheus.Gauge
	sessionsOpened     prometheus.Counter
	sessionsClosed     *prometheus.CounterVec
	bytesSent          prometheus.Counter
	chunksSent         prometheus.Counter
	transcoderRestarts *prometheus.CounterVec
	spawnFailures      prometheus.Counter
	requestsTotal      prometheus.Counter
	errorsTotal        prometheus.Counter
	catalogFiles       prometheus.Gauge
}

var _ relay.Metrics = (*Metrics)(nil)

// New creates and registers the metrics, plus Go runtime and process
// collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of relay sessions currently streaming",
		}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Total number of relay sessions opened",
		}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "Total number of relay sessions closed, by end reason",
		}, []string{"reason"}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Total PCM bytes written to clients",
		}),
		chunksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_sent_total",
			Help:      "Total PCM chunks written to clients",
		}),
		transcoderRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcoder_restarts_total",
			Help:      "Total transcoder restarts, by reason",
		}, []string{"reason"}),
		spawnFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcoder_spawn_failures_total",
			Help:      "Total transcoder spawn failures",
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		catalogFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_files",
			Help:      "Number of playable files in the media directory",
		}),
	}

	m.registry.MustRegister(
		m.sessionsActive,
		m.sessionsOpened,
		m.sessionsClosed,
		m.bytesSent,
		m.chunksSent,
		m.transcoderRestarts,
		m.spawnFailures,
		m.requestsTotal,
		m.errorsTotal,
		m.catalogFiles,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SessionOpened() {
	m.sessionsOpened.Inc()
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionClosed(reason relay.EndReason) {
	m.sessionsClosed.WithLabelValues(string(reason)).Inc()
	m.sessionsActive.Dec()
}

func (m *Metrics) ChunkSent(bytes int) {
	m.chunksSent.Inc()
	m.bytesSent.Add(float64(bytes))
}

func (m *Metrics) TranscoderRestarted(reason relay.RestartReason) {
	m.transcoderRestarts.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) SpawnFailed() {
	m.spawnFailures.Inc()
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// SetActiveSessions overwrites the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.sessionsActive.Set(float64(n))
}

// SetCatalogFiles sets the catalog size gauge.
func (m *Metrics) SetCatalogFiles(n int) {
	m.catalogFiles.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		h.ServeHTTP(w, r)
	})
}
