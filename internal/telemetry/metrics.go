// Package telemetry exposes build and query metrics in the Prometheus
// text format. All methods are safe on a nil *Metrics, so components can
// run without metrics in tests and in the CLI.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "repoindex"

// Query outcomes used as the outcome label.
const (
	OutcomeHit   = "hit"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Metrics holds the collectors of one process. It uses its own registry so
// tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	buildsStarted    *prometheus.CounterVec
	buildsFinished   *prometheus.CounterVec
	buildDuration    *prometheus.HistogramVec
	buildsActive     prometheus.Gauge
	snapshotsDropped prometheus.Counter
	chunksWritten    prometheus.Counter

	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		buildsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_started_total",
			Help:      "Index builds started, by source kind.",
		}, []string{"kind"}),
		buildsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_finished_total",
			Help:      "Index builds that reached a terminal status.",
		}, []string{"kind", "status"}),
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Wall time of index builds.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"kind"}),
		buildsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "builds_active",
			Help:      "Index builds currently running.",
		}),
		snapshotsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_snapshots_dropped_total",
			Help:      "Progress snapshots dropped because the stream consumer fell behind.",
		}),
		chunksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_written_total",
			Help:      "Chunks written to the index.",
		}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Index queries, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Latency of index queries.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"operation"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.buildsStarted,
		m.buildsFinished,
		m.buildDuration,
		m.buildsActive,
		m.snapshotsDropped,
		m.chunksWritten,
		m.queries,
		m.queryDuration,
	)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// BuildStarted counts a build and marks it active.
func (m *Metrics) BuildStarted(kind string) {
	if m == nil {
		return
	}
	m.buildsStarted.WithLabelValues(kind).Inc()
	m.buildsActive.Inc()
}

// BuildFinished records the terminal status of a build started with
// BuildStarted.
func (m *Metrics) BuildFinished(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.buildsFinished.WithLabelValues(kind, status).Inc()
	m.buildDuration.WithLabelValues(kind).Observe(d.Seconds())
	m.buildsActive.Dec()
}

// SnapshotDropped counts one lossy progress send.
func (m *Metrics) SnapshotDropped() {
	if m == nil {
		return
	}
	m.snapshotsDropped.Inc()
}

// ChunksWritten adds n written chunks.
func (m *Metrics) ChunksWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.chunksWritten.Add(float64(n))
}

// QueryObserved records one query of operation.
func (m *Metrics) QueryObserved(operation string, results int, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeHit
	switch {
	case err != nil:
		outcome = OutcomeError
	case results == 0:
		outcome = OutcomeEmpty
	}
	m.queries.WithLabelValues(operation, outcome).Inc()
	m.queryDuration.WithLabelValues(operation).Observe(d.Seconds())
}
