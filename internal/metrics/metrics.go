// Package metrics exposes the server's Prometheus collectors: build
// pipeline throughput, retrieval latency, claim-conflict counts, and index
// registry churn.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector, registered on its own registry so tests
// can create as many instances as they like without duplicate-registration
// panics.
type Metrics struct {
	registry *prometheus.Registry

	BuildDuration   *prometheus.HistogramVec
	BuildFiles      *prometheus.CounterVec
	BuildErrors     *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	ClaimConflicts  *prometheus.CounterVec
	ClaimsOpened    *prometheus.CounterVec
	ClaimsClosed    *prometheus.CounterVec
	EpisodesAdded   *prometheus.CounterVec
	IndexResidents  prometheus.Gauge
	EmbeddingsBuilt *prometheus.CounterVec
}

// New creates and registers every collector.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		BuildDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "codeintel",
			Name:      "build_duration_seconds",
			Help:      "Wall-clock duration of graph builds.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"project_id", "mode"}),
		BuildFiles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codeintel",
			Name:      "build_files_total",
			Help:      "Files processed by builds.",
		}, []string{"project_id", "mode"}),
		BuildErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codeintel",
			Name:      "build_errors_total",
			Help:      "Per-file parse/build failures.",
		}, []string{"project_id"}),
		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "codeintel",
			Name:      "query_duration_seconds",
			Help:      "Latency of tool calls by method.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"method"}),
		ClaimConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codeintel",
			Name:      "claim_conflicts_total",
			Help:      "Claim attempts rejected because another agent holds the target.",
		}, []string{"project_id"}),
		ClaimsOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codeintel",
			Name:      "claims_opened_total",
			Help:      "Claims successfully acquired.",
		}, []string{"project_id"}),
		ClaimsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codeintel",
			Name:      "claims_closed_total",
			Help:      "Claims closed, by invalidation reason.",
		}, []string{"project_id", "reason"}),
		EpisodesAdded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codeintel",
			Name:      "episodes_added_total",
			Help:      "Episodic memory entries appended.",
		}, []string{"project_id"}),
		IndexResidents: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "codeintel",
			Name:      "index_resident_projects",
			Help:      "Projects currently holding an in-memory index.",
		}),
		EmbeddingsBuilt: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codeintel",
			Name:      "embeddings_built_total",
			Help:      "Symbol embeddings generated and upserted.",
		}, []string{"project_id"}),
	}
}

// ObserveBuild records one finished build.
func (m *Metrics) ObserveBuild(projectID, mode string, files, failures int, duration time.Duration) {
	m.BuildDuration.WithLabelValues(projectID, mode).Observe(duration.Seconds())
	m.BuildFiles.WithLabelValues(projectID, mode).Add(float64(files))
	if failures > 0 {
		m.BuildErrors.WithLabelValues(projectID).Add(float64(failures))
	}
}

// ObserveQuery records one tool call's latency.
func (m *Metrics) ObserveQuery(method string, duration time.Duration) {
	m.QueryDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// Handler serves the exposition endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
