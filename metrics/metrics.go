// Package metrics holds the Prometheus collectors for search and import.
//
// A nil *Metrics is valid and records nothing, so components accept one
// optionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns a private registry with every skimap collector registered.
type Metrics struct {
	registry *prometheus.Registry

	SearchRequestsTotal   prometheus.Counter
	SearchDurationMs      prometheus.Histogram
	SearchCacheTotal      *prometheus.CounterVec
	ImportedFeaturesTotal *prometheus.CounterVec
	PurgedFeaturesTotal   prometheus.Counter
	ImportDurationSeconds prometheus.Histogram
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SearchRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skimap_search_requests_total",
			Help: "Total number of search requests",
		}),
		SearchDurationMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "skimap_search_duration_ms",
			Help:    "Search duration in milliseconds",
			Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
		}),
		SearchCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skimap_search_cache_total",
			Help: "Search cache lookups by result",
		}, []string{"result"}),
		ImportedFeaturesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "skimap_imported_features_total",
			Help: "Features processed by the import pipeline by outcome",
		}, []string{"outcome"}),
		PurgedFeaturesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skimap_purged_features_total",
			Help: "Features removed by cutover purges",
		}),
		ImportDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "skimap_import_duration_seconds",
			Help:    "Import run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	m.registry.MustRegister(
		m.SearchRequestsTotal,
		m.SearchDurationMs,
		m.SearchCacheTotal,
		m.ImportedFeaturesTotal,
		m.PurgedFeaturesTotal,
		m.ImportDurationSeconds,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSearch records one search and its duration.
func (m *Metrics) ObserveSearch(d time.Duration) {
	if m == nil {
		return
	}
	m.SearchRequestsTotal.Inc()
	m.SearchDurationMs.Observe(float64(d.Milliseconds()))
}

// CacheLookup records a cache lookup. result is "hit", "miss" or "error".
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.SearchCacheTotal.WithLabelValues(result).Inc()
}

// FeatureUpserted counts one written feature.
func (m *Metrics) FeatureUpserted() {
	if m == nil {
		return
	}
	m.ImportedFeaturesTotal.WithLabelValues("upserted").Inc()
}

// FeatureSkipped counts one malformed feature.
func (m *Metrics) FeatureSkipped() {
	if m == nil {
		return
	}
	m.ImportedFeaturesTotal.WithLabelValues("skipped").Inc()
}

// Purged counts features removed by a purge.
func (m *Metrics) Purged(n int) {
	if m == nil {
		return
	}
	m.PurgedFeaturesTotal.Add(float64(n))
}

// ObserveImport records the duration of an import run.
func (m *Metrics) ObserveImport(d time.Duration) {
	if m == nil {
		return
	}
	m.ImportDurationSeconds.Observe(d.Seconds())
}

// WriteTextfile writes every metric in the text exposition format to path,
// for pickup by the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
