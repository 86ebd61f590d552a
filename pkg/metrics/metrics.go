// Package metrics defines the Prometheus collectors used by the indexer and
// the searcher and exposes an HTTP handler for scraping.
//
// A nil *Metrics is valid: every recording method is a no-op on it, so the
// engine can run uninstrumented when embedded.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the engine.
type Metrics struct {
	DocsIndexedTotal     prometheus.Counter
	DocsRejectedTotal    *prometheus.CounterVec
	DocsDeletedTotal     prometheus.Counter
	IndexFlushesTotal    *prometheus.CounterVec
	IndexFlushDuration   prometheus.Histogram
	CommitsTotal         *prometheus.CounterVec
	MergesTotal          *prometheus.CounterVec
	MergeDuration        prometheus.Histogram
	LiveSegments         prometheus.Gauge
	CorruptSegmentsTotal prometheus.Counter
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	registry             prometheus.Gatherer
}

// New creates all collectors and registers them on reg. When reg is nil a
// private registry is used, which keeps tests and multiple embedded indexes
// from colliding on the global one.
func New(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg = r
		gatherer = r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	m := &Metrics{
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_docs_indexed_total",
				Help: "Total documents accepted into the index buffer.",
			},
		),
		DocsRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_docs_rejected_total",
				Help: "Documents skipped during indexing by error kind.",
			},
			[]string{"kind"},
		),
		DocsDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_docs_deleted_total",
				Help: "Total documents tombstoned.",
			},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_index_flushes_total",
				Help: "Total segment flushes by status.",
			},
			[]string{"status"},
		),
		IndexFlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_index_flush_duration_seconds",
				Help:    "Time spent writing a flushed segment.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
		),
		CommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_commits_total",
				Help: "Total commits by status (ok, noop, error).",
			},
			[]string{"status"},
		),
		MergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_merges_total",
				Help: "Total segment merges by status.",
			},
			[]string{"status"},
		),
		MergeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_merge_duration_seconds",
				Help:    "Time spent merging segments.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
		),
		LiveSegments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "search_live_segments",
				Help: "Number of segments in the current manifest.",
			},
		),
		CorruptSegmentsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_corrupt_segments_total",
				Help: "Segments excluded from search because verification failed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, error kind).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		registry: gatherer,
	}

	reg.MustRegister(
		m.DocsIndexedTotal,
		m.DocsRejectedTotal,
		m.DocsDeletedTotal,
		m.IndexFlushesTotal,
		m.IndexFlushDuration,
		m.CommitsTotal,
		m.MergesTotal,
		m.MergeDuration,
		m.LiveSegments,
		m.CorruptSegmentsTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

func (m *Metrics) DocIndexed() {
	if m == nil {
		return
	}
	m.DocsIndexedTotal.Inc()
}

func (m *Metrics) DocRejected(kind string) {
	if m == nil {
		return
	}
	m.DocsRejectedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) DocDeleted() {
	if m == nil {
		return
	}
	m.DocsDeletedTotal.Inc()
}

func (m *Metrics) Flush(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.IndexFlushesTotal.WithLabelValues(status).Inc()
	m.IndexFlushDuration.Observe(took.Seconds())
}

func (m *Metrics) Commit(status string) {
	if m == nil {
		return
	}
	m.CommitsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) Merge(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.MergesTotal.WithLabelValues(status).Inc()
	m.MergeDuration.Observe(took.Seconds())
}

func (m *Metrics) SetLiveSegments(n int) {
	if m == nil {
		return
	}
	m.LiveSegments.Set(float64(n))
}

func (m *Metrics) CorruptSegment() {
	if m == nil {
		return
	}
	m.CorruptSegmentsTotal.Inc()
}

// Query records one finished search.
func (m *Metrics) Query(resultType, cacheStatus string, results int, took time.Duration) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	m.SearchLatency.WithLabelValues(cacheStatus).Observe(took.Seconds())
	m.SearchResultsCount.Observe(float64(results))
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

// Handler returns the Prometheus scrape HTTP handler for this set of metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
