// Package metrics defines the Prometheus metric collectors used by the index
// engine and the ingestion HTTP service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the index engine.
type Metrics struct {
	DocsAddedTotal      prometheus.Counter
	DocsReplacedTotal   prometheus.Counter
	DeletesTotal        *prometheus.CounterVec
	StaleDeletesTotal   prometheus.Counter
	MergesTotal         *prometheus.CounterVec
	MergeDuration       prometheus.Histogram
	MergedDocsTotal     prometheus.Counter
	CommitsTotal        *prometheus.CounterVec
	SegmentCount        *prometheus.GaugeVec
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CacheEvictionsTotal prometheus.Counter
	CacheEntries        prometheus.Gauge
	NormLoadsTotal      prometheus.Counter

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// New creates all collectors and registers them with reg. A nil reg uses
// the process-wide default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		DocsAddedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_docs_added_total",
				Help: "Total documents added through the index writer.",
			},
		),
		DocsReplacedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_docs_replaced_total",
				Help: "Total older document copies soft-deleted by an upsert.",
			},
		),
		DeletesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_deletes_total",
				Help: "Total document deletions by kind (reader, merge).",
			},
			[]string{"kind"},
		),
		StaleDeletesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_stale_deletes_total",
				Help: "Deletions ignored because the reader was opened on an older generation.",
			},
		),
		MergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_merges_total",
				Help: "Total segment merges by status.",
			},
			[]string{"status"},
		),
		MergeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_merge_duration_seconds",
				Help:    "Segment merge latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
		),
		MergedDocsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_merged_docs_total",
				Help: "Total live documents written by merges.",
			},
		),
		CommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_commits_total",
				Help: "Total segments file commits by source (writer, reader).",
			},
			[]string{"source"},
		),
		SegmentCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "index_segments",
				Help: "Number of segments per index directory.",
			},
			[]string{"dir"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_segment_cache_hits_total",
				Help: "Segment cache lookups served from an existing entry.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_segment_cache_misses_total",
				Help: "Segment cache lookups that loaded a new entry.",
			},
		),
		CacheEvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_segment_cache_evictions_total",
				Help: "Segment cache entries evicted.",
			},
		),
		CacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_segment_cache_entries",
				Help: "Segment cache entries currently mapped.",
			},
		),
		NormLoadsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_norm_loads_total",
				Help: "Per-field norm arrays read from disk.",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests by method, path, and status code.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being served.",
			},
		),
	}

	reg.MustRegister(
		m.DocsAddedTotal,
		m.DocsReplacedTotal,
		m.DeletesTotal,
		m.StaleDeletesTotal,
		m.MergesTotal,
		m.MergeDuration,
		m.MergedDocsTotal,
		m.CommitsTotal,
		m.SegmentCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheEvictionsTotal,
		m.CacheEntries,
		m.NormLoadsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
	)

	return m
}

// NewUnregistered creates collectors on a private registry; used where no
// scrape endpoint exists (tools, tests).
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
