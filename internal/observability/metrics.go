package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the seed engine.
type Metrics struct {
	SlicesBuilt   prometheus.Counter
	SliceErrors   prometheus.Counter
	DaemonRunning prometheus.Gauge

	// Cache metrics.
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CacheWriteErrors prometheus.Counter

	// Upstream fetch metrics.
	FetchFallbacks prometheus.Counter
	FetchFailures  prometheus.Counter

	// Slice assembly and export metrics.
	SliceDuration prometheus.Histogram
	ExportBytes   *prometheus.HistogramVec // labels: format={binary,columnar}
	ExportRatio   *prometheus.HistogramVec // labels: format={binary,columnar}
}

// NewMetrics creates and registers all seed engine metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		SlicesBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridseed",
			Name:      "slices_built_total",
			Help:      "Total seeds successfully assembled.",
		}),
		SliceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridseed",
			Name:      "slice_errors_total",
			Help:      "Total slice requests that failed after fallback.",
		}),
		DaemonRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gridseed",
			Name:      "daemon_running",
			Help:      "1 when the slicing daemon is active, 0 when shut down.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridseed",
			Name:      "cache_hits_total",
			Help:      "Total slice requests served from the seed cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridseed",
			Name:      "cache_misses_total",
			Help:      "Total slice requests that required an upstream fetch.",
		}),
		CacheWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridseed",
			Name:      "cache_write_errors_total",
			Help:      "Total failed cache writes. Writes are non-fatal.",
		}),
		FetchFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridseed",
			Name:      "fetch_fallbacks_total",
			Help:      "Total fetches retried against the previous model run.",
		}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gridseed",
			Name:      "fetch_failures_total",
			Help:      "Total upstream fetch failures, including fallback attempts.",
		}),
		SliceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gridseed",
			Name:      "slice_duration_seconds",
			Help:      "Duration of a complete resolve-fetch-assemble cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ExportBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gridseed",
			Name:      "export_bytes",
			Help:      "Encoded seed size in bytes by format.",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 2, 10),
		}, []string{"format"}),
		ExportRatio: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gridseed",
			Name:      "export_compression_ratio",
			Help:      "Raw bytes divided by encoded bytes, by format.",
			Buckets:   []float64{1, 2, 3, 4, 6, 8, 12, 16, 24, 32},
		}, []string{"format"}),
	}

	prometheus.MustRegister(
		m.SlicesBuilt,
		m.SliceErrors,
		m.DaemonRunning,
		m.CacheHits,
		m.CacheMisses,
		m.CacheWriteErrors,
		m.FetchFallbacks,
		m.FetchFailures,
		m.SliceDuration,
		m.ExportBytes,
		m.ExportRatio,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		SlicesBuilt:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridseed", Name: "slices_built_total"}),
		SliceErrors:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridseed", Name: "slice_errors_total"}),
		DaemonRunning:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "gridseed", Name: "daemon_running"}),
		CacheHits:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridseed", Name: "cache_hits_total"}),
		CacheMisses:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridseed", Name: "cache_misses_total"}),
		CacheWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridseed", Name: "cache_write_errors_total"}),
		FetchFallbacks:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridseed", Name: "fetch_fallbacks_total"}),
		FetchFailures:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "gridseed", Name: "fetch_failures_total"}),
		SliceDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "gridseed", Name: "slice_duration_seconds"}),
		ExportBytes:      prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "gridseed", Name: "export_bytes"}, []string{"format"}),
		ExportRatio:      prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "gridseed", Name: "export_compression_ratio"}, []string{"format"}),
	}
}
