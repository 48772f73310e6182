package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	// Retrieval metrics.
	MonthFetches     *prometheus.CounterVec // labels: result={hit,miss,error}
	DownloadDuration prometheus.Histogram
	DownloadBytes    prometheus.Counter

	// Load metrics.
	EventsLoaded      prometheus.Counter
	EventsOutOfWindow prometheus.Counter
	MonthsFailed      prometheus.Counter

	// Densify metrics.
	DenseRows      prometheus.Counter
	ZeroFilledRows prometheus.Counter

	// Run metrics.
	Runs            *prometheus.CounterVec // labels: outcome={success,error}
	RunDuration     prometheus.Histogram
	PipelineRunning prometheus.Gauge
	LastSuccess     prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		MonthFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rides_etl",
			Name:      "month_fetches_total",
			Help:      "Monthly file lookups by cache result.",
		}, []string{"result"}),
		DownloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rides_etl",
			Name:      "download_duration_seconds",
			Help:      "Duration of a monthly file download from the remote archive.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rides_etl",
			Name:      "download_bytes_total",
			Help:      "Total bytes written to the raw cache by downloads.",
		}),
		EventsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rides_etl",
			Name:      "events_loaded_total",
			Help:      "Pickup events kept after the month window filter.",
		}),
		EventsOutOfWindow: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rides_etl",
			Name:      "events_out_of_window_total",
			Help:      "Pickup events dropped because they fall outside their file's month.",
		}),
		MonthsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rides_etl",
			Name:      "months_failed_total",
			Help:      "Months skipped because retrieval or decoding failed.",
		}),
		DenseRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rides_etl",
			Name:      "dense_rows_total",
			Help:      "Rows emitted by the densifier.",
		}),
		ZeroFilledRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rides_etl",
			Name:      "zero_filled_rows_total",
			Help:      "Dense rows that were filled with a zero count.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rides_etl",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rides_etl",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete load-aggregate-densify-store run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rides_etl",
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rides_etl",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}

	prometheus.MustRegister(
		m.MonthFetches,
		m.DownloadDuration,
		m.DownloadBytes,
		m.EventsLoaded,
		m.EventsOutOfWindow,
		m.MonthsFailed,
		m.DenseRows,
		m.ZeroFilledRows,
		m.Runs,
		m.RunDuration,
		m.PipelineRunning,
		m.LastSuccess,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		MonthFetches:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "rides_etl", Name: "month_fetches_total"}, []string{"result"}),
		DownloadDuration:  prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "rides_etl", Name: "download_duration_seconds"}),
		DownloadBytes:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "rides_etl", Name: "download_bytes_total"}),
		EventsLoaded:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "rides_etl", Name: "events_loaded_total"}),
		EventsOutOfWindow: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "rides_etl", Name: "events_out_of_window_total"}),
		MonthsFailed:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "rides_etl", Name: "months_failed_total"}),
		DenseRows:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "rides_etl", Name: "dense_rows_total"}),
		ZeroFilledRows:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "rides_etl", Name: "zero_filled_rows_total"}),
		Runs:              prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "rides_etl", Name: "runs_total"}, []string{"outcome"}),
		RunDuration:       prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "rides_etl", Name: "run_duration_seconds"}),
		PipelineRunning:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "rides_etl", Name: "pipeline_running"}),
		LastSuccess:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "rides_etl", Name: "last_success_timestamp_seconds"}),
	}
}
