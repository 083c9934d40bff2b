package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricPrefix = "weaveio_ingester_"

var FilesProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "files_processed_total",
		Help: "Number of files read and converted, by pipeline product type",
	},
	[]string{"fileType"},
)

var FilesSkipped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "files_skipped_total",
		Help: "Number of files skipped and why",
	},
	[]string{"reason"},
)

var FileErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "file_errors_total",
		Help: "Number of files that failed to ingest",
	},
	[]string{"fileType"},
)

var RowsUpserted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "rows_upserted_total",
		Help: "Number of rows written to the archive database",
	},
	[]string{"table"},
)

var BatchDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    MetricPrefix + "batch_write_duration_seconds",
		Help:    "Time taken to write a batch of instructions to the archive",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	},
)
