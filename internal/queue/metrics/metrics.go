package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricPrefix = "weaveio_queue_"

var JobsSubmitted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "jobs_submitted_total",
		Help: "Number of jobs submitted to the queue",
	},
	[]string{"queue", "kind"},
)

var JobsCompleted = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: MetricPrefix + "jobs_completed_total",
		Help: "Number of jobs that reached a terminal state",
	},
	[]string{"queue", "kind", "state"},
)

var JobRunDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    MetricPrefix + "job_run_duration_seconds",
		Help:    "Wall clock duration of job runs",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	},
	[]string{"queue", "kind"},
)

var QueueSize = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: MetricPrefix + "jobs",
		Help: "Current number of jobs by state",
	},
	[]string{"state"},
)

var LeasesRequeued = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: MetricPrefix + "leases_requeued_total",
		Help: "Number of expired leases returned to the queue",
	},
)
