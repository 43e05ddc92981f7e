package workflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docflow_jobs_total",
			Help: "Jobs finished by the processing workflow, by kind and final status",
		},
		[]string{"kind", "status"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docflow_job_duration_seconds",
			Help:    "Duration of a single job from upload to final record update",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	finalizeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docflow_finalize_failures_total",
			Help: "Records the workflow could not move to failed and handed to the worker",
		},
	)
)

func observeJob(kind, status string, started time.Time) {
	jobsTotal.WithLabelValues(kind, status).Inc()
	jobDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}
