package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Per-lane job lifecycle counters, exported at /metrics.
var (
	jobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prospectq_jobs_enqueued_total",
		Help: "Jobs accepted into a queue.",
	}, []string{"queue"})

	jobsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prospectq_jobs_completed_total",
		Help: "Jobs whose handler returned a result.",
	}, []string{"queue"})

	jobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prospectq_jobs_failed_total",
		Help: "Jobs that exhausted their retry budget.",
	}, []string{"queue"})

	jobsRetried = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prospectq_jobs_retried_total",
		Help: "Handler failures that were rescheduled with backoff.",
	}, []string{"queue"})
)
