package mutator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mutator_jobs_total",
		Help: "The total number of finished bulk jobs.",
	}, []string{"op", "result"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mutator_job_duration_seconds",
		Help:    "Bulk job run time, queue wait excluded.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"op"})

	blocksCopied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mutator_blocks_copied_total",
		Help: "The total number of blocks published by bulk jobs.",
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mutator_queue_depth",
		Help: "Bulk jobs waiting for a worker.",
	})
)

func instrumentJob(op Op, took time.Duration, blocks int64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	jobsTotal.WithLabelValues(string(op), result).Inc()
	jobDuration.WithLabelValues(string(op)).Observe(took.Seconds())
	if err == nil {
		blocksCopied.Add(float64(blocks))
	}
}

func instrumentQueue(n int) {
	queueDepth.Set(float64(n))
}
