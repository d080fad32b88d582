package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors the worker runtime updates.
// It generalizes cmd/worker/main.go's package-level promauto vars into
// an injectable struct so multiple Worker instances (or tests) don't
// collide on global registration.
type Metrics struct {
	Processed    *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	QueueDepth   *prometheus.GaugeVec
	QueueLatency *prometheus.HistogramVec
}

// NewMetrics registers a fresh set of collectors against the default
// Prometheus registry, named to match the teacher's cmd/worker metric
// names exactly (goqueue_processed_total, goqueue_task_duration_seconds,
// goqueue_queue_depth, goqueue_queue_latency_seconds).
func NewMetrics() *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// newMetrics builds the collectors through f. A Factory over a nil
// registerer creates them without registering them anywhere.
func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		Processed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "goqueue_processed_total",
			Help: "The total number of processed tasks",
		}, []string{"status", "name"}),
		TaskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "goqueue_task_duration_seconds",
			Help:    "Duration of task processing",
			Buckets: prometheus.DefBuckets,
		}, []string{"name"}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "goqueue_queue_depth",
			Help: "Number of tasks in each queue",
		}, []string{"queue", "priority"}),
		QueueLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "goqueue_queue_latency_seconds",
			Help:    "Time spent in queue before processing",
			Buckets: prometheus.DefBuckets,
		}, []string{"name"}),
	}
}
