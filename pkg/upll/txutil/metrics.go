package txutil

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "upll",
			Subsystem: "txutil",
			Name:      "tasks_total",
			Help:      "Driver tasks executed by the dispatch pool, by result.",
		}, []string{"result"})

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "upll",
			Subsystem: "txutil",
			Name:      "queue_depth",
			Help:      "Tasks waiting in each dispatch queue.",
		}, []string{"queue"})

	waitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "upll",
			Subsystem: "txutil",
			Name:      "wait_seconds",
			Help:      "Time spent in WaitForCompletion.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		})
)

// skipped labels tasks that found the dispatcher inactive.
const resultSkipped = "skipped"

// InitMetrics registers all metrics in this file.
func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(tasksTotal)
	registry.MustRegister(queueDepth)
	registry.MustRegister(waitDuration)
}
