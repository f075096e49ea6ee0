package alerts

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "safeline"

var (
	alertQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "queue_size",
			Help:      "Number of alerts in queue by status",
		},
		[]string{"status"},
	)

	alertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "sent_total",
			Help:      "Total alerts processed",
		},
		[]string{"channel_type", "status"},
	)

	alertSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "send_duration_seconds",
			Help:      "Time to send alert",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel_type"},
	)

	alertsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "queue_fetched_total",
			Help:      "Total alerts fetched from queue before send attempt",
		},
	)
)

// recordAlertSent records a processed alert metric.
func recordAlertSent(channelType, status string) {
	alertsSent.WithLabelValues(channelType, status).Inc()
}

// recordAlertDuration records alert send duration.
func recordAlertDuration(channelType string, duration time.Duration) {
	alertSendDuration.WithLabelValues(channelType).Observe(duration.Seconds())
}

// recordQueueFetched records the number of items fetched from the queue.
func recordQueueFetched(count int) {
	alertsFetched.Add(float64(count))
}

// RecordQueueStats updates queue size metrics.
func RecordQueueStats(stats *QueueStats) {
	alertQueueSize.WithLabelValues("pending").Set(float64(stats.Pending))
	alertQueueSize.WithLabelValues("processing").Set(float64(stats.Processing))
	alertQueueSize.WithLabelValues("sent").Set(float64(stats.Sent))
	alertQueueSize.WithLabelValues("failed").Set(float64(stats.Failed))
}
