// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wb-go/wbf/ginext"
)

var (
	JobsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anniversary_notifier_jobs_enqueued_total",
		Help: "Total number of delivery jobs enqueued.",
	})

	MessagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anniversary_notifier_messages_delivered_total",
		Help: "Total number of messages delivered to the webhook.",
	})

	MessagesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anniversary_notifier_messages_failed_total",
		Help: "Total number of delivery attempts that failed.",
	})

	MessagesScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anniversary_notifier_messages_scheduled_total",
		Help: "Total number of deliveries scheduled by the daily scan.",
	})

	MessagesRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anniversary_notifier_messages_recovered_total",
		Help: "Total number of missed deliveries re-queued by recovery.",
	})

	DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "anniversary_notifier_message_delivery_duration_seconds",
		Help:    "Duration of successful webhook deliveries in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "anniversary_notifier_queue_depth",
		Help: "Current number of jobs in the queue by state.",
	}, []string{"state"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anniversary_notifier_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "anniversary_notifier_http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method", "path", "status"})
)

// SetQueueDepth publishes one queue-depth sample per state gauge.
func SetQueueDepth(waiting, active, completed, failed, delayed int64) {
	QueueDepth.WithLabelValues("waiting").Set(float64(waiting))
	QueueDepth.WithLabelValues("active").Set(float64(active))
	QueueDepth.WithLabelValues("completed").Set(float64(completed))
	QueueDepth.WithLabelValues("failed").Set(float64(failed))
	QueueDepth.WithLabelValues("delayed").Set(float64(delayed))
}

// Handler serves the Prometheus scrape endpoint.
func Handler() func(c *ginext.Context) {
	h := promhttp.Handler()

	return func(c *ginext.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
