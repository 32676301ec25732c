package middlewares

import (
	"strconv"
	"time"

	"github.com/wb-go/wbf/ginext"

	"github.com/hrnotify/anniversary-notifier/internal/metrics"
)

// MetricsMiddleware records a request counter and latency histogram per
// route. The route template is used as the path label so /employees/:id
// stays one series regardless of the concrete id.
func MetricsMiddleware() ginext.HandlerFunc {
	return func(c *ginext.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := strconv.Itoa(c.Writer.Status())

		metrics.HTTPRequests.WithLabelValues(c.Request.Method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).
			Observe(time.Since(start).Seconds())
	}
}
