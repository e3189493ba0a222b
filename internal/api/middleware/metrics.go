package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/hashtag_server/internal/pkg/metrics"
)

// Metrics 记录请求数、耗时和并发数
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		m.InFlight.Inc()
		defer m.InFlight.Dec()

		start := time.Now()
		c.Next()

		labels := []string{c.Request.Method, routeOf(c), strconv.Itoa(c.Writer.Status())}
		m.Requests.WithLabelValues(labels...).Inc()
		m.Duration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	}
}
