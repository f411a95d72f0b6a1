package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-order-agent/internal/observability"
)

// Metrics feeds the observability HTTP collectors.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		observability.HTTPInFlight.Inc()
		defer observability.HTTPInFlight.Dec()
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = observability.UnmatchedRoute
		}
		observability.HTTPRequests.
			WithLabelValues(c.Request.Method, route, observability.StatusClass(c.Writer.Status())).
			Inc()
		observability.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
