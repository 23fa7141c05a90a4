package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aqnus/sis-api/internal/service"
)

// Metrics observes method, route template, status and duration for every
// request. A nil metrics service disables observation.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	if metrics == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// Route template keeps cardinality bounded; raw path only for
		// requests that matched no route.
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
