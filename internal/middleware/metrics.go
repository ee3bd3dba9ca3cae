package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"parchment/internal/metrics"
)

// Metrics records every request under its route template so ids in paths do
// not blow up label cardinality.
func Metrics(rec metrics.HTTPRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		rec.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
