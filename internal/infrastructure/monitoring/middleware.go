package monitoring

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for admin request metrics
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordAdminRequest(c.Request.Method, path, c.Writer.Status())
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
