package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// GinMiddleware returns middleware that instruments gin requests. Paths are
// the route templates, so label cardinality stays bounded.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		duration := float64(time.Since(start).Milliseconds())
		RecordAPIRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), duration)
	}
}
