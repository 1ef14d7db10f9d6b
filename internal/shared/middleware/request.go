package middleware

import (
	"time"

	"kitchenhub/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

const RequestIDHeader = "X-Request-ID"

// RequestID tags each request with a sortable id, reusing one supplied by the caller
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = ulid.Make().String()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs every request once it has been served
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		l := log
		if id := c.GetString("request_id"); id != "" {
			l = l.WithRequestID(id)
		}
		if status := c.Writer.Status(); status >= 500 && len(c.Errors) > 0 {
			l.LogHTTPError(c, c.Errors.Last(), status)
			return
		}
		l.LogHTTPRequest(c, time.Since(started))
	}
}
