package middleware

import (
	"time"

	rlog "streamfy/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const HeaderRequestID = "X-Request-ID"

// RequestLoggerMiddleware assigns a request id (reusing X-Request-ID when
// the caller sent one) and logs every completed request.
func RequestLoggerMiddleware(logger *rlog.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Header(HeaderRequestID, reqID)
		c.Request = c.Request.WithContext(rlog.WithRequestID(c.Request.Context(), reqID))

		c.Next()

		// user_id is attached by the auth middleware during c.Next
		ctx := c.Request.Context()
		logger.LogRequest(ctx, c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
