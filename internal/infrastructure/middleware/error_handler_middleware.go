package middleware

import (
	"net/http"

	"streamfy/pkg/errors"
	rlog "streamfy/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandlerMiddleware renders the last error attached with c.Error as
// {"error": CODE, "message": text}.
func ErrorHandlerMiddleware(logger *rlog.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		log := logger.For(c.Request.Context())

		appErr := errors.GetAppError(err)
		if appErr == nil {
			log.Errorw("Unhandled error", "error", err, "path", c.Request.URL.Path, "method", c.Request.Method)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   string(errors.ErrCodeInternal),
				"message": "Internal server error",
			})
			return
		}

		kv := []interface{}{
			"code", appErr.Code,
			"status", appErr.HTTPStatus,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		}
		if appErr.Cause != nil {
			kv = append(kv, "cause", appErr.Cause.Error())
		}
		if len(appErr.Context) > 0 {
			kv = append(kv, "context", appErr.Context)
		}
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			log.Errorw(appErr.Message, kv...)
		} else {
			log.Debugw(appErr.Message, kv...)
		}

		c.JSON(appErr.HTTPStatus, gin.H{
			"error":   string(appErr.Code),
			"message": appErr.Message,
		})
	}
}

// RecoveryMiddleware turns panics into a 500 JSON response.
func RecoveryMiddleware(logger *rlog.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.For(c.Request.Context()).Errorw("Panic recovered",
					"panic", r,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   string(errors.ErrCodeInternal),
					"message": "Internal server error",
				})
			}
		}()

		c.Next()
	}
}
