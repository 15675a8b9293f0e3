package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

// RequestLoggerMiddleware stores a logger tagged with the request id under
// "logger" and echoes the id back. An incoming X-Request-ID is kept.
func RequestLoggerMiddleware(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.New().String()
		}
		c.Header(requestIDHeader, requestID)
		c.Set("requestID", requestID)
		c.Set("logger", base.With(zap.String("requestID", requestID)))
		c.Next()
	}
}
