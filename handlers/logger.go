package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// getLogger prefers a request-scoped logger stored under "logger" and falls
// back to the handler's own, tagged with the route.
func getLogger(c *gin.Context, fallback *zap.Logger) *zap.Logger {
	if l, exists := c.Get("logger"); exists {
		if logger, ok := l.(*zap.Logger); ok {
			return logger
		}
	}
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return fallback.With(zap.String("route", c.FullPath()))
}
