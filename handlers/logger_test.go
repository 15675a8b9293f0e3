package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"contratto/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetLoggerPrefersRequestLogger(t *testing.T) {
	requestCore, requestLogs := observer.New(zap.InfoLevel)
	fallbackCore, fallbackLogs := observer.New(zap.InfoLevel)
	fallback := zap.New(fallbackCore)

	r := gin.New()
	r.GET("/plain", func(c *gin.Context) {
		getLogger(c, fallback).Info("plain")
		c.Status(http.StatusNoContent)
	})
	scoped := r.Group("", middleware.RequestLoggerMiddleware(zap.New(requestCore)))
	scoped.GET("/scoped", func(c *gin.Context) {
		getLogger(c, fallback).Info("scoped")
		c.Status(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/scoped", nil))
	require.Equal(t, 1, requestLogs.Len())
	assert.NotEmpty(t, requestLogs.All()[0].ContextMap()["requestID"])
	assert.Equal(t, 0, fallbackLogs.Len())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/plain", nil))
	require.Equal(t, 1, fallbackLogs.Len())
	assert.Equal(t, "/plain", fallbackLogs.All()[0].ContextMap()["route"])
}
