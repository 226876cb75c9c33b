package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/adg-admissions-api/internal/service"
)

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	healthy := PingFunc(func(ctx context.Context) error { return nil })
	down := PingFunc(func(ctx context.Context) error { return errors.New("connection refused") })

	cases := []struct {
		name   string
		deps   map[string]Pinger
		status int
	}{
		{name: "all up", deps: map[string]Pinger{"postgres": healthy, "redis": healthy}, status: http.StatusOK},
		{name: "redis down", deps: map[string]Pinger{"postgres": healthy, "redis": down}, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewMetricsHandler(nil, tc.deps)
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)

			handler.Ready(c)
			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), "postgres")
		})
	}
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	metrics.RecordEmailQueued("webinar_cancellation")
	handler := NewMetricsHandler(metrics, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	handler.Prometheus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "emails_queued_total")
}
