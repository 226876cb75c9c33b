package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/adg-admissions-api/internal/service"
)

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// PingContext implements Pinger.
func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics      *service.MetricsService
	dependencies map[string]Pinger
}

// NewMetricsHandler constructs a metrics handler. dependencies are checked by Ready.
func NewMetricsHandler(metrics *service.MetricsService, dependencies map[string]Pinger) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, dependencies: dependencies}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports 503 until every dependency answers a ping.
func (h *MetricsHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.dependencies))
	status := http.StatusOK
	for name, dep := range h.dependencies {
		if dep == nil {
			continue
		}
		if err := dep.PingContext(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	state := "ready"
	if status != http.StatusOK {
		state = "unavailable"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
