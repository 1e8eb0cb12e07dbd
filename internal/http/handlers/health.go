package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/store-composite/internal/resilience"
)

// BreakerReporter exposes per-backend circuit state.
type BreakerReporter interface {
	CircuitBreakers() map[string]resilience.CircuitState
}

type HealthHandler struct {
	breakers BreakerReporter
}

func NewHealthHandler(breakers BreakerReporter) *HealthHandler {
	return &HealthHandler{breakers: breakers}
}

// GET /healthcheck
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	body := gin.H{"status": "UP"}
	if h.breakers != nil {
		body["circuitBreakers"] = h.breakers.CircuitBreakers()
	}
	c.JSON(http.StatusOK, body)
}

// GET /readyz
func (h *HealthHandler) Ready(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
