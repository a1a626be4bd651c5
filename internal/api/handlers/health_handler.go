package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// HealthHandler answers liveness and readiness probes. The sync store is the
// only hard dependency; a broker outage degrades dispatch but does not make
// the service unhealthy.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

func (h *HealthHandler) pingDB(c echo.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(c.Request().Context())
}

// Health handles GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	resp := HealthResponse{
		Status:   "healthy",
		Services: map[string]string{"database": "healthy"},
	}
	code := http.StatusOK

	if err := h.pingDB(c); err != nil {
		resp.Status = "unhealthy"
		resp.Services["database"] = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	return c.JSON(code, resp)
}

// Ready handles GET /ready. Not ready means the load balancer should hold
// traffic; webhook deliveries retried by the provider will land later.
func (h *HealthHandler) Ready(c echo.Context) error {
	if err := h.pingDB(c); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database ping failed",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
	})
}
