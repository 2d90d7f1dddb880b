package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/labstack/echo/v4"
)

// HealthHandler reports whether the document store answers reads.
type HealthHandler struct {
	store   docstore.Store
	backend string
}

// NewHealthHandler creates a HealthHandler. store must not be wrapped in the
// access guard since the probe runs without a session.
func NewHealthHandler(store docstore.Store, backend string) *HealthHandler {
	return &HealthHandler{store: store, backend: backend}
}

// HealthCheck probes the store with a single document read
func (h *HealthHandler) HealthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if _, err := h.store.Get(ctx, "health/probe"); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"status":  "unhealthy",
			"service": "folio-api",
			"store":   h.backend,
			"error":   err.Error(),
		})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "healthy",
		"service": "folio-api",
		"store":   h.backend,
	})
}
