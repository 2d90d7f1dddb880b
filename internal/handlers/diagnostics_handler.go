package handlers

import (
	"net/http"

	"github.com/anonto42/folio/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

// DiagnosticsHandler exposes the caller's recorded permission rejections
type DiagnosticsHandler struct {
	diagnosticsRepository repositories.DiagnosticsRepository
}

// NewDiagnosticsHandler creates a new DiagnosticsHandler
func NewDiagnosticsHandler(repo repositories.DiagnosticsRepository) *DiagnosticsHandler {
	return &DiagnosticsHandler{diagnosticsRepository: repo}
}

// RegisterDiagnosticsRoutes registers diagnostics routes
func (h *DiagnosticsHandler) RegisterDiagnosticsRoutes(g *echo.Group) {
	g.GET("/me/permission-errors", h.GetRecent)
}

// GetRecent lists the caller's newest rejected reads and writes
func (h *DiagnosticsHandler) GetRecent(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	rows, err := h.diagnosticsRepository.Recent(c.Request().Context(), id.UID, limitParam(c, 50, 200))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rows)
}
