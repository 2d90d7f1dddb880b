package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/anonto42/folio/backend/internal/auth"
	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/repositories"
	"github.com/anonto42/folio/backend/internal/toggle"
	"github.com/labstack/echo/v4"
)

// currentIdentity returns the session owner set by the auth middleware.
func currentIdentity(c echo.Context) (auth.Identity, error) {
	id, ok := auth.FromContext(c.Request().Context())
	if !ok {
		return auth.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	return id, nil
}

// bindAndValidate decodes the request body into req and validates it.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	return c.Validate(req)
}

// idParam returns a path parameter that names a single document.
func idParam(c echo.Context, name string) (string, error) {
	id := c.Param(name)
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, "/%") {
		return "", echo.NewHTTPError(http.StatusBadRequest, "Invalid "+name)
	}
	return id, nil
}

// limitParam reads the "limit" query parameter, clamped to [1, max].
func limitParam(c echo.Context, def, max int) int {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit < 1 {
		return def
	}
	return min(limit, max)
}

// storeError maps store and domain errors to HTTP errors.
func storeError(err error) error {
	var he *echo.HTTPError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &he):
		return he
	case docstore.IsPermissionDenied(err), errors.Is(err, repositories.ErrNotParticipant):
		return echo.NewHTTPError(http.StatusForbidden, "Permission denied")
	case errors.Is(err, docstore.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	case errors.Is(err, docstore.ErrAlreadyExists):
		return echo.NewHTTPError(http.StatusConflict, "Already exists")
	case errors.Is(err, docstore.ErrInvalid), errors.Is(err, toggle.ErrSelf), errors.Is(err, repositories.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
