package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// FirstOf accepts a request as soon as one of the authenticators accepts it,
// trying them in order. The last rejection is returned when none does.
func FirstOf(authenticators ...echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var err error = echo.NewHTTPError(http.StatusUnauthorized, "Authentication is not configured")
			for _, authenticate := range authenticators {
				accepted := false
				err = authenticate(func(echo.Context) error {
					accepted = true
					return nil
				})(c)
				if accepted {
					return next(c)
				}
			}
			return err
		}
	}
}
