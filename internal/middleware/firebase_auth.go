package middleware

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	sessionauth "github.com/anonto42/folio/backend/internal/auth"
	"github.com/labstack/echo/v4"
)

// IDTokenVerifier verifies Firebase ID tokens. *auth.Client implements it.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// IdentityFromToken maps verified Firebase claims to a session identity.
func IdentityFromToken(token *auth.Token) sessionauth.Identity {
	id := sessionauth.Identity{UID: token.UID}
	id.DisplayName, _ = token.Claims["name"].(string)
	id.AvatarURL, _ = token.Claims["picture"].(string)
	id.EmailVerified, _ = token.Claims["email_verified"].(bool)
	return id
}

// FirebaseAuthMiddleware verifies the bearer Firebase ID token and puts the
// session identity on the request context.
func FirebaseAuthMiddleware(verifier IDTokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			idToken, err := bearerToken(c)
			if err != nil {
				return err
			}

			token, err := verifier.VerifyIDToken(c.Request().Context(), idToken)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired ID token")
			}

			setIdentity(c, IdentityFromToken(token))

			return next(c)
		}
	}
}

// bearerToken extracts the token from a "Bearer <token>" Authorization header.
// Browsers cannot set headers on WebSocket upgrades, so a "token" query
// parameter is accepted as well.
func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if t := c.QueryParam("token"); t != "" {
			return t, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Authorization header is missing")
	}

	tokenParts := strings.Split(authHeader, " ")
	if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Authorization header must be in Bearer format")
	}
	return tokenParts[1], nil
}

func setIdentity(c echo.Context, id sessionauth.Identity) {
	c.SetRequest(c.Request().WithContext(sessionauth.WithIdentity(c.Request().Context(), id)))
	c.Set("uid", id.UID)
}
