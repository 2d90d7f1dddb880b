package handlers

import (
	"net/http"
	"time"

	sessionauth "github.com/anonto42/folio/backend/internal/auth"
	"github.com/anonto42/folio/backend/internal/middleware"
	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

const sessionTTL = 72 * time.Hour

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	userRepository repositories.UserRepository
	firebaseAuth   middleware.IDTokenVerifier
	jwtSecret      string
	devTokens      bool
}

// NewAuthHandler creates a new AuthHandler. firebaseAuth may be nil when the
// server runs without Firebase; devTokens enables unauthenticated token minting
// and must stay off in production.
func NewAuthHandler(userRepo repositories.UserRepository, firebaseAuth middleware.IDTokenVerifier, jwtSecret string, devTokens bool) *AuthHandler {
	return &AuthHandler{
		userRepository: userRepo,
		firebaseAuth:   firebaseAuth,
		jwtSecret:      jwtSecret,
		devTokens:      devTokens,
	}
}

// RegisterAuthRoutes registers the unauthenticated token exchange routes.
// Both issue local tokens, so nothing is registered without a JWT secret.
func (h *AuthHandler) RegisterAuthRoutes(g *echo.Group) {
	if h.jwtSecret == "" {
		return
	}
	if h.firebaseAuth != nil {
		g.POST("/firebase-login", h.FirebaseLogin)
	}
	if h.devTokens {
		g.POST("/dev-token", h.DevToken)
	}
}

// RegisterSessionRoutes registers routes that need a signed-in caller
func (h *AuthHandler) RegisterSessionRoutes(g *echo.Group) {
	g.POST("/auth/session", h.Session)
}

// FirebaseLoginRequest defines the request body for Firebase login
type FirebaseLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}

// FirebaseLogin verifies a Firebase ID token, makes sure the profile exists
// and issues a local session token
func (h *AuthHandler) FirebaseLogin(c echo.Context) error {
	var req FirebaseLoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	token, err := h.firebaseAuth.VerifyIDToken(c.Request().Context(), req.IDToken)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Firebase ID token")
	}
	return h.issue(c, middleware.IdentityFromToken(token))
}

// DevToken mints a session token for any uid. Only registered outside production.
func (h *AuthHandler) DevToken(c echo.Context) error {
	var req models.DevTokenRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	return h.issue(c, sessionauth.Identity{
		UID:           req.UID,
		DisplayName:   req.DisplayName,
		AvatarURL:     req.AvatarURL,
		EmailVerified: true,
	})
}

// Session returns the caller's profile, creating it on first sign-in
func (h *AuthHandler) Session(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	user, err := h.userRepository.EnsureProfile(c.Request().Context(), id)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"uid": id.UID, "profile": user})
}

func (h *AuthHandler) issue(c echo.Context, id sessionauth.Identity) error {
	ctx := sessionauth.WithIdentity(c.Request().Context(), id)
	user, err := h.userRepository.EnsureProfile(ctx, id)
	if err != nil {
		return storeError(err)
	}
	token, err := middleware.IssueToken(h.jwtSecret, id, sessionTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to generate token")
	}
	return c.JSON(http.StatusOK, echo.Map{"token": token, "profile": user})
}
