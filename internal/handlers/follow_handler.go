package handlers

import (
	"net/http"

	"github.com/anonto42/folio/backend/internal/repositories"
	"github.com/anonto42/folio/backend/internal/toggle"
	"github.com/labstack/echo/v4"
)

// FollowHandler handles HTTP requests related to follows
type FollowHandler struct {
	reconciler     *toggle.Reconciler
	userRepository repositories.UserRepository
}

// NewFollowHandler creates a new FollowHandler
func NewFollowHandler(reconciler *toggle.Reconciler, userRepo repositories.UserRepository) *FollowHandler {
	return &FollowHandler{reconciler: reconciler, userRepository: userRepo}
}

// RegisterFollowRoutes registers follow-related routes
func (h *FollowHandler) RegisterFollowRoutes(g *echo.Group) {
	g.POST("/users/:id/follow", h.Follow)
	g.DELETE("/users/:id/follow", h.Unfollow)
	g.GET("/users/:id/follow/status", h.Status)
	g.GET("/users/:id/followers", h.GetFollowers)
	g.GET("/users/:id/following", h.GetFollowing)
}

// Follow makes the caller follow a user
func (h *FollowHandler) Follow(c echo.Context) error {
	return activate(c, h.reconciler, follow)
}

// Unfollow makes the caller stop following a user
func (h *FollowHandler) Unfollow(c echo.Context) error {
	return deactivate(c, h.reconciler, follow)
}

// Status reports whether the caller follows a user
func (h *FollowHandler) Status(c echo.Context) error {
	return toggleStatus(c, h.reconciler, follow)
}

// GetFollowers lists a user's followers
func (h *FollowHandler) GetFollowers(c echo.Context) error {
	followers, err := h.userRepository.Followers(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": c.Param("id"), "followers": followers})
}

// GetFollowing lists the users a user follows
func (h *FollowHandler) GetFollowing(c echo.Context) error {
	following, err := h.userRepository.Following(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": c.Param("id"), "following": following})
}
