package handlers

import (
	"net/http"

	"github.com/anonto42/folio/backend/internal/repositories"
	"github.com/anonto42/folio/backend/internal/toggle"
	"github.com/labstack/echo/v4"
)

// FavoriteHandler handles book favorites
type FavoriteHandler struct {
	reconciler     *toggle.Reconciler
	userRepository repositories.UserRepository
}

// NewFavoriteHandler creates a new FavoriteHandler
func NewFavoriteHandler(reconciler *toggle.Reconciler, userRepo repositories.UserRepository) *FavoriteHandler {
	return &FavoriteHandler{reconciler: reconciler, userRepository: userRepo}
}

// RegisterFavoriteRoutes registers favorite-related routes
func (h *FavoriteHandler) RegisterFavoriteRoutes(g *echo.Group) {
	g.POST("/books/:id/favorite", h.Favorite)
	g.DELETE("/books/:id/favorite", h.Unfavorite)
	g.GET("/books/:id/favorite/status", h.Status)
	g.GET("/me/favorites", h.GetFavorites)
}

// Favorite adds a book to the caller's favorites. The author is notified in
// the background.
func (h *FavoriteHandler) Favorite(c echo.Context) error {
	return activate(c, h.reconciler, favorite)
}

// Unfavorite removes a book from the caller's favorites
func (h *FavoriteHandler) Unfavorite(c echo.Context) error {
	return deactivate(c, h.reconciler, favorite)
}

// Status reports whether the caller has favorited the book
func (h *FavoriteHandler) Status(c echo.Context) error {
	return toggleStatus(c, h.reconciler, favorite)
}

// GetFavorites lists the caller's favorite memberships, oldest first
func (h *FavoriteHandler) GetFavorites(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	favorites, err := h.userRepository.Favorites(c.Request().Context(), id.UID)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, favorites)
}
