package handlers

import (
	"net/http"

	"github.com/anonto42/folio/backend/internal/toggle"
	"github.com/labstack/echo/v4"
)

// ToggleResponse reports a toggle's state after a request.
type ToggleResponse struct {
	Kind    string `json:"kind"`
	Target  string `json:"target"`
	Active  bool   `json:"active"`
	Changed bool   `json:"changed"`
}

// LikeHandler handles likes on books, reels and comments
type LikeHandler struct {
	reconciler *toggle.Reconciler
}

// NewLikeHandler creates a new LikeHandler
func NewLikeHandler(reconciler *toggle.Reconciler) *LikeHandler {
	return &LikeHandler{reconciler: reconciler}
}

// RegisterLikeRoutes registers like-related routes
func (h *LikeHandler) RegisterLikeRoutes(g *echo.Group) {
	g.POST("/books/:id/likes", h.like(bookLike))
	g.DELETE("/books/:id/likes", h.unlike(bookLike))
	g.GET("/books/:id/likes/status", h.status(bookLike))
	g.POST("/reels/:id/likes", h.like(reelLike))
	g.DELETE("/reels/:id/likes", h.unlike(reelLike))
	g.GET("/reels/:id/likes/status", h.status(reelLike))
	for _, collection := range []string{"books", "reels"} {
		g.POST("/"+collection+"/:id/comments/:comment_id/likes", h.like(commentLike(collection)))
		g.DELETE("/"+collection+"/:id/comments/:comment_id/likes", h.unlike(commentLike(collection)))
	}
}

// kindFor resolves the toggle kind and target for a request.
type kindFor func(c echo.Context) (toggle.Kind, string, error)

// targetOf resolves a kind whose target is the :id parameter.
func targetOf(kind toggle.Kind) kindFor {
	return func(c echo.Context) (toggle.Kind, string, error) {
		id, err := idParam(c, "id")
		return kind, id, err
	}
}

var (
	bookLike  = targetOf(toggle.BookLike)
	reelLike  = targetOf(toggle.ReelLike)
	favorite  = targetOf(toggle.Favorite)
	follow    = targetOf(toggle.Follow)
	storyView = targetOf(toggle.StoryView)
)

func commentLike(collection string) kindFor {
	return func(c echo.Context) (toggle.Kind, string, error) {
		parent, err := idParam(c, "id")
		if err != nil {
			return toggle.Kind{}, "", err
		}
		id, err := idParam(c, "comment_id")
		return toggle.CommentLike(collection, parent), id, err
	}
}

func (h *LikeHandler) like(resolve kindFor) echo.HandlerFunc {
	return func(c echo.Context) error {
		return activate(c, h.reconciler, resolve)
	}
}

func (h *LikeHandler) unlike(resolve kindFor) echo.HandlerFunc {
	return func(c echo.Context) error {
		return deactivate(c, h.reconciler, resolve)
	}
}

func (h *LikeHandler) status(resolve kindFor) echo.HandlerFunc {
	return func(c echo.Context) error {
		return toggleStatus(c, h.reconciler, resolve)
	}
}

func activate(c echo.Context, r *toggle.Reconciler, resolve kindFor) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	kind, target, err := resolve(c)
	if err != nil {
		return err
	}
	changed, err := r.Activate(c.Request().Context(), kind, id.UID, target)
	if err != nil {
		return storeError(err)
	}
	status := http.StatusOK
	if changed {
		status = http.StatusCreated
	}
	return c.JSON(status, ToggleResponse{Kind: kind.Name, Target: target, Active: true, Changed: changed})
}

func deactivate(c echo.Context, r *toggle.Reconciler, resolve kindFor) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	kind, target, err := resolve(c)
	if err != nil {
		return err
	}
	changed, err := r.Deactivate(c.Request().Context(), kind, id.UID, target)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, ToggleResponse{Kind: kind.Name, Target: target, Active: false, Changed: changed})
}

func toggleStatus(c echo.Context, r *toggle.Reconciler, resolve kindFor) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	kind, target, err := resolve(c)
	if err != nil {
		return err
	}
	st, err := r.State(c.Request().Context(), kind, id.UID, target)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, ToggleResponse{Kind: kind.Name, Target: target, Active: st == toggle.Present})
}
