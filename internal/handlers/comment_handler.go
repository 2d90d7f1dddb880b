package handlers

import (
	"net/http"

	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/notify"
	"github.com/anonto42/folio/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

// CommentHandler handles comment threads on books and reels
type CommentHandler struct {
	commentRepository repositories.CommentRepository
	fanout            *notify.Fanout
	store             docstore.Store
}

// NewCommentHandler creates a new CommentHandler. store is used to resolve
// notification recipients.
func NewCommentHandler(commentRepo repositories.CommentRepository, fanout *notify.Fanout, store docstore.Store) *CommentHandler {
	return &CommentHandler{
		commentRepository: commentRepo,
		fanout:            fanout,
		store:             store,
	}
}

// RegisterCommentRoutes registers comment-related routes
func (h *CommentHandler) RegisterCommentRoutes(g *echo.Group) {
	for _, collection := range []string{"books", "reels"} {
		target := targetFor(collection)
		g.POST("/"+collection+"/:id/comments", h.CreateComment(target))
		g.GET("/"+collection+"/:id/comments", h.GetComments(target))
		g.GET("/"+collection+"/:id/comments/:comment_id", h.GetComment(target))
		g.DELETE("/"+collection+"/:id/comments/:comment_id", h.DeleteComment(target))
	}
}

func targetFor(collection string) func(c echo.Context) repositories.CommentTarget {
	return func(c echo.Context) repositories.CommentTarget {
		return repositories.CommentTarget{Collection: collection, ID: c.Param("id")}
	}
}

// CreateComment posts a comment or reply. The write and its counters commit
// together; the owner notification follows in the background.
func (h *CommentHandler) CreateComment(target func(echo.Context) repositories.CommentTarget) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := currentIdentity(c)
		if err != nil {
			return err
		}
		var req models.CreateCommentRequest
		if err := bindAndValidate(c, &req); err != nil {
			return err
		}

		ctx := c.Request().Context()
		t := target(c)
		comment, err := h.commentRepository.CreateComment(ctx, id, t, req)
		if err != nil {
			return storeError(err)
		}
		if h.fanout != nil {
			h.fanout.CommentCreated(ctx, h.store, t, comment)
		}
		return c.JSON(http.StatusCreated, comment)
	}
}

// GetComments retrieves the newest comments of a thread
func (h *CommentHandler) GetComments(target func(echo.Context) repositories.CommentTarget) echo.HandlerFunc {
	return func(c echo.Context) error {
		comments, err := h.commentRepository.GetComments(c.Request().Context(), target(c), limitParam(c, 50, 200))
		if err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusOK, comments)
	}
}

// GetComment retrieves a single comment
func (h *CommentHandler) GetComment(target func(echo.Context) repositories.CommentTarget) echo.HandlerFunc {
	return func(c echo.Context) error {
		comment, err := h.commentRepository.GetCommentByID(c.Request().Context(), target(c), c.Param("comment_id"))
		if err != nil {
			return storeError(err)
		}
		return c.JSON(http.StatusOK, comment)
	}
}

// DeleteComment removes a comment with its replies. Access rules decide who
// may delete.
func (h *CommentHandler) DeleteComment(target func(echo.Context) repositories.CommentTarget) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := currentIdentity(c); err != nil {
			return err
		}
		if err := h.commentRepository.DeleteComment(c.Request().Context(), target(c), c.Param("comment_id")); err != nil {
			return storeError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
