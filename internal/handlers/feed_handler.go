package handlers

import (
	"math"
	"net/http"
	"sort"
	"strconv"

	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/repositories"
	"github.com/anonto42/folio/backend/internal/toggle"
	"github.com/labstack/echo/v4"
)

// booksPerAuthor caps how many recent books each followed author contributes.
const booksPerAuthor = 50

// FeedHandler handles feed-related HTTP requests
type FeedHandler struct {
	bookRepository repositories.BookRepository
	userRepository repositories.UserRepository
	reconciler     *toggle.Reconciler
}

// NewFeedHandler creates a new FeedHandler
func NewFeedHandler(bookRepo repositories.BookRepository, userRepo repositories.UserRepository, reconciler *toggle.Reconciler) *FeedHandler {
	return &FeedHandler{
		bookRepository: bookRepo,
		userRepository: userRepo,
		reconciler:     reconciler,
	}
}

// RegisterFeedRoutes registers feed-related routes
func (h *FeedHandler) RegisterFeedRoutes(g *echo.Group) {
	g.GET("/feed", h.GetFeed)
}

// FeedBook is a published book with the caller's toggle flags
type FeedBook struct {
	models.Book
	IsLiked     bool `json:"isLiked"`
	IsFavorited bool `json:"isFavorited"`
}

// GetFeed returns published books by the authors the caller follows, newest first
func (h *FeedHandler) GetFeed(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	limit := limitParam(c, 10, 50)

	following, err := h.userRepository.Following(ctx, id.UID)
	if err != nil {
		return storeError(err)
	}
	var books []models.Book
	for _, f := range following {
		authored, err := h.bookRepository.GetBooksByAuthor(ctx, f.TargetID, booksPerAuthor)
		if err != nil {
			return storeError(err)
		}
		for _, b := range authored {
			if b.Status == models.StatusPublished {
				books = append(books, b)
			}
		}
	}
	sort.SliceStable(books, func(i, j int) bool {
		return books[i].CreatedAt.After(books[j].CreatedAt)
	})

	totalItems := len(books)
	start := totalItems
	if page-1 <= totalItems/limit {
		start = min((page-1)*limit, totalItems)
	}
	end := min(start+limit, totalItems)

	items := make([]FeedBook, 0, end-start)
	for _, b := range books[start:end] {
		item := FeedBook{Book: b}
		if st, err := h.reconciler.State(ctx, toggle.BookLike, id.UID, b.ID); err == nil {
			item.IsLiked = st == toggle.Present
		}
		if st, err := h.reconciler.State(ctx, toggle.Favorite, id.UID, b.ID); err == nil {
			item.IsFavorited = st == toggle.Present
		}
		items = append(items, item)
	}

	totalPages := int(math.Ceil(float64(totalItems) / float64(limit)))
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"books": items,
		},
		"meta": echo.Map{
			"currentPage":     page,
			"totalPages":      totalPages,
			"totalItems":      totalItems,
			"itemsPerPage":    limit,
			"hasNextPage":     page < totalPages,
			"hasPreviousPage": page > 1,
		},
	})
}
