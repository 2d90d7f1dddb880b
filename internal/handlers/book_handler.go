package handlers

import (
	"net/http"

	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

// maxCoverSize bounds cover uploads.
const maxCoverSize = 10 << 20

// BookHandler handles HTTP requests related to books
type BookHandler struct {
	bookRepository repositories.BookRepository
}

// NewBookHandler creates a new BookHandler
func NewBookHandler(bookRepo repositories.BookRepository) *BookHandler {
	return &BookHandler{bookRepository: bookRepo}
}

// RegisterBookRoutes registers book-related routes
func (h *BookHandler) RegisterBookRoutes(g *echo.Group) {
	g.POST("/books", h.CreateBook)
	g.GET("/books/:id", h.GetBook)
	g.GET("/users/:id/books", h.GetBooksByAuthor)
	g.PUT("/books/:id/autosave", h.Autosave)
	g.POST("/books/:id/submit", h.SubmitForReview)
	g.PUT("/books/:id/status", h.SetStatus)
	g.POST("/books/:id/chapters", h.AddChapter)
	g.DELETE("/books/:id", h.DeleteBook)
}

// CreateBook creates a draft. The body is JSON, or a multipart form with the
// same fields and an optional "cover" file that is uploaded first.
func (h *BookHandler) CreateBook(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	var req models.CreateBookRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	var cover *repositories.Upload
	if fh, err := c.FormFile("cover"); err == nil {
		if fh.Size > maxCoverSize {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "Cover is too large")
		}
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Unreadable cover")
		}
		defer f.Close()
		cover = &repositories.Upload{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Body: f}
	}

	book, err := h.bookRepository.CreateBook(c.Request().Context(), id, req, cover)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusCreated, book)
}

// GetBook retrieves a book by ID
func (h *BookHandler) GetBook(c echo.Context) error {
	book, err := h.bookRepository.GetBookByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, book)
}

// GetBooksByAuthor lists an author's books, newest first
func (h *BookHandler) GetBooksByAuthor(c echo.Context) error {
	books, err := h.bookRepository.GetBooksByAuthor(c.Request().Context(), c.Param("id"), limitParam(c, 20, 100))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, books)
}

// Autosave stores draft edits
func (h *BookHandler) Autosave(c echo.Context) error {
	var req models.AutosaveRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.bookRepository.Autosave(c.Request().Context(), c.Param("id"), req); err != nil {
		return storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SubmitForReview moves a draft to pending review
func (h *BookHandler) SubmitForReview(c echo.Context) error {
	if err := h.bookRepository.SubmitForReview(c.Request().Context(), c.Param("id")); err != nil {
		return storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// StatusRequest is the body of a moderation decision.
type StatusRequest struct {
	Status models.Status `json:"status" validate:"required,oneof=draft pending_review published rejected"`
}

// SetStatus applies a moderation decision. Access rules restrict publishing
// to admins.
func (h *BookHandler) SetStatus(c echo.Context) error {
	var req StatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.bookRepository.SetStatus(c.Request().Context(), c.Param("id"), req.Status); err != nil {
		return storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AddChapter appends a chapter to a book
func (h *BookHandler) AddChapter(c echo.Context) error {
	var ch models.Chapter
	if err := bindAndValidate(c, &ch); err != nil {
		return err
	}
	chapterID, err := h.bookRepository.AddChapter(c.Request().Context(), c.Param("id"), ch)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": chapterID})
}

// DeleteBook removes a book with its comments, likes and chapters
func (h *BookHandler) DeleteBook(c echo.Context) error {
	if err := h.bookRepository.DeleteBook(c.Request().Context(), c.Param("id")); err != nil {
		return storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
