package repositories

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/anonto42/folio/backend/internal/auth"
	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/live"
	"github.com/anonto42/folio/backend/internal/media"
	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/mutation"
	"github.com/google/uuid"
)

// ErrInvalidTransition is returned when a status change skips the review flow.
var ErrInvalidTransition = errors.New("invalid status transition")

// bookSubcollections are removed before the book itself on delete. Nested
// collections under each document are removed before that document.
var bookSubcollections = []struct {
	name   string
	nested []string
}{
	{name: "comments", nested: []string{"likes"}},
	{name: "likes"},
	{name: "chapters"},
}

// Upload is a file that accompanies a create request.
type Upload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// BookRepository defines the interface for book data operations
type BookRepository interface {
	CreateBook(ctx context.Context, author auth.Identity, req models.CreateBookRequest, cover *Upload) (models.Book, error)
	GetBookByID(ctx context.Context, id string) (models.Book, error)
	GetBooksByAuthor(ctx context.Context, authorID string, limit int) ([]models.Book, error)
	Watch(ctx context.Context, id string) (*live.Subscription[models.Book], error)
	WatchPublished(ctx context.Context, limit int) (*live.Subscription[models.Book], error)
	SubmitForReview(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, to models.Status) error
	Autosave(ctx context.Context, id string, req models.AutosaveRequest) error
	AddChapter(ctx context.Context, bookID string, ch models.Chapter) (string, error)
	DeleteBook(ctx context.Context, id string) error
}

type storeBookRepository struct {
	batcher  *mutation.Batcher
	uploader media.Uploader
}

// NewStoreBookRepository creates a BookRepository. uploader may be nil when
// covers are not accepted.
func NewStoreBookRepository(b *mutation.Batcher, uploader media.Uploader) BookRepository {
	return &storeBookRepository{batcher: b, uploader: uploader}
}

func bookPath(id string) string { return docstore.Join("books", id) }

func (r *storeBookRepository) CreateBook(ctx context.Context, author auth.Identity, req models.CreateBookRequest, cover *Upload) (models.Book, error) {
	if err := models.Validate(req); err != nil {
		return models.Book{}, fmt.Errorf("%w: %v", docstore.ErrInvalid, err)
	}

	book := models.Book{
		Title:       req.Title,
		Description: req.Description,
		Genre:       req.Genre,
		AuthorID:    author.UID,
		AuthorName:  author.DisplayName,
		Status:      models.StatusDraft,
	}
	if cover != nil {
		if r.uploader == nil {
			return models.Book{}, errors.New("cover uploads are not configured")
		}
		link, err := r.uploader.Upload(ctx, cover.Name, cover.ContentType, cover.Body)
		if err != nil {
			return models.Book{}, fmt.Errorf("upload cover: %w", err)
		}
		book.CoverURL = link
	}

	fields, err := models.Encode(book)
	if err != nil {
		return models.Book{}, err
	}
	fields["createdAt"] = docstore.ServerTimestamp
	fields["updatedAt"] = docstore.ServerTimestamp

	id := uuid.NewString()
	if err := r.batcher.Begin().Create(bookPath(id), fields).Commit(ctx); err != nil {
		return models.Book{}, err
	}
	return r.GetBookByID(ctx, id)
}

func (r *storeBookRepository) GetBookByID(ctx context.Context, id string) (models.Book, error) {
	return getOne[models.Book](ctx, r.batcher.Store(), bookPath(id))
}

func (r *storeBookRepository) GetBooksByAuthor(ctx context.Context, authorID string, limit int) ([]models.Book, error) {
	q := docstore.Collection("books").
		Where("authorId", docstore.OpEqual, authorID).
		OrderBy("createdAt", true)
	if limit > 0 {
		q = q.WithLimit(limit)
	}
	docs, err := docstore.GetAll(ctx, r.batcher.Store(), q)
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Book](docs), nil
}

func (r *storeBookRepository) Watch(ctx context.Context, id string) (*live.Subscription[models.Book], error) {
	return watch(ctx, r.batcher, docstore.Doc(bookPath(id)), models.Decode[models.Book])
}

func (r *storeBookRepository) WatchPublished(ctx context.Context, limit int) (*live.Subscription[models.Book], error) {
	q := docstore.Collection("books").
		Where("status", docstore.OpEqual, string(models.StatusPublished)).
		OrderBy("createdAt", true)
	if limit > 0 {
		q = q.WithLimit(limit)
	}
	return watch(ctx, r.batcher, q, models.Decode[models.Book])
}

func (r *storeBookRepository) SubmitForReview(ctx context.Context, id string) error {
	return r.SetStatus(ctx, id, models.StatusPendingReview)
}

func (r *storeBookRepository) SetStatus(ctx context.Context, id string, to models.Status) error {
	book, err := r.GetBookByID(ctx, id)
	if err != nil {
		return err
	}
	if !book.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, book.Status, to)
	}
	return r.batcher.Begin().Update(bookPath(id), map[string]any{
		"status":    string(to),
		"updatedAt": docstore.ServerTimestamp,
	}).Commit(ctx)
}

// Autosave writes draft edits. Only drafts and rejected books are editable.
func (r *storeBookRepository) Autosave(ctx context.Context, id string, req models.AutosaveRequest) error {
	if err := models.Validate(req); err != nil {
		return fmt.Errorf("%w: %v", docstore.ErrInvalid, err)
	}
	book, err := r.GetBookByID(ctx, id)
	if err != nil {
		return err
	}
	if book.Status != models.StatusDraft && book.Status != models.StatusRejected {
		return fmt.Errorf("%w: %s books are not editable", ErrInvalidTransition, book.Status)
	}

	fields := map[string]any{"updatedAt": docstore.ServerTimestamp}
	if req.Title != "" {
		fields["title"] = req.Title
	}
	if req.Description != "" {
		fields["description"] = req.Description
	}
	return r.batcher.Begin().Update(bookPath(id), fields).Commit(ctx)
}

func (r *storeBookRepository) AddChapter(ctx context.Context, bookID string, ch models.Chapter) (string, error) {
	fields, err := models.Encode(ch)
	if err != nil {
		return "", err
	}
	fields["updatedAt"] = docstore.ServerTimestamp

	id := uuid.NewString()
	err = r.batcher.Begin().
		Create(docstore.Join(bookPath(bookID), "chapters", id), fields).
		Update(bookPath(bookID), map[string]any{
			"chapterCount": docstore.Increment{N: 1},
			"updatedAt":    docstore.ServerTimestamp,
		}).
		Commit(ctx)
	if err != nil {
		return "", err
	}
	return id, nil
}

// DeleteBook removes the book's subcollections in bounded commits and the
// book itself last. An interrupted delete leaves the book in place so the
// owner can retry.
func (r *storeBookRepository) DeleteBook(ctx context.Context, id string) error {
	if _, err := r.GetBookByID(ctx, id); err != nil {
		return err
	}
	for _, sub := range bookSubcollections {
		if err := deleteCollection(ctx, r.batcher, docstore.Join(bookPath(id), sub.name), sub.nested...); err != nil {
			return fmt.Errorf("delete book %s: %w", id, err)
		}
	}
	return r.batcher.Begin().DeleteExisting(bookPath(id)).Commit(ctx)
}

// deleteCollection removes every document in path, children first: the
// nested collections of a chunk are emptied before the chunk is deleted.
func deleteCollection(ctx context.Context, b *mutation.Batcher, path string, nested ...string) error {
	docs, err := docstore.GetAll(ctx, b.Store(), docstore.Collection(path))
	if err != nil {
		return err
	}
	for start := 0; start < len(docs); start += maxBatchWrites {
		end := min(start+maxBatchWrites, len(docs))
		for _, d := range docs[start:end] {
			for _, sub := range nested {
				if err := deleteCollection(ctx, b, docstore.Join(d.Path, sub)); err != nil {
					return err
				}
			}
		}
		batch := b.Begin()
		for _, d := range docs[start:end] {
			batch.Delete(d.Path)
		}
		if err := batch.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}
