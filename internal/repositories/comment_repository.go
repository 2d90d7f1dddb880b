package repositories

import (
	"context"
	"fmt"

	"github.com/anonto42/folio/backend/internal/auth"
	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/live"
	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/mutation"
	"github.com/google/uuid"
)

// CommentTarget is the entity a comment thread hangs off, e.g. books/b1.
type CommentTarget struct {
	Collection string
	ID         string
}

// BookComments and ReelComments name the two commentable entities.
func BookComments(id string) CommentTarget { return CommentTarget{Collection: "books", ID: id} }
func ReelComments(id string) CommentTarget { return CommentTarget{Collection: "reels", ID: id} }

func (t CommentTarget) path() string { return docstore.Join(t.Collection, t.ID) }

func (t CommentTarget) comments() string { return docstore.Join(t.Collection, t.ID, "comments") }

// CommentRepository defines the interface for comment data operations
type CommentRepository interface {
	CreateComment(ctx context.Context, author auth.Identity, target CommentTarget, req models.CreateCommentRequest) (models.Comment, error)
	GetCommentByID(ctx context.Context, target CommentTarget, id string) (models.Comment, error)
	GetComments(ctx context.Context, target CommentTarget, limit int) ([]models.Comment, error)
	Watch(ctx context.Context, target CommentTarget, limit int) (*live.Subscription[models.Comment], error)
	DeleteComment(ctx context.Context, target CommentTarget, id string) error
}

type storeCommentRepository struct {
	batcher *mutation.Batcher
}

// NewStoreCommentRepository creates a CommentRepository over the document store
func NewStoreCommentRepository(b *mutation.Batcher) CommentRepository {
	return &storeCommentRepository{batcher: b}
}

func commentsQuery(target CommentTarget, limit int) docstore.Query {
	q := docstore.Collection(target.comments()).OrderBy("createdAt", false)
	if limit > 0 {
		q = q.WithLimit(limit)
	}
	return q
}

// CreateComment writes the comment together with the entity's commentCount
// and, for replies, the parent's replyCount. Notifying the entity owner is
// left to the caller.
func (r *storeCommentRepository) CreateComment(ctx context.Context, author auth.Identity, target CommentTarget, req models.CreateCommentRequest) (models.Comment, error) {
	if err := models.Validate(req); err != nil {
		return models.Comment{}, fmt.Errorf("%w: %v", docstore.ErrInvalid, err)
	}
	comment := models.Comment{
		AuthorID:     author.UID,
		AuthorName:   author.DisplayName,
		AuthorAvatar: author.AvatarURL,
		Text:         req.Text,
		ParentID:     req.ParentID,
	}
	fields, err := models.Encode(comment)
	if err != nil {
		return models.Comment{}, err
	}
	fields["createdAt"] = docstore.ServerTimestamp

	id := uuid.NewString()
	b := r.batcher.Begin().
		Create(docstore.Join(target.comments(), id), fields).
		Increment(target.path(), "commentCount", 1)
	if req.ParentID != "" {
		b.Increment(docstore.Join(target.comments(), req.ParentID), "replyCount", 1)
	}
	if err := b.Commit(ctx); err != nil {
		return models.Comment{}, err
	}
	return r.GetCommentByID(ctx, target, id)
}

func (r *storeCommentRepository) GetCommentByID(ctx context.Context, target CommentTarget, id string) (models.Comment, error) {
	return getOne[models.Comment](ctx, r.batcher.Store(), docstore.Join(target.comments(), id))
}

func (r *storeCommentRepository) GetComments(ctx context.Context, target CommentTarget, limit int) ([]models.Comment, error) {
	docs, err := docstore.GetAll(ctx, r.batcher.Store(), commentsQuery(target, limit))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Comment](docs), nil
}

func (r *storeCommentRepository) Watch(ctx context.Context, target CommentTarget, limit int) (*live.Subscription[models.Comment], error) {
	return watch(ctx, r.batcher, commentsQuery(target, limit), models.Decode[models.Comment])
}

// DeleteComment removes a comment with its replies and likes and adjusts the
// counters in the same commit.
func (r *storeCommentRepository) DeleteComment(ctx context.Context, target CommentTarget, id string) error {
	comment, err := r.GetCommentByID(ctx, target, id)
	if err != nil {
		return err
	}
	replies, err := docstore.GetAll(ctx, r.batcher.Store(),
		docstore.Collection(target.comments()).Where("parentId", docstore.OpEqual, id))
	if err != nil {
		return err
	}

	b := r.batcher.Begin().DeleteExisting(docstore.Join(target.comments(), id))
	owners := []string{docstore.Join(target.comments(), id)}
	for _, reply := range replies {
		b.Delete(reply.Path)
		owners = append(owners, reply.Path)
	}
	for _, owner := range owners {
		likes, err := docstore.GetAll(ctx, r.batcher.Store(), docstore.Collection(docstore.Join(owner, "likes")))
		if err != nil {
			return err
		}
		for _, like := range likes {
			b.Delete(like.Path)
		}
	}
	b.Increment(target.path(), "commentCount", -int64(1+len(replies)))

	if comment.ParentID != "" {
		parent := docstore.Join(target.comments(), comment.ParentID)
		doc, err := r.batcher.Store().Get(ctx, parent)
		if err != nil {
			return err
		}
		if doc.Exists {
			b.Increment(parent, "replyCount", -1)
		}
	}
	return b.Commit(ctx)
}
