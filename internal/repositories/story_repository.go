package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/anonto42/folio/backend/internal/auth"
	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/live"
	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/mutation"
	"github.com/google/uuid"
)

// StoryRepository defines the interface for story operations
type StoryRepository interface {
	CreateStory(ctx context.Context, author auth.Identity, req models.CreateStoryRequest) (models.Story, error)
	GetStoryByID(ctx context.Context, id string) (models.Story, error)
	GetStoriesByUserIDs(ctx context.Context, userIDs []string) ([]models.Story, error)
	GetActiveStories(ctx context.Context) ([]models.Story, error)
	WatchActive(ctx context.Context) (*live.Subscription[models.Story], error)
	DeleteExpiredStories(ctx context.Context) (int, error)
	HasSeen(ctx context.Context, storyID, uid string) (bool, error)
	GetSeenStoryIDs(ctx context.Context, uid string, storyIDs []string) (map[string]bool, error)
}

type storeStoryRepository struct {
	batcher *mutation.Batcher
	now     func() time.Time
}

// NewStoreStoryRepository creates a StoryRepository over the document store
func NewStoreStoryRepository(b *mutation.Batcher) StoryRepository {
	return &storeStoryRepository{batcher: b, now: time.Now}
}

func storyPath(id string) string { return docstore.Join("stories", id) }

func (r *storeStoryRepository) CreateStory(ctx context.Context, author auth.Identity, req models.CreateStoryRequest) (models.Story, error) {
	if err := models.Validate(req); err != nil {
		return models.Story{}, fmt.Errorf("%w: %v", docstore.ErrInvalid, err)
	}
	story := models.Story{
		AuthorID:  author.UID,
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
		ExpiresAt: r.now().Add(models.StoryTTL),
	}
	fields, err := models.Encode(story)
	if err != nil {
		return models.Story{}, err
	}
	fields["createdAt"] = docstore.ServerTimestamp

	id := uuid.NewString()
	if err := r.batcher.Begin().Create(storyPath(id), fields).Commit(ctx); err != nil {
		return models.Story{}, err
	}
	return r.GetStoryByID(ctx, id)
}

func (r *storeStoryRepository) GetStoryByID(ctx context.Context, id string) (models.Story, error) {
	return getOne[models.Story](ctx, r.batcher.Store(), storyPath(id))
}

func (r *storeStoryRepository) activeQuery() docstore.Query {
	return docstore.Collection("stories").
		Where("expiresAt", docstore.OpGreater, r.now()).
		OrderBy("expiresAt", true)
}

func (r *storeStoryRepository) GetStoriesByUserIDs(ctx context.Context, userIDs []string) ([]models.Story, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	ids := make([]any, len(userIDs))
	for i, id := range userIDs {
		ids[i] = id
	}
	docs, err := docstore.GetAll(ctx, r.batcher.Store(), r.activeQuery().Where("authorId", docstore.OpIn, ids))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Story](docs), nil
}

func (r *storeStoryRepository) GetActiveStories(ctx context.Context) ([]models.Story, error) {
	docs, err := docstore.GetAll(ctx, r.batcher.Store(), r.activeQuery())
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Story](docs), nil
}

// WatchActive streams stories that had not expired when the watch started.
func (r *storeStoryRepository) WatchActive(ctx context.Context) (*live.Subscription[models.Story], error) {
	return watch(ctx, r.batcher, r.activeQuery(), models.Decode[models.Story])
}

// DeleteExpiredStories removes expired stories with their view records.
func (r *storeStoryRepository) DeleteExpiredStories(ctx context.Context) (int, error) {
	q := docstore.Collection("stories").Where("expiresAt", docstore.OpLessEqual, r.now())
	docs, err := docstore.GetAll(ctx, r.batcher.Store(), q)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, d := range docs {
		if err := deleteCollection(ctx, r.batcher, docstore.Join(d.Path, "views")); err != nil {
			return deleted, err
		}
		if err := r.batcher.Begin().Delete(d.Path).Commit(ctx); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (r *storeStoryRepository) HasSeen(ctx context.Context, storyID, uid string) (bool, error) {
	doc, err := r.batcher.Store().Get(ctx, docstore.Join(storyPath(storyID), "views", uid))
	if err != nil {
		return false, err
	}
	return doc.Exists, nil
}

func (r *storeStoryRepository) GetSeenStoryIDs(ctx context.Context, uid string, storyIDs []string) (map[string]bool, error) {
	result := make(map[string]bool)
	for _, id := range storyIDs {
		seen, err := r.HasSeen(ctx, id, uid)
		if err != nil {
			return nil, err
		}
		if seen {
			result[id] = true
		}
	}
	return result, nil
}
