package repositories

import (
	"context"
	"errors"

	"github.com/anonto42/folio/backend/internal/auth"
	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/live"
	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/mutation"
)

// UserRepository defines the interface for user profile operations
type UserRepository interface {
	EnsureProfile(ctx context.Context, id auth.Identity) (models.User, error)
	GetUserByID(ctx context.Context, uid string) (models.User, error)
	UpdateProfile(ctx context.Context, uid, displayName, avatarURL string) error
	Watch(ctx context.Context, uid string) (*live.Subscription[models.User], error)
	Followers(ctx context.Context, uid string) ([]models.Membership, error)
	Following(ctx context.Context, uid string) ([]models.Membership, error)
	Favorites(ctx context.Context, uid string) ([]models.Membership, error)
}

type storeUserRepository struct {
	batcher *mutation.Batcher
}

// NewStoreUserRepository creates a UserRepository over the document store
func NewStoreUserRepository(b *mutation.Batcher) UserRepository {
	return &storeUserRepository{batcher: b}
}

func userPath(uid string) string { return docstore.Join("users", uid) }

// EnsureProfile creates the profile document on first sign-in so counters
// hanging off it can be incremented, and returns the stored profile.
func (r *storeUserRepository) EnsureProfile(ctx context.Context, id auth.Identity) (models.User, error) {
	user, err := r.GetUserByID(ctx, id.UID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return models.User{}, err
	}

	fields := map[string]any{
		"displayName":    id.DisplayName,
		"followerCount":  int64(0),
		"followingCount": int64(0),
		"createdAt":      docstore.ServerTimestamp,
	}
	if id.AvatarURL != "" {
		fields["avatarUrl"] = id.AvatarURL
	}
	err = r.batcher.Begin().Create(userPath(id.UID), fields).Commit(ctx)
	if err != nil && !errors.Is(err, docstore.ErrAlreadyExists) {
		return models.User{}, err
	}
	return r.GetUserByID(ctx, id.UID)
}

func (r *storeUserRepository) GetUserByID(ctx context.Context, uid string) (models.User, error) {
	return getOne[models.User](ctx, r.batcher.Store(), userPath(uid))
}

func (r *storeUserRepository) UpdateProfile(ctx context.Context, uid, displayName, avatarURL string) error {
	fields := map[string]any{}
	if displayName != "" {
		fields["displayName"] = displayName
	}
	if avatarURL != "" {
		fields["avatarUrl"] = avatarURL
	}
	if len(fields) == 0 {
		return nil
	}
	return r.batcher.Begin().Update(userPath(uid), fields).Commit(ctx)
}

func (r *storeUserRepository) Watch(ctx context.Context, uid string) (*live.Subscription[models.User], error) {
	return watch(ctx, r.batcher, docstore.Doc(userPath(uid)), models.Decode[models.User])
}

func (r *storeUserRepository) memberships(ctx context.Context, path string) ([]models.Membership, error) {
	docs, err := docstore.GetAll(ctx, r.batcher.Store(), docstore.Collection(path).OrderBy("createdAt", true))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Membership](docs), nil
}

func (r *storeUserRepository) Followers(ctx context.Context, uid string) ([]models.Membership, error) {
	return r.memberships(ctx, docstore.Join("users", uid, "followers"))
}

func (r *storeUserRepository) Following(ctx context.Context, uid string) ([]models.Membership, error) {
	return r.memberships(ctx, docstore.Join("users", uid, "following"))
}

func (r *storeUserRepository) Favorites(ctx context.Context, uid string) ([]models.Membership, error) {
	return r.memberships(ctx, docstore.Join("users", uid, "favorites"))
}
