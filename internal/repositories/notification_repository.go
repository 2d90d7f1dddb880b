package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/live"
	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/mutation"
	"github.com/google/uuid"
)

// NotificationRepository defines the interface for inbox operations
type NotificationRepository interface {
	Create(ctx context.Context, recipientID string, n models.Notification) (string, error)
	List(ctx context.Context, recipientID string, limit int) ([]models.Notification, error)
	Watch(ctx context.Context, recipientID string, limit int) (*live.Subscription[models.Notification], error)
	GetGrouped(ctx context.Context, recipientID string) (Grouped, error)
	GetUnreadCount(ctx context.Context, recipientID string) (int64, error)
	MarkAsRead(ctx context.Context, recipientID, notificationID string) error
	MarkAllAsRead(ctx context.Context, recipientID string) (int, error)
	GetPreferences(ctx context.Context, uid string) (models.NotificationPreferences, error)
	SetPreferences(ctx context.Context, uid string, prefs models.NotificationPreferences) error
}

// Grouped is an inbox split by age, newest first within each group.
type Grouped struct {
	Today     []models.Notification `json:"today"`
	Yesterday []models.Notification `json:"yesterday"`
	ThisWeek  []models.Notification `json:"thisWeek"`
	Older     []models.Notification `json:"older"`
}

// maxBatchWrites keeps a single commit under the store's per-batch limit.
const maxBatchWrites = 450

type storeNotificationRepository struct {
	batcher *mutation.Batcher
	now     func() time.Time
}

func NewStoreNotificationRepository(b *mutation.Batcher) NotificationRepository {
	return &storeNotificationRepository{batcher: b, now: time.Now}
}

func inboxPath(uid string) string {
	return docstore.Join("users", uid, "notifications")
}

func preferencesPath(uid string) string {
	return docstore.Join("users", uid, "settings", "notifications")
}

func inboxQuery(uid string, limit int) docstore.Query {
	q := docstore.Collection(inboxPath(uid)).OrderBy("createdAt", true)
	if limit > 0 {
		q = q.WithLimit(limit)
	}
	return q
}

func (r *storeNotificationRepository) Create(ctx context.Context, recipientID string, n models.Notification) (string, error) {
	n.Read = false
	fields, err := models.Encode(n)
	if err != nil {
		return "", err
	}
	fields["createdAt"] = docstore.ServerTimestamp

	id := uuid.NewString()
	if err := r.batcher.Begin().Create(docstore.Join(inboxPath(recipientID), id), fields).Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func (r *storeNotificationRepository) List(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	docs, err := docstore.GetAll(ctx, r.batcher.Store(), inboxQuery(recipientID, limit))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Notification](docs), nil
}

func (r *storeNotificationRepository) Watch(ctx context.Context, recipientID string, limit int) (*live.Subscription[models.Notification], error) {
	return watch(ctx, r.batcher, inboxQuery(recipientID, limit), models.Decode[models.Notification])
}

func (r *storeNotificationRepository) GetGrouped(ctx context.Context, recipientID string) (Grouped, error) {
	all, err := r.List(ctx, recipientID, 0)
	if err != nil {
		return Grouped{}, err
	}

	now := r.now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterdayStart := todayStart.AddDate(0, 0, -1)
	weekStart := todayStart.AddDate(0, 0, -7)

	var g Grouped
	for _, n := range all {
		switch {
		case !n.CreatedAt.Before(todayStart):
			g.Today = append(g.Today, n)
		case !n.CreatedAt.Before(yesterdayStart):
			g.Yesterday = append(g.Yesterday, n)
		case !n.CreatedAt.Before(weekStart):
			g.ThisWeek = append(g.ThisWeek, n)
		case len(g.Older) < 50:
			g.Older = append(g.Older, n)
		}
	}
	return g, nil
}

func (r *storeNotificationRepository) unread(ctx context.Context, recipientID string) ([]docstore.Document, error) {
	q := docstore.Collection(inboxPath(recipientID)).Where("read", docstore.OpEqual, false)
	return docstore.GetAll(ctx, r.batcher.Store(), q)
}

func (r *storeNotificationRepository) GetUnreadCount(ctx context.Context, recipientID string) (int64, error) {
	docs, err := r.unread(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (r *storeNotificationRepository) MarkAsRead(ctx context.Context, recipientID, notificationID string) error {
	path := docstore.Join(inboxPath(recipientID), notificationID)
	return r.batcher.Begin().Update(path, map[string]any{"read": true}).Commit(ctx)
}

func (r *storeNotificationRepository) MarkAllAsRead(ctx context.Context, recipientID string) (int, error) {
	docs, err := r.unread(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	marked := 0
	for start := 0; start < len(docs); start += maxBatchWrites {
		end := min(start+maxBatchWrites, len(docs))
		b := r.batcher.Begin()
		for _, d := range docs[start:end] {
			b.Update(d.Path, map[string]any{"read": true})
		}
		if err := b.Commit(ctx); err != nil {
			return marked, fmt.Errorf("mark all read: %w", err)
		}
		marked += end - start
	}
	return marked, nil
}

func (r *storeNotificationRepository) GetPreferences(ctx context.Context, uid string) (models.NotificationPreferences, error) {
	doc, err := r.batcher.Store().Get(ctx, preferencesPath(uid))
	if err != nil {
		return nil, err
	}
	prefs := models.NotificationPreferences{}
	for k, v := range doc.Data {
		if b, ok := v.(bool); ok {
			prefs[k] = b
		}
	}
	return prefs, nil
}

func (r *storeNotificationRepository) SetPreferences(ctx context.Context, uid string, prefs models.NotificationPreferences) error {
	fields := make(map[string]any, len(prefs))
	for k, v := range prefs {
		fields[k] = v
	}
	return r.batcher.Begin().Set(preferencesPath(uid), fields).Commit(ctx)
}
