package models

import (
	"testing"
	"time"

	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeBook(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := docstore.Document{
		Path:   "books/b1",
		ID:     "b1",
		Exists: true,
		Data: map[string]any{
			"title":         "Tides",
			"authorId":      "u2",
			"status":        "published",
			"favoriteCount": int64(3),
			"createdAt":     created,
		},
	}

	book, err := Decode[Book](doc)
	require.NoError(t, err)
	assert.Equal(t, "b1", book.ID)
	assert.Equal(t, "Tides", book.Title)
	assert.Equal(t, StatusPublished, book.Status)
	assert.Equal(t, int64(3), book.FavoriteCount)
	assert.True(t, created.Equal(book.CreatedAt))
}

func TestDecodeRejectsWrongShape(t *testing.T) {
	doc := docstore.Document{
		Path:   "books/b1",
		ID:     "b1",
		Exists: true,
		Data:   map[string]any{"title": "No author", "status": "published"},
	}
	_, err := Decode[Book](doc)
	assert.Error(t, err)

	doc.Data = map[string]any{"title": "x", "authorId": "u2", "status": "archived"}
	_, err = Decode[Book](doc)
	assert.Error(t, err)
}

func TestDecodeMissingDocument(t *testing.T) {
	_, err := Decode[Book](docstore.Document{Path: "books/none", ID: "none"})
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestEncodeChatKeepsNestedMaps(t *testing.T) {
	fields, err := Encode(Chat{
		Participants: []string{"A", "B"},
		UnreadCounts: map[string]int64{"A": 0, "B": 2},
	})
	require.NoError(t, err)

	assert.NotContains(t, fields, "id")
	assert.Equal(t, []any{"A", "B"}, fields["participants"])
	assert.Equal(t, map[string]any{"A": int64(0), "B": int64(2)}, fields["unreadCounts"])
	assert.NotContains(t, fields, "updatedAt")
}

func TestEncodeValidates(t *testing.T) {
	_, err := Encode(Chat{Participants: []string{"A"}})
	assert.Error(t, err)
}

func TestNotificationPreferences(t *testing.T) {
	prefs := NotificationPreferences{"onBookComment": false, "onFavorite": true}

	assert.False(t, prefs.Enabled(NotificationBookComment))
	assert.True(t, prefs.Enabled(NotificationFavorite))
	assert.True(t, prefs.Enabled(NotificationFollow), "missing keys default to enabled")
	assert.True(t, NotificationPreferences(nil).Enabled(NotificationReelLike))
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusDraft.CanTransition(StatusPendingReview))
	assert.True(t, StatusPendingReview.CanTransition(StatusPublished))
	assert.True(t, StatusPendingReview.CanTransition(StatusRejected))
	assert.False(t, StatusDraft.CanTransition(StatusPublished))
	assert.False(t, StatusPublished.CanTransition(StatusRejected))
}
