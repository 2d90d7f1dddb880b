package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCommit(t *testing.T, s Store, ops ...Op) {
	t.Helper()
	require.NoError(t, s.Commit(context.Background(), ops))
}

func TestGetMissingDocumentIsNotAnError(t *testing.T) {
	s := NewMemoryStore()
	doc, err := s.Get(context.Background(), "books/missing")
	require.NoError(t, err)
	assert.False(t, doc.Exists)
	assert.Equal(t, "missing", doc.ID)

	_, err = s.Get(context.Background(), "books")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCommitPreconditions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	mustCommit(t, s, Op{Kind: OpCreate, Path: "books/b1", Data: map[string]any{"title": "Dune"}})

	err := s.Commit(ctx, []Op{{Kind: OpCreate, Path: "books/b1", Data: map[string]any{}}})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	err = s.Commit(ctx, []Op{{Kind: OpUpdate, Path: "books/b2", Data: map[string]any{"title": "x"}}})
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Commit(ctx, []Op{{Kind: OpDelete, Path: "books/b2", MustExist: true}})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Commit(ctx, []Op{{Kind: OpDelete, Path: "books/b2"}}), "plain delete is idempotent")

	err = s.Commit(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestFailedCommitLeavesStoreUntouched(t *testing.T) {
	s := NewMemoryStore()
	mustCommit(t, s, Op{Kind: OpSet, Path: "books/b1", Data: map[string]any{"likeCount": int64(3)}})

	err := s.Commit(context.Background(), []Op{
		{Kind: OpUpdate, Path: "books/b1", Data: map[string]any{"likeCount": Increment{N: 1}}},
		{Kind: OpCreate, Path: "books/b1/likes/u1", Data: map[string]any{"userId": "u1"}},
		{Kind: OpUpdate, Path: "books/missing", Data: map[string]any{"x": 1}},
	})
	require.Error(t, err)
	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "books/missing", e.Path)
	assert.Equal(t, CodeNotFound, e.Code)

	doc, _ := s.Get(context.Background(), "books/b1")
	assert.Equal(t, int64(3), doc.Data["likeCount"])
	assert.Empty(t, s.Paths("books/b1/likes/"))
	assert.Equal(t, 1, s.Commits())
}

func TestUpdateTransforms(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(WithClock(func() time.Time { return at }))
	mustCommit(t, s, Op{Kind: OpSet, Path: "chats/c1", Data: map[string]any{"participants": []any{"a", "b"}}})

	mustCommit(t, s, Op{Kind: OpUpdate, Path: "chats/c1", Data: map[string]any{
		"unreadCounts.b": Increment{N: 1},
		"updatedAt":      ServerTimestamp,
		"lastMessage":    map[string]any{"text": "hi", "at": ServerTimestamp},
	}})
	mustCommit(t, s, Op{Kind: OpUpdate, Path: "chats/c1", Data: map[string]any{"unreadCounts.b": Increment{N: 2}}})

	doc, _ := s.Get(context.Background(), "chats/c1")
	assert.Equal(t, int64(3), Lookup(doc.Data, "unreadCounts.b"))
	assert.Equal(t, at, doc.Data["updatedAt"])
	assert.Equal(t, at, Lookup(doc.Data, "lastMessage.at"))
	assert.Equal(t, []any{"a", "b"}, doc.Data["participants"])
}

func TestGetReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	mustCommit(t, s, Op{Kind: OpSet, Path: "users/u1", Data: map[string]any{"name": "A"}})

	doc, _ := s.Get(context.Background(), "users/u1")
	doc.Data["name"] = "B"

	again, _ := s.Get(context.Background(), "users/u1")
	assert.Equal(t, "A", again.Data["name"])
}

func TestWatchDeliversInitialAndChangedSnapshots(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	mustCommit(t, s, Op{Kind: OpSet, Path: "books/b1", Data: map[string]any{"title": "A", "rank": int64(2)}})

	it, err := s.Watch(ctx, Collection("books").OrderBy("rank", false))
	require.NoError(t, err)
	defer it.Stop()
	assert.Equal(t, 1, s.ActiveWatchers())

	docs, err := it.Next(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	mustCommit(t, s, Op{Kind: OpSet, Path: "books/b0", Data: map[string]any{"title": "B", "rank": int64(1)}})
	docs, err = it.Next(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b0", docs[0].ID)

	it.Stop()
	_, err = it.Next(ctx)
	assert.True(t, errors.Is(err, ErrStopped))
	assert.Equal(t, 0, s.ActiveWatchers())
}

func TestDocumentWatchReportsAbsence(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	it, err := s.Watch(ctx, Doc("users/u1/favorites/b1"))
	require.NoError(t, err)
	defer it.Stop()

	docs, err := it.Next(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)

	mustCommit(t, s, Op{Kind: OpCreate, Path: "users/u1/favorites/b1", Data: map[string]any{"userId": "u1"}})
	docs, err = it.Next(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestCommitHookRejects(t *testing.T) {
	s := NewMemoryStore()
	s.SetCommitHook(func([]Op) error { return errors.New("offline") })
	err := s.Commit(context.Background(), []Op{{Kind: OpSet, Path: "a/b", Data: map[string]any{}}})
	assert.EqualError(t, err, "offline")
	assert.Empty(t, s.Paths(""))
}
