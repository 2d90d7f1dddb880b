package policy

import (
	"context"
	"testing"

	"github.com/anonto42/folio/backend/internal/auth"
	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func as(uid string) context.Context {
	return auth.WithIdentity(context.Background(), auth.Identity{UID: uid})
}

func seed(t *testing.T, mem *docstore.MemoryStore, docs map[string]map[string]any) {
	t.Helper()
	ops := make([]docstore.Op, 0, len(docs))
	for path, data := range docs {
		ops = append(ops, docstore.Op{Kind: docstore.OpSet, Path: path, Data: data})
	}
	require.NoError(t, mem.Commit(context.Background(), ops))
}

func guarded(mem *docstore.MemoryStore) docstore.Store {
	return docstore.Guard(mem, Default(mem), auth.UID)
}

func TestPatternBindsVariablesAndListsMatchCollection(t *testing.T) {
	p := New(nil, Rule{Pattern: "users/{uid}/favorites/{book}"}.Read(Is("uid")))
	ctx := context.Background()

	assert.True(t, p.Allow(ctx, docstore.Access{UID: "u1", Operation: "get", Path: "users/u1/favorites/b1"}))
	assert.True(t, p.Allow(ctx, docstore.Access{UID: "u1", Operation: "list", Path: "users/u1/favorites"}))
	assert.False(t, p.Allow(ctx, docstore.Access{UID: "u2", Operation: "list", Path: "users/u1/favorites"}))
	assert.False(t, p.Allow(ctx, docstore.Access{UID: "u1", Operation: "create", Path: "users/u1/favorites/b1"}), "nil condition denies")
	assert.False(t, p.Allow(ctx, docstore.Access{UID: "u1", Operation: "get", Path: "users/u1"}), "unmatched path denies")
}

func TestFirstMatchingRuleDecides(t *testing.T) {
	p := New(nil,
		Rule{Pattern: "books/{id}"}.Read(Authenticated),
		Rule{Pattern: "books/{id}"}.Read(Public),
	)
	assert.False(t, p.Allow(context.Background(), docstore.Access{Operation: "get", Path: "books/b1"}))
}

func TestBatchWithOneForbiddenWriteChangesNothing(t *testing.T) {
	mem := docstore.NewMemoryStore()
	seed(t, mem, map[string]map[string]any{
		"books/b1":    {"authorId": "author", "title": "Dune", "favoriteCount": int64(0)},
		"users/other": {"displayName": "Other"},
	})
	store := guarded(mem)

	err := store.Commit(as("u1"), []docstore.Op{
		{Kind: docstore.OpCreate, Path: "users/u1/favorites/b1", Data: map[string]any{"userId": "u1", "targetId": "b1"}},
		{Kind: docstore.OpUpdate, Path: "books/b1", Data: map[string]any{"favoriteCount": docstore.Increment{N: 1}}},
		{Kind: docstore.OpUpdate, Path: "users/other", Data: map[string]any{"displayName": "Hijacked"}},
	})
	require.Error(t, err)
	assert.True(t, docstore.IsPermissionDenied(err))
	e, ok := docstore.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "users/other", e.Path)

	fav, err := mem.Get(context.Background(), "users/u1/favorites/b1")
	require.NoError(t, err)
	assert.False(t, fav.Exists)
	book, err := mem.Get(context.Background(), "books/b1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), book.Data["favoriteCount"])
	other, err := mem.Get(context.Background(), "users/other")
	require.NoError(t, err)
	assert.Equal(t, "Other", other.Data["displayName"])
}

func TestCounterOnlyUpdatesAllowedForAnySignedInUser(t *testing.T) {
	mem := docstore.NewMemoryStore()
	seed(t, mem, map[string]map[string]any{
		"books/b1": {"authorId": "author", "title": "Dune"},
	})
	store := guarded(mem)

	assert.NoError(t, store.Commit(as("u1"), []docstore.Op{
		{Kind: docstore.OpUpdate, Path: "books/b1", Data: map[string]any{"likeCount": docstore.Increment{N: 1}}},
	}))
	err := store.Commit(as("u1"), []docstore.Op{
		{Kind: docstore.OpUpdate, Path: "books/b1", Data: map[string]any{"likeCount": docstore.Increment{N: 1}, "title": "Mine"}},
	})
	assert.True(t, docstore.IsPermissionDenied(err))
	err = store.Commit(context.Background(), []docstore.Op{
		{Kind: docstore.OpUpdate, Path: "books/b1", Data: map[string]any{"likeCount": docstore.Increment{N: 1}}},
	})
	assert.True(t, docstore.IsPermissionDenied(err), "anonymous")
}

func TestPublishingRequiresAdmin(t *testing.T) {
	mem := docstore.NewMemoryStore()
	seed(t, mem, map[string]map[string]any{
		"books/b1":    {"authorId": "author", "title": "Dune", "status": "draft"},
		"users/admin": {"displayName": "Admin", "role": "admin"},
	})
	store := guarded(mem)
	publish := []docstore.Op{{Kind: docstore.OpUpdate, Path: "books/b1", Data: map[string]any{"status": "published"}}}

	assert.True(t, docstore.IsPermissionDenied(store.Commit(as("author"), publish)))
	assert.NoError(t, store.Commit(as("author"), []docstore.Op{
		{Kind: docstore.OpUpdate, Path: "books/b1", Data: map[string]any{"status": "pending_review"}},
	}))
	assert.NoError(t, store.Commit(as("admin"), publish))
}

func TestNotificationRules(t *testing.T) {
	mem := docstore.NewMemoryStore()
	store := guarded(mem)
	create := func(actor string) []docstore.Op {
		return []docstore.Op{{Kind: docstore.OpCreate, Path: "users/u2/notifications/n1", Data: map[string]any{
			"type":  "follow",
			"text":  "started following you",
			"actor": map[string]any{"id": actor, "name": "A"},
			"read":  false,
		}}}
	}

	assert.True(t, docstore.IsPermissionDenied(store.Commit(as("u1"), create("u3"))), "spoofed actor")
	assert.True(t, docstore.IsPermissionDenied(store.Commit(as("u2"), create("u2"))), "own inbox")
	require.NoError(t, store.Commit(as("u1"), create("u1")))

	markRead := []docstore.Op{{Kind: docstore.OpUpdate, Path: "users/u2/notifications/n1", Data: map[string]any{"read": true}}}
	assert.True(t, docstore.IsPermissionDenied(store.Commit(as("u1"), markRead)), "actor cannot mark read")
	assert.True(t, docstore.IsPermissionDenied(store.Commit(as("u2"), []docstore.Op{
		{Kind: docstore.OpUpdate, Path: "users/u2/notifications/n1", Data: map[string]any{"text": "edited"}},
	})))
	assert.NoError(t, store.Commit(as("u2"), markRead))

	_, err := store.Get(as("u1"), "users/u2/notifications/n1")
	assert.True(t, docstore.IsPermissionDenied(err))
	_, err = store.Watch(as("u2"), docstore.Collection("users/u2/notifications"))
	assert.NoError(t, err)
}

func TestChatParticipantRules(t *testing.T) {
	mem := docstore.NewMemoryStore()
	seed(t, mem, map[string]map[string]any{
		"chats/c1": {"participants": []any{"u1", "u2"}},
	})
	store := guarded(mem)
	message := func(sender string) []docstore.Op {
		return []docstore.Op{{Kind: docstore.OpCreate, Path: "chats/c1/messages/m-" + sender, Data: map[string]any{
			"senderId": sender, "text": "hi",
		}}}
	}

	assert.NoError(t, store.Commit(as("u1"), message("u1")))
	assert.True(t, docstore.IsPermissionDenied(store.Commit(as("u3"), message("u3"))))
	assert.True(t, docstore.IsPermissionDenied(store.Commit(as("u1"), message("u2"))), "sender must be caller")

	assert.NoError(t, store.Commit(as("u1"), []docstore.Op{
		{Kind: docstore.OpUpdate, Path: "chats/c1", Data: map[string]any{"unreadCounts.u2": docstore.Increment{N: 1}}},
	}))
	assert.True(t, docstore.IsPermissionDenied(store.Commit(as("u1"), []docstore.Op{
		{Kind: docstore.OpUpdate, Path: "chats/c1", Data: map[string]any{"participants": []any{"u1"}}},
	})))

	_, err := store.Get(as("u1"), "chats/c1")
	assert.NoError(t, err)
	_, err = store.Get(as("u3"), "chats/c1")
	assert.True(t, docstore.IsPermissionDenied(err))
}

func TestFollowWritesBelongToTheFollower(t *testing.T) {
	mem := docstore.NewMemoryStore()
	store := guarded(mem)

	assert.NoError(t, store.Commit(as("u1"), []docstore.Op{
		{Kind: docstore.OpCreate, Path: "users/u2/followers/u1", Data: map[string]any{"userId": "u1"}},
		{Kind: docstore.OpSet, Path: "users/u1/following/u2", Data: map[string]any{"userId": "u1"}},
	}))
	assert.True(t, docstore.IsPermissionDenied(store.Commit(as("u1"), []docstore.Op{
		{Kind: docstore.OpCreate, Path: "users/u2/followers/u3", Data: map[string]any{"userId": "u3"}},
	})))
}

func TestDirectChatCanBeProbedBeforeCreation(t *testing.T) {
	mem := docstore.NewMemoryStore()
	store := guarded(mem)

	doc, err := store.Get(as("u1"), "chats/u1_u2")
	require.NoError(t, err)
	assert.False(t, doc.Exists)

	require.NoError(t, store.Commit(as("u1"), []docstore.Op{
		{Kind: docstore.OpCreate, Path: "chats/u1_u2", Data: map[string]any{"participants": []any{"u1", "u2"}}},
	}))
	_, err = store.Get(as("u3"), "chats/u1_u2")
	assert.True(t, docstore.IsPermissionDenied(err))
}
