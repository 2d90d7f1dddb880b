package mutation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/anonto42/folio/backend/internal/auth"
	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/errbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitAppliesAllOps(t *testing.T) {
	mem := docstore.NewMemoryStore()
	b := NewBatcher(mem, errbus.New(nil), nil, nil)
	ctx := context.Background()

	require.NoError(t, b.Begin().Set("books/b1", map[string]any{"commentCount": int64(0)}).Commit(ctx))

	err := b.Begin().
		Create("books/b1/comments/c1", map[string]any{"text": "hi"}).
		Increment("books/b1", "commentCount", 1).
		Commit(ctx)
	require.NoError(t, err)

	doc, err := mem.Get(ctx, "books/b1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Data["commentCount"])
	assert.Equal(t, []string{"books/b1/comments/c1"}, mem.Paths("books/b1/comments"))
}

func TestEmptyBatchIsInvalid(t *testing.T) {
	b := NewBatcher(docstore.NewMemoryStore(), errbus.New(nil), nil, nil)
	assert.ErrorIs(t, b.Begin().Commit(context.Background()), docstore.ErrInvalid)
}

func TestPreconditionFailureAppliesNothing(t *testing.T) {
	mem := docstore.NewMemoryStore()
	b := NewBatcher(mem, errbus.New(nil), nil, nil)
	ctx := context.Background()

	err := b.Begin().
		Set("chats/c1/messages/m1", map[string]any{"text": "hello"}).
		Increment("chats/c1", "unreadCounts.b", 1).
		Commit(ctx)
	require.ErrorIs(t, err, docstore.ErrNotFound)
	assert.Empty(t, mem.Paths("chats"))
}

func TestPermissionRejectionIsEmittedAndNothingApplied(t *testing.T) {
	mem := docstore.NewMemoryStore()
	rules := docstore.RulesFunc(func(_ context.Context, a docstore.Access) bool {
		return !strings.HasPrefix(a.Path, "users/u2/")
	})
	store := docstore.Guard(mem, rules, auth.UID)

	bus := errbus.New(nil)
	var got []errbus.PermissionError
	bus.Subscribe(func(e errbus.PermissionError) { got = append(got, e) })

	b := NewBatcher(mem, bus, nil, nil)
	require.NoError(t, b.Begin().Set("books/b1", map[string]any{"likeCount": int64(5)}).Commit(context.Background()))

	guarded := NewBatcher(store, bus, nil, nil)
	ctx := auth.WithIdentity(context.Background(), auth.Identity{UID: "u1"})
	payload := map[string]any{"text": "sneaky"}
	err := guarded.Begin().
		Increment("books/b1", "likeCount", 1).
		Set("users/u1/notes/n1", map[string]any{"ok": true}).
		Set("users/u2/private/p1", payload).
		Commit(ctx)

	require.Error(t, err)
	assert.True(t, docstore.IsPermissionDenied(err))

	doc, err := mem.Get(context.Background(), "books/b1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), doc.Data["likeCount"])
	assert.Empty(t, mem.Paths("users/"))

	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].UID)
	assert.Equal(t, "users/u2/private/p1", got[0].Path)
	assert.Equal(t, payload, got[0].Payload)
	assert.False(t, got[0].At.IsZero())
}

func TestOtherFailuresAreNotEmitted(t *testing.T) {
	mem := docstore.NewMemoryStore()
	outage := errors.New("backend unavailable")
	mem.SetCommitHook(func([]docstore.Op) error { return outage })

	bus := errbus.New(nil)
	emitted := 0
	bus.Subscribe(func(errbus.PermissionError) { emitted++ })

	err := NewBatcher(mem, bus, nil, nil).Begin().Set("books/b1", map[string]any{}).Commit(context.Background())
	assert.ErrorIs(t, err, outage)
	assert.Zero(t, emitted)
}

func TestOpsReturnsCopy(t *testing.T) {
	bt := NewBatcher(docstore.NewMemoryStore(), errbus.New(nil), nil, nil).Begin()
	bt.Delete("books/b1").DeleteExisting("books/b2")

	ops := bt.Ops()
	require.Len(t, ops, 2)
	assert.False(t, ops[0].MustExist)
	assert.True(t, ops[1].MustExist)
	ops[0].Path = "changed"
	assert.Equal(t, "books/b1", bt.Ops()[0].Path)
	assert.Equal(t, 2, bt.Len())
}
