package repositories

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/anonto42/folio/backend/internal/auth"
	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/errbus"
	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/mutation"
	"github.com/anonto42/folio/backend/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBatcher(opts ...docstore.MemoryOption) (*mutation.Batcher, *docstore.MemoryStore) {
	mem := docstore.NewMemoryStore(opts...)
	return mutation.NewBatcher(mem, errbus.New(nil), nil, nil), mem
}

func seed(t *testing.T, s docstore.Store, path string, data map[string]any) {
	t.Helper()
	require.NoError(t, s.Commit(context.Background(), []docstore.Op{{Kind: docstore.OpSet, Path: path, Data: data}}))
}

func field(t *testing.T, s docstore.Store, path, name string) any {
	t.Helper()
	doc, err := s.Get(context.Background(), path)
	require.NoError(t, err)
	require.True(t, doc.Exists, path)
	return docstore.Lookup(doc.Data, name)
}

var (
	ada = auth.Identity{UID: "A", DisplayName: "Ada"}
	bo  = auth.Identity{UID: "B", DisplayName: "Bo"}
)

func TestShareBookIntoChat(t *testing.T) {
	b, mem := newBatcher()
	books := NewStoreBookRepository(b, nil)
	chats := NewStoreChatRepository(b, books)
	ctx := context.Background()

	seed(t, mem, "books/b1", map[string]any{
		"title": "One", "authorId": "A", "status": "published",
	})
	seed(t, mem, "chats/c1", map[string]any{
		"participants": []any{"A", "B"},
		"unreadCounts": map[string]any{"A": int64(2), "B": int64(0)},
	})

	id, err := chats.ShareBook(ctx, "c1", ada, "b1")
	require.NoError(t, err)

	msgs := mem.Paths("chats/c1/messages/")
	require.Equal(t, []string{"chats/c1/messages/" + id}, msgs)
	assert.Equal(t, "book_share", field(t, mem, msgs[0], "type"))
	assert.Equal(t, "/books/b1", field(t, mem, msgs[0], "shared.link"))

	assert.Equal(t, "Shared a book: One", field(t, mem, "chats/c1", "lastMessage.text"))
	assert.Equal(t, int64(1), field(t, mem, "chats/c1", "unreadCounts.B"))
	assert.Equal(t, int64(2), field(t, mem, "chats/c1", "unreadCounts.A"))

	chat, err := chats.GetChat(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, chat.LastMessage)
	assert.Equal(t, models.MessageBookShare, chat.LastMessage.Type)
	assert.Equal(t, map[string]int64{"A": 2, "B": 1}, chat.UnreadCounts)

	require.NoError(t, chats.MarkRead(ctx, "c1", "B"))
	assert.Equal(t, int64(0), field(t, mem, "chats/c1", "unreadCounts.B"))
}

func TestSendMessageRejectsOutsider(t *testing.T) {
	b, _ := newBatcher()
	chats := NewStoreChatRepository(b, NewStoreBookRepository(b, nil))
	ctx := context.Background()

	chat, err := chats.GetOrCreateDirect(ctx, "A", "B")
	require.NoError(t, err)
	assert.Equal(t, "A_B", chat.ID)

	again, err := chats.GetOrCreateDirect(ctx, "B", "A")
	require.NoError(t, err)
	assert.Equal(t, chat.ID, again.ID)

	_, err = chats.SendMessage(ctx, chat.ID, auth.Identity{UID: "C"}, models.SendMessageRequest{Text: "hi"})
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = chats.SendMessage(ctx, chat.ID, bo, models.SendMessageRequest{Text: "hi"})
	require.NoError(t, err)
	updated, err := chats.GetChat(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.UnreadCounts["A"])
	assert.Equal(t, int64(0), updated.UnreadCounts["B"])
}

func TestCommentCountersFollowCreateAndDelete(t *testing.T) {
	b, mem := newBatcher()
	comments := NewStoreCommentRepository(b)
	ctx := context.Background()
	seed(t, mem, "books/b1", map[string]any{"title": "One", "commentCount": int64(0)})
	target := BookComments("b1")

	top, err := comments.CreateComment(ctx, ada, target, models.CreateCommentRequest{Text: "First"})
	require.NoError(t, err)
	reply, err := comments.CreateComment(ctx, bo, target, models.CreateCommentRequest{Text: "Reply", ParentID: top.ID})
	require.NoError(t, err)
	seed(t, mem, "books/b1/comments/"+top.ID+"/likes/B", map[string]any{"userId": "B"})
	seed(t, mem, "books/b1/comments/"+reply.ID+"/likes/A", map[string]any{"userId": "A"})

	assert.Equal(t, int64(2), field(t, mem, "books/b1", "commentCount"))
	parent, err := comments.GetCommentByID(ctx, target, top.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), parent.ReplyCount)

	require.NoError(t, comments.DeleteComment(ctx, target, top.ID))
	assert.Equal(t, int64(0), field(t, mem, "books/b1", "commentCount"))
	assert.Empty(t, mem.Paths("books/b1/comments/"))
}

func TestCommentOnMissingParentWritesNothing(t *testing.T) {
	b, mem := newBatcher()
	comments := NewStoreCommentRepository(b)
	seed(t, mem, "books/b1", map[string]any{"commentCount": int64(0)})

	_, err := comments.CreateComment(context.Background(), ada, BookComments("b1"),
		models.CreateCommentRequest{Text: "orphan", ParentID: "nope"})
	require.ErrorIs(t, err, docstore.ErrNotFound)
	assert.Empty(t, mem.Paths("books/b1/comments/"))
	assert.Equal(t, int64(0), field(t, mem, "books/b1", "commentCount"))
}

func TestCreateCommentValidates(t *testing.T) {
	b, _ := newBatcher()
	_, err := NewStoreCommentRepository(b).CreateComment(context.Background(), ada, BookComments("b1"), models.CreateCommentRequest{})
	assert.ErrorIs(t, err, docstore.ErrInvalid)
}

type stubUploader struct {
	link string
	err  error
}

func (s stubUploader) Upload(_ context.Context, _, _ string, r io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	return s.link, s.err
}

func TestBookLifecycle(t *testing.T) {
	b, mem := newBatcher()
	books := NewStoreBookRepository(b, stubUploader{link: "https://cdn.example.com/c.png"})
	ctx := context.Background()

	book, err := books.CreateBook(ctx, ada, models.CreateBookRequest{Title: "Draft"},
		&Upload{Name: "c.png", ContentType: "image/png", Body: strings.NewReader("png")})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, book.Status)
	assert.Equal(t, "https://cdn.example.com/c.png", book.CoverURL)
	assert.Equal(t, "A", book.AuthorID)

	require.NoError(t, books.Autosave(ctx, book.ID, models.AutosaveRequest{Title: "Better title"}))
	assert.ErrorIs(t, books.SetStatus(ctx, book.ID, models.StatusPublished), ErrInvalidTransition)
	require.NoError(t, books.SubmitForReview(ctx, book.ID))
	assert.ErrorIs(t, books.Autosave(ctx, book.ID, models.AutosaveRequest{Title: "Late"}), ErrInvalidTransition)
	require.NoError(t, books.SetStatus(ctx, book.ID, models.StatusPublished))

	got, err := books.GetBookByID(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Better title", got.Title)
	assert.Equal(t, models.StatusPublished, got.Status)

	_, err = books.AddChapter(ctx, book.ID, models.Chapter{Title: "Chapter 1", Content: "..."})
	require.NoError(t, err)
	assert.Equal(t, int64(1), field(t, mem, "books/"+book.ID, "chapterCount"))

	mine, err := books.GetBooksByAuthor(ctx, "A", 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
}

func TestCreateBookUploadFailureWritesNothing(t *testing.T) {
	b, mem := newBatcher()
	books := NewStoreBookRepository(b, stubUploader{err: errors.New("bucket down")})

	_, err := books.CreateBook(context.Background(), ada, models.CreateBookRequest{Title: "T"},
		&Upload{Name: "c.png", Body: strings.NewReader("x")})
	require.Error(t, err)
	assert.Empty(t, mem.Paths("books"))
}

func TestDeleteBookCascades(t *testing.T) {
	b, mem := newBatcher()
	books := NewStoreBookRepository(b, nil)
	ctx := context.Background()

	seed(t, mem, "books/b1", map[string]any{"title": "One", "authorId": "A", "status": "draft"})
	seed(t, mem, "books/b1/comments/c1", map[string]any{"text": "x"})
	seed(t, mem, "books/b1/comments/c1/likes/C", map[string]any{"userId": "C"})
	seed(t, mem, "books/b1/likes/B", map[string]any{"userId": "B"})
	seed(t, mem, "books/b1/chapters/ch1", map[string]any{"title": "1"})
	seed(t, mem, "books/b2", map[string]any{"title": "Two", "authorId": "A", "status": "draft"})

	require.NoError(t, books.DeleteBook(ctx, "b1"))
	assert.Equal(t, []string{"books/b2"}, mem.Paths("books/"))

	assert.ErrorIs(t, books.DeleteBook(ctx, "b1"), docstore.ErrNotFound)
}

func TestDeleteBookInterruptedLeavesParent(t *testing.T) {
	b, mem := newBatcher()
	books := NewStoreBookRepository(b, nil)
	seed(t, mem, "books/b1", map[string]any{"title": "One", "authorId": "A", "status": "draft"})
	seed(t, mem, "books/b1/likes/B", map[string]any{"userId": "B"})

	mem.SetCommitHook(func(ops []docstore.Op) error {
		if strings.Contains(ops[0].Path, "/likes/") {
			return errors.New("interrupted")
		}
		return nil
	})
	require.Error(t, books.DeleteBook(context.Background(), "b1"))
	assert.Contains(t, mem.Paths("books/"), "books/b1")
}

func TestInboxOperations(t *testing.T) {
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	clock := day
	b, mem := newBatcher(docstore.WithClock(func() time.Time { return clock }))
	repo := NewStoreNotificationRepository(b).(*storeNotificationRepository)
	repo.now = func() time.Time { return day }
	ctx := context.Background()

	create := func(at time.Time, text string) string {
		clock = at
		id, err := repo.Create(ctx, "u2", models.Notification{
			Type:  models.NotificationFollow,
			Text:  text,
			Actor: models.ActorSnapshot{ID: "u1"},
		})
		require.NoError(t, err)
		return id
	}
	first := create(day.Add(-10*24*time.Hour), "old")
	create(day.Add(-3*24*time.Hour), "this week")
	create(day.Add(-20*time.Hour), "yesterday")
	create(day.Add(-time.Hour), "today")

	list, err := repo.List(ctx, "u2", 0)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, "today", list[0].Text, "newest first")

	g, err := repo.GetGrouped(ctx, "u2")
	require.NoError(t, err)
	assert.Len(t, g.Today, 1)
	assert.Len(t, g.Yesterday, 1)
	assert.Len(t, g.ThisWeek, 1)
	assert.Len(t, g.Older, 1)

	count, err := repo.GetUnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	require.NoError(t, repo.MarkAsRead(ctx, "u2", first))
	count, err = repo.GetUnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	marked, err := repo.MarkAllAsRead(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 3, marked)
	count, err = repo.GetUnreadCount(ctx, "u2")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Len(t, mem.Paths("users/u2/notifications/"), 4)

	assert.ErrorIs(t, repo.MarkAsRead(ctx, "u2", "missing"), docstore.ErrNotFound)
}

func TestPreferencesRoundTrip(t *testing.T) {
	b, _ := newBatcher()
	repo := NewStoreNotificationRepository(b)
	ctx := context.Background()

	prefs, err := repo.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, prefs.Enabled(models.NotificationFollow))

	require.NoError(t, repo.SetPreferences(ctx, "u1", models.NotificationPreferences{"onFollow": false}))
	prefs, err = repo.GetPreferences(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, prefs.Enabled(models.NotificationFollow))
	assert.True(t, prefs.Enabled(models.NotificationFavorite))
}

func TestEnsureProfileIsIdempotent(t *testing.T) {
	b, mem := newBatcher()
	users := NewStoreUserRepository(b)
	ctx := context.Background()

	u, err := users.EnsureProfile(ctx, ada)
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.DisplayName)

	require.NoError(t, users.UpdateProfile(ctx, "A", "Ada L.", ""))
	u, err = users.EnsureProfile(ctx, ada)
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", u.DisplayName)
	assert.Equal(t, 1, len(mem.Paths("users/")))
}

func TestStoriesExpire(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	b, mem := newBatcher(docstore.WithClock(func() time.Time { return now }))
	repo := NewStoreStoryRepository(b).(*storeStoryRepository)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	story, err := repo.CreateStory(ctx, ada, models.CreateStoryRequest{MediaURL: "https://cdn.example.com/s.jpg", MediaType: "image"})
	require.NoError(t, err)
	assert.Equal(t, now.Add(models.StoryTTL), story.ExpiresAt.UTC())
	seed(t, mem, "stories/"+story.ID+"/views/B", map[string]any{"userId": "B"})

	active, err := repo.GetActiveStories(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	seen, err := repo.GetSeenStoryIDs(ctx, "B", []string{story.ID, "other"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{story.ID: true}, seen)

	repo.now = func() time.Time { return now.Add(25 * time.Hour) }
	active, err = repo.GetActiveStories(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	n, err := repo.DeleteExpiredStories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, mem.Paths("stories/"))
}

func TestDiagnosticFrom(t *testing.T) {
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	d := DiagnosticFrom(errbus.PermissionError{
		UID:       "u1",
		Path:      "users/u2/notifications/n1",
		Operation: "update",
		Payload:   map[string]any{"read": true},
		Err:       docstore.ErrPermissionDenied,
		At:        at,
	})
	assert.Equal(t, "u1", d.UserID)
	assert.Equal(t, "update", d.Operation)
	assert.JSONEq(t, `{"read":true}`, d.Payload)
	assert.Equal(t, at, d.CreatedAt)
	assert.Contains(t, d.Error, "permission denied")
}

type diagnosticsFunc func(ctx context.Context, d *models.PermissionDiagnostic) error

func (f diagnosticsFunc) Record(ctx context.Context, d *models.PermissionDiagnostic) error {
	return f(ctx, d)
}

func (f diagnosticsFunc) Recent(context.Context, string, int) ([]models.PermissionDiagnostic, error) {
	return nil, nil
}

func TestDiagnosticsListenerInsideTaskDoesNotStall(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := tasks.New(1, logger)
	bus := errbus.New(logger)
	recorded := make(chan *models.PermissionDiagnostic, 1)
	bus.Subscribe(DiagnosticsListener(diagnosticsFunc(func(_ context.Context, d *models.PermissionDiagnostic) error {
		recorded <- d
		return nil
	}), runner, logger))

	require.NoError(t, runner.Go(context.Background(), "notify", func(context.Context) error {
		bus.Emit(errbus.PermissionError{UID: "u1", Path: "users/u2/notifications/n1", Operation: "create"})
		return nil
	}))

	done := make(chan struct{})
	go func() {
		runner.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not drain")
	}

	assert.Empty(t, recorded, "the only slot was held by the emitting task")

	bus.Emit(errbus.PermissionError{UID: "u1", Path: "books/b1", Operation: "update"})
	runner.Wait()
	require.Len(t, recorded, 1)
	assert.Equal(t, "books/b1", (<-recorded).Path)
}
