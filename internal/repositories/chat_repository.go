package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/anonto42/folio/backend/internal/auth"
	"github.com/anonto42/folio/backend/internal/docstore"
	"github.com/anonto42/folio/backend/internal/live"
	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/mutation"
	"github.com/google/uuid"
)

// ErrNotParticipant is returned when the sender does not belong to the chat.
var ErrNotParticipant = errors.New("not a chat participant")

// ChatRepository defines the interface for direct-message operations
type ChatRepository interface {
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	GetOrCreateDirect(ctx context.Context, a, b string) (models.Chat, error)
	WatchChats(ctx context.Context, uid string, limit int) (*live.Subscription[models.Chat], error)
	WatchMessages(ctx context.Context, chatID string, limit int) (*live.Subscription[models.Message], error)
	SendMessage(ctx context.Context, chatID string, sender auth.Identity, req models.SendMessageRequest) (string, error)
	ShareBook(ctx context.Context, chatID string, sender auth.Identity, bookID string) (string, error)
	MarkRead(ctx context.Context, chatID, uid string) error
}

type storeChatRepository struct {
	batcher *mutation.Batcher
	books   BookRepository
}

// NewStoreChatRepository creates a ChatRepository. books resolves shared book previews.
func NewStoreChatRepository(b *mutation.Batcher, books BookRepository) ChatRepository {
	return &storeChatRepository{batcher: b, books: books}
}

func chatPath(id string) string { return docstore.Join("chats", id) }

// DirectChatID is the deterministic ID of the one-to-one chat between a and b.
func DirectChatID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

func (r *storeChatRepository) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	return getOne[models.Chat](ctx, r.batcher.Store(), chatPath(chatID))
}

func (r *storeChatRepository) GetOrCreateDirect(ctx context.Context, a, b string) (models.Chat, error) {
	if a == "" || b == "" || a == b {
		return models.Chat{}, fmt.Errorf("%w: direct chat needs two distinct users", docstore.ErrInvalid)
	}
	id := DirectChatID(a, b)
	chat, err := r.GetChat(ctx, id)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return models.Chat{}, err
	}

	err = r.batcher.Begin().Create(chatPath(id), map[string]any{
		"participants": []any{a, b},
		"unreadCounts": map[string]any{a: int64(0), b: int64(0)},
		"updatedAt":    docstore.ServerTimestamp,
	}).Commit(ctx)
	if err != nil && !errors.Is(err, docstore.ErrAlreadyExists) {
		return models.Chat{}, err
	}
	return r.GetChat(ctx, id)
}

func (r *storeChatRepository) WatchChats(ctx context.Context, uid string, limit int) (*live.Subscription[models.Chat], error) {
	q := docstore.Collection("chats").
		Where("participants", docstore.OpArrayContains, uid).
		OrderBy("updatedAt", true)
	if limit > 0 {
		q = q.WithLimit(limit)
	}
	return watch(ctx, r.batcher, q, models.Decode[models.Chat])
}

func (r *storeChatRepository) WatchMessages(ctx context.Context, chatID string, limit int) (*live.Subscription[models.Message], error) {
	q := docstore.Collection(docstore.Join(chatPath(chatID), "messages")).OrderBy("createdAt", false)
	if limit > 0 {
		q = q.WithLimit(limit)
	}
	return watch(ctx, r.batcher, q, models.Decode[models.Message])
}

func (r *storeChatRepository) SendMessage(ctx context.Context, chatID string, sender auth.Identity, req models.SendMessageRequest) (string, error) {
	if err := models.Validate(req); err != nil {
		return "", fmt.Errorf("%w: %v", docstore.ErrInvalid, err)
	}
	return r.send(ctx, chatID, models.Message{
		SenderID: sender.UID,
		Type:     models.MessageText,
		Text:     req.Text,
	})
}

// ShareBook posts a book preview into the chat.
func (r *storeChatRepository) ShareBook(ctx context.Context, chatID string, sender auth.Identity, bookID string) (string, error) {
	book, err := r.books.GetBookByID(ctx, bookID)
	if err != nil {
		return "", err
	}
	return r.send(ctx, chatID, models.Message{
		SenderID: sender.UID,
		Type:     models.MessageBookShare,
		Text:     fmt.Sprintf("Shared a book: %s", book.Title),
		Shared: &models.SharedRef{
			ID:       book.ID,
			Title:    book.Title,
			CoverURL: book.CoverURL,
			Link:     "/books/" + book.ID,
		},
	})
}

// send writes the message, the chat's lastMessage preview and every other
// participant's unread counter in one commit. The sender's counter is untouched.
func (r *storeChatRepository) send(ctx context.Context, chatID string, msg models.Message) (string, error) {
	chat, err := r.GetChat(ctx, chatID)
	if err != nil {
		return "", err
	}
	if !chat.HasParticipant(msg.SenderID) {
		return "", ErrNotParticipant
	}

	fields, err := models.Encode(msg)
	if err != nil {
		return "", err
	}
	fields["createdAt"] = docstore.ServerTimestamp

	update := map[string]any{
		"lastMessage": map[string]any{
			"text":      msg.Text,
			"senderId":  msg.SenderID,
			"type":      string(msg.Type),
			"createdAt": docstore.ServerTimestamp,
		},
		"updatedAt": docstore.ServerTimestamp,
	}
	for _, p := range chat.Participants {
		if p != msg.SenderID {
			update["unreadCounts."+p] = docstore.Increment{N: 1}
		}
	}

	id := uuid.NewString()
	err = r.batcher.Begin().
		Create(docstore.Join(chatPath(chatID), "messages", id), fields).
		Update(chatPath(chatID), update).
		Commit(ctx)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *storeChatRepository) MarkRead(ctx context.Context, chatID, uid string) error {
	return r.batcher.Begin().Update(chatPath(chatID), map[string]any{
		"unreadCounts." + uid: int64(0),
	}).Commit(ctx)
}
