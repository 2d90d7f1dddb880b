package handlers

import (
	"net/http"

	"github.com/anonto42/folio/backend/internal/models"
	"github.com/anonto42/folio/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

// ChatHandler handles direct messages and content shares
type ChatHandler struct {
	chatRepository repositories.ChatRepository
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(chatRepo repositories.ChatRepository) *ChatHandler {
	return &ChatHandler{chatRepository: chatRepo}
}

// RegisterChatRoutes registers chat-related routes
func (h *ChatHandler) RegisterChatRoutes(g *echo.Group) {
	g.POST("/chats/direct/:user_id", h.OpenDirectChat)
	g.GET("/chats/:id", h.GetChat)
	g.POST("/chats/:id/messages", h.SendMessage)
	g.POST("/chats/:id/share", h.ShareBook)
	g.PUT("/chats/:id/read", h.MarkRead)
}

// OpenDirectChat returns the one-to-one chat with another user, creating it
// on first use
func (h *ChatHandler) OpenDirectChat(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	chat, err := h.chatRepository.GetOrCreateDirect(c.Request().Context(), id.UID, c.Param("user_id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, chat)
}

// GetChat retrieves a chat the caller participates in
func (h *ChatHandler) GetChat(c echo.Context) error {
	chat, err := h.chatRepository.GetChat(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, chat)
}

// SendMessage posts a text message
func (h *ChatHandler) SendMessage(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	var req models.SendMessageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	messageID, err := h.chatRepository.SendMessage(c.Request().Context(), c.Param("id"), id, req)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": messageID})
}

// ShareBook posts a book preview message. The message, the chat preview and
// the recipients' unread counters are written together.
func (h *ChatHandler) ShareBook(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	var req models.ShareBookRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	messageID, err := h.chatRepository.ShareBook(c.Request().Context(), c.Param("id"), id, req.BookID)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": messageID})
}

// MarkRead resets the caller's unread counter
func (h *ChatHandler) MarkRead(c echo.Context) error {
	id, err := currentIdentity(c)
	if err != nil {
		return err
	}
	if err := h.chatRepository.MarkRead(c.Request().Context(), c.Param("id"), id.UID); err != nil {
		return storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
