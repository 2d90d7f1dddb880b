package models

import "time"

// MessageType distinguishes plain messages from shared content.
type MessageType string

const (
	MessageText      MessageType = "text"
	MessageBookShare MessageType = "book_share"
	MessageReelShare MessageType = "reel_share"
)

// LastMessage is the denormalized preview kept on the chat document.
type LastMessage struct {
	Text      string      `json:"text" bson:"text"`
	SenderID  string      `json:"senderId" bson:"senderId"`
	Type      MessageType `json:"type" bson:"type"`
	CreatedAt time.Time   `json:"createdAt" bson:"createdAt,omitempty"`
}

// Chat is stored at chats/{id}; messages under chats/{id}/messages.
type Chat struct {
	Meta         `bson:",inline"`
	Participants []string         `json:"participants" bson:"participants" validate:"required,min=2,dive,required"`
	LastMessage  *LastMessage     `json:"lastMessage,omitempty" bson:"lastMessage,omitempty"`
	UnreadCounts map[string]int64 `json:"unreadCounts" bson:"unreadCounts"`
	UpdatedAt    time.Time        `json:"updatedAt" bson:"updatedAt,omitempty"`
}

// HasParticipant reports whether uid belongs to the chat.
func (c Chat) HasParticipant(uid string) bool {
	for _, p := range c.Participants {
		if p == uid {
			return true
		}
	}
	return false
}

// SharedRef points at the content a share message carries.
type SharedRef struct {
	ID       string `json:"id" bson:"id" validate:"required"`
	Title    string `json:"title" bson:"title"`
	CoverURL string `json:"coverUrl,omitempty" bson:"coverUrl,omitempty"`
	Link     string `json:"link" bson:"link"`
}

// Message is stored at chats/{chatId}/messages/{id}.
type Message struct {
	Meta      `bson:",inline"`
	SenderID  string      `json:"senderId" bson:"senderId" validate:"required"`
	Type      MessageType `json:"type" bson:"type" validate:"required,oneof=text book_share reel_share"`
	Text      string      `json:"text" bson:"text" validate:"max=4000"`
	Shared    *SharedRef  `json:"shared,omitempty" bson:"shared,omitempty"`
	CreatedAt time.Time   `json:"createdAt" bson:"createdAt,omitempty"`
}

// SendMessageRequest defines the request body for a text message
type SendMessageRequest struct {
	Text string `json:"text" validate:"required,min=1,max=4000"`
}

// ShareBookRequest defines the request body for sharing a book into a chat
type ShareBookRequest struct {
	BookID string `json:"bookId" validate:"required"`
}
