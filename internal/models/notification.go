package models

import "time"

// NotificationType names the interaction that produced a notification.
type NotificationType string

const (
	NotificationFavorite     NotificationType = "favorite"
	NotificationBookComment  NotificationType = "book_comment"
	NotificationCommentReply NotificationType = "comment_reply"
	NotificationReelLike     NotificationType = "reel_like"
	NotificationReelComment  NotificationType = "reel_comment"
	NotificationFollow       NotificationType = "follow"
)

// PreferenceKey is the key in the recipient's preference map that gates this type.
func (t NotificationType) PreferenceKey() string {
	switch t {
	case NotificationFavorite:
		return "onFavorite"
	case NotificationBookComment:
		return "onBookComment"
	case NotificationCommentReply:
		return "onReply"
	case NotificationReelLike:
		return "onReelLike"
	case NotificationReelComment:
		return "onReelComment"
	case NotificationFollow:
		return "onFollow"
	}
	return string(t)
}

// ActorSnapshot is the actor's profile as it was when the notification was written.
type ActorSnapshot struct {
	ID     string `json:"id" bson:"id" validate:"required"`
	Name   string `json:"name" bson:"name"`
	Avatar string `json:"avatar,omitempty" bson:"avatar,omitempty"`
}

// Notification is stored at users/{recipient}/notifications/{id}.
type Notification struct {
	Meta      `bson:",inline"`
	Type      NotificationType `json:"type" bson:"type" validate:"required"`
	Text      string           `json:"text" bson:"text" validate:"required"`
	Link      string           `json:"link" bson:"link"`
	Actor     ActorSnapshot    `json:"actor" bson:"actor"`
	Read      bool             `json:"read" bson:"read"`
	CreatedAt time.Time        `json:"createdAt" bson:"createdAt,omitempty"`
}

// NotificationPreferences maps a preference key to enabled/disabled. Missing
// keys mean enabled.
type NotificationPreferences map[string]bool

// Enabled reports whether t may be delivered.
func (p NotificationPreferences) Enabled(t NotificationType) bool {
	enabled, ok := p[t.PreferenceKey()]
	return !ok || enabled
}
