package models

import "time"

// Status is the publishing lifecycle of an entity.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusPublished     Status = "published"
	StatusRejected      Status = "rejected"
)

// CanTransition reports whether a lifecycle move is allowed.
// Rejected books go back to draft for edits; published books can be unpublished to draft.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusDraft:
		return to == StatusPendingReview
	case StatusPendingReview:
		return to == StatusPublished || to == StatusRejected
	case StatusRejected, StatusPublished:
		return to == StatusDraft
	}
	return false
}

// Book is stored at books/{id}. Chapters, comments and likes live in subcollections.
type Book struct {
	Meta          `bson:",inline"`
	Title         string    `json:"title" bson:"title" validate:"required,min=1,max=200"`
	Description   string    `json:"description" bson:"description" validate:"max=5000"`
	CoverURL      string    `json:"coverUrl,omitempty" bson:"coverUrl,omitempty" validate:"omitempty,url"`
	Genre         string    `json:"genre,omitempty" bson:"genre,omitempty"`
	AuthorID      string    `json:"authorId" bson:"authorId" validate:"required"`
	AuthorName    string    `json:"authorName" bson:"authorName"`
	Status        Status    `json:"status" bson:"status" validate:"required,oneof=draft pending_review published rejected"`
	ViewCount     int64     `json:"viewCount" bson:"viewCount"`
	LikeCount     int64     `json:"likeCount" bson:"likeCount"`
	FavoriteCount int64     `json:"favoriteCount" bson:"favoriteCount"`
	CommentCount  int64     `json:"commentCount" bson:"commentCount"`
	ChapterCount  int64     `json:"chapterCount" bson:"chapterCount"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updatedAt,omitempty"`
}

// Chapter is stored at books/{bookId}/chapters/{id}.
type Chapter struct {
	Meta      `bson:",inline"`
	Title     string    `json:"title" bson:"title" validate:"required,max=200"`
	Content   string    `json:"content" bson:"content"`
	Order     int       `json:"order" bson:"order" validate:"min=0"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt,omitempty"`
}

// CreateBookRequest is the publish form body.
type CreateBookRequest struct {
	Title       string `json:"title" form:"title" validate:"required,min=1,max=200"`
	Description string `json:"description" form:"description" validate:"max=5000"`
	Genre       string `json:"genre" form:"genre"`
}

// AutosaveRequest carries draft edits saved on a timer.
type AutosaveRequest struct {
	Title       string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description string `json:"description,omitempty" validate:"omitempty,max=5000"`
}
