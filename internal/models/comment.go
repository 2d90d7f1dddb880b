package models

import "time"

// Comment is stored at {entity}/{id}/comments/{commentId}. Replies carry ParentID.
type Comment struct {
	Meta         `bson:",inline"`
	AuthorID     string    `json:"authorId" bson:"authorId" validate:"required"`
	AuthorName   string    `json:"authorName" bson:"authorName"`
	AuthorAvatar string    `json:"authorAvatar,omitempty" bson:"authorAvatar,omitempty"`
	Text         string    `json:"text" bson:"text" validate:"required,min=1,max=2000"`
	ParentID     string    `json:"parentId,omitempty" bson:"parentId,omitempty"`
	ReplyCount   int64     `json:"replyCount" bson:"replyCount"`
	LikeCount    int64     `json:"likeCount" bson:"likeCount"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt,omitempty"`
}

// CreateCommentRequest defines the request body for creating a new comment
type CreateCommentRequest struct {
	Text     string `json:"text" validate:"required,min=1,max=2000"`
	ParentID string `json:"parentId,omitempty"`
}
