package models

import "time"

// Reel is a short video stored at reels/{id}.
type Reel struct {
	Meta         `bson:",inline"`
	AuthorID     string    `json:"authorId" bson:"authorId" validate:"required"`
	VideoURL     string    `json:"videoUrl" bson:"videoUrl" validate:"required,url"`
	Caption      string    `json:"caption" bson:"caption" validate:"max=2200"`
	ViewCount    int64     `json:"viewCount" bson:"viewCount"`
	LikeCount    int64     `json:"likeCount" bson:"likeCount"`
	CommentCount int64     `json:"commentCount" bson:"commentCount"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt,omitempty"`
}
