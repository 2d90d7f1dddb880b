package models

import "time"

// StoryTTL is how long a story stays visible.
const StoryTTL = 24 * time.Hour

// Story is stored at stories/{id}; viewers are recorded under stories/{id}/views.
type Story struct {
	Meta      `bson:",inline"`
	AuthorID  string    `json:"authorId" bson:"authorId" validate:"required"`
	MediaURL  string    `json:"mediaUrl" bson:"mediaUrl" validate:"required,url"`
	MediaType string    `json:"mediaType" bson:"mediaType" validate:"required,oneof=image video"`
	ViewCount int64     `json:"viewCount" bson:"viewCount"`
	ExpiresAt time.Time `json:"expiresAt" bson:"expiresAt"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt,omitempty"`
}

// CreateStoryRequest defines the request body for creating a story
type CreateStoryRequest struct {
	MediaURL  string `json:"mediaUrl" validate:"required,url"`
	MediaType string `json:"mediaType" validate:"required,oneof=image video"`
}
