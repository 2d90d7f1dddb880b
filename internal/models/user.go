package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// User is the public profile stored at users/{uid}. Private subcollections
// (favorites, following, notifications, settings) hang off the same path.
type User struct {
	Meta           `bson:",inline"`
	DisplayName    string    `json:"displayName" bson:"displayName" validate:"max=80"`
	AvatarURL      string    `json:"avatarUrl,omitempty" bson:"avatarUrl,omitempty" validate:"omitempty,url"`
	Role           string    `json:"role,omitempty" bson:"role,omitempty" validate:"omitempty,oneof=user admin"`
	FollowerCount  int64     `json:"followerCount" bson:"followerCount"`
	FollowingCount int64     `json:"followingCount" bson:"followingCount"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt,omitempty"`
}

// JwtCustomClaims are the claims of locally issued development tokens.
type JwtCustomClaims struct {
	UID           string `json:"uid"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	EmailVerified bool   `json:"email_verified"`
	jwt.RegisteredClaims
}

// UpdateProfileRequest changes the public profile. Empty fields are left as they are.
type UpdateProfileRequest struct {
	DisplayName string `json:"displayName" validate:"omitempty,min=1,max=80"`
	AvatarURL   string `json:"avatarUrl" validate:"omitempty,url"`
}

// DevTokenRequest asks for a locally signed session token.
type DevTokenRequest struct {
	UID         string `json:"uid" validate:"required,max=128"`
	DisplayName string `json:"displayName" validate:"max=80"`
	AvatarURL   string `json:"avatarUrl" validate:"omitempty,url"`
}
