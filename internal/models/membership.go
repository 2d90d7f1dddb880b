package models

import "time"

// Membership records that UserID performed a toggle action (favorite, like,
// follow, view) on TargetID. Its existence is the toggle state.
type Membership struct {
	Meta      `bson:",inline"`
	UserID    string    `json:"userId" bson:"userId" validate:"required"`
	TargetID  string    `json:"targetId" bson:"targetId" validate:"required"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt,omitempty"`
}
