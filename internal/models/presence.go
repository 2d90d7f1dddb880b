package models

import "time"

const PresenceOnline = "online"

// Presence is stored at presence/{uid}. Offline is implied by a stale LastSeen.
type Presence struct {
	Meta     `bson:",inline"`
	Status   string    `json:"status" bson:"status" validate:"required"`
	LastSeen time.Time `json:"lastSeen" bson:"lastSeen"`
}
