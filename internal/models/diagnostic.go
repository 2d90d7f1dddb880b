package models

import "time"

// PermissionDiagnostic is a Postgres row recording a rejected store operation.
type PermissionDiagnostic struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"size:128;index"`
	Path      string    `json:"path" gorm:"size:512;index"`
	Operation string    `json:"operation" gorm:"size:16"`
	Payload   string    `json:"payload" gorm:"type:text"`
	Error     string    `json:"error" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}
