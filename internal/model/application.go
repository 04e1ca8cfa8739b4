package model

import (
	"time"
)

// Application represents a registered application owned by a user. AppID is
// the externally visible identifier; the numeric primary key stays internal.
type Application struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	AppID     string    `json:"app_id" gorm:"type:varchar(36);uniqueIndex"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null"`
	Details   string    `json:"details,omitempty" gorm:"type:text"`
	Metadata  string    `json:"metadata,omitempty" gorm:"type:jsonb"`
	OwnerID   uint      `json:"owner_id" gorm:"index;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
