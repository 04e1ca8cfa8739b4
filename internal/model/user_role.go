package model

import (
	"time"
)

// UserRole assigns a global Role to a User. The unique index keeps the
// assignment set free of duplicates even under concurrent toggles.
type UserRole struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_user_roles_user_role"`
	RoleID    uint      `json:"role_id" gorm:"not null;uniqueIndex:idx_user_roles_user_role"`
	Name      string    `json:"name" gorm:"type:varchar(200)"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Role Role `json:"role,omitempty" gorm:"foreignKey:RoleID"`
}
