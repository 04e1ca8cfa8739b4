package model

import (
	"time"
)

// TenantUser represents the membership association between users and tenants.
// At most one membership row may exist per (user, tenant) pair.
type TenantUser struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_tenant_users_user_tenant"`
	TenantID  uint      `json:"tenant_id" gorm:"not null;uniqueIndex:idx_tenant_users_user_tenant"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	User   User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Tenant Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}
