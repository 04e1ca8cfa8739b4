package model

import (
	"time"
)

// TenantUserRole is a role definition scoped to one tenant, e.g. "Owner" or
// "USER". Role names are unique within a tenant, not globally.
type TenantUserRole struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null;uniqueIndex:idx_tenant_user_roles_name_tenant"`
	TenantID  uint      `json:"tenant_id" gorm:"not null;uniqueIndex:idx_tenant_user_roles_name_tenant"`
	Details   string    `json:"details,omitempty" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Tenant Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}
