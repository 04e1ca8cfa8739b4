package model

import (
	"time"
)

// TenantUserRoleAssignment grants a tenant-scoped role to a user within that
// tenant. At most one assignment per (user, tenant, role) triple.
type TenantUserRoleAssignment struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	UserID           uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_tenant_role_assignments_key"`
	TenantID         uint      `json:"tenant_id" gorm:"not null;uniqueIndex:idx_tenant_role_assignments_key"`
	TenantUserRoleID uint      `json:"tenant_user_role_id" gorm:"not null;uniqueIndex:idx_tenant_role_assignments_key"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	// Relations
	User           User           `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Tenant         Tenant         `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
	TenantUserRole TenantUserRole `json:"tenant_user_role,omitempty" gorm:"foreignKey:TenantUserRoleID"`
}
