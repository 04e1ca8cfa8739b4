package handler

import (
	"net/http"
	"strconv"
	"time"

	"tenant-admin-service/internal/model"
	"tenant-admin-service/pkg/database"
	"tenant-admin-service/pkg/logger"
	"tenant-admin-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ListTenantRoles returns the role definitions scoped to a tenant
func ListTenantRoles(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordRoleOperation("tenant_list")

	tenantID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		prometheus.RecordError("invalid_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var roles []model.TenantUserRole
	if result := database.GetDB().Where("tenant_id = ?", tenantID).Find(&roles); result.Error != nil {
		log.Error("Failed to retrieve tenant roles", zap.Error(result.Error))
		prometheus.RecordError("role_retrieval_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve tenant roles"})
	}

	return c.JSON(http.StatusOK, roles)
}

// CreateTenantRole creates a role definition scoped to a tenant. Role names
// are unique within a tenant.
func CreateTenantRole(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordRoleOperation("tenant_create")

	tenantID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		prometheus.RecordError("invalid_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	var req struct {
		Name    string `json:"name"`
		Details string `json:"details,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse tenant role creation request", zap.Error(err))
		prometheus.RecordError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name == "" {
		prometheus.RecordError("incomplete_role_creation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, tenantID); result.Error != nil {
		log.Warn("Tenant not found", zap.Uint64("id", tenantID))
		prometheus.RecordError("tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	var existing model.TenantUserRole
	result := database.GetDB().Where("name = ? AND tenant_id = ?", req.Name, tenantID).First(&existing)
	if result.Error == nil {
		prometheus.RecordError("role_already_exists")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Role already exists in this tenant"})
	}

	role := model.TenantUserRole{
		Name:     req.Name,
		TenantID: uint(tenantID),
		Details:  req.Details,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&role); result.Error != nil {
		log.Error("Failed to create tenant role", zap.Error(result.Error))
		prometheus.RecordError("role_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant role creation failed"})
	}

	log.Info("Tenant role created",
		zap.String("name", role.Name),
		zap.Uint64("tenant_id", tenantID),
		zap.Uint("id", role.ID))

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Tenant role created successfully",
		"role":    role,
	})
}

// DeleteTenantRole removes a tenant role definition. User assignments of the
// role are removed first, in the same transaction.
func DeleteTenantRole(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordRoleOperation("tenant_delete")

	tenantID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		prometheus.RecordError("invalid_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	roleID, err := strconv.ParseUint(c.Param("role_id"), 10, 32)
	if err != nil {
		log.Error("Invalid role ID", zap.Error(err))
		prometheus.RecordError("invalid_role_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var role model.TenantUserRole
	result := database.GetDB().Where("id = ? AND tenant_id = ?", roleID, tenantID).First(&role)
	if result.Error != nil {
		log.Warn("Tenant role not found",
			zap.Uint64("tenant_id", tenantID),
			zap.Uint64("role_id", roleID))
		prometheus.RecordError("role_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant role not found"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_user_role_id = ?", roleID).Delete(&model.TenantUserRoleAssignment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&role).Error
	})
	if err != nil {
		log.Error("Failed to delete tenant role", zap.Error(err))
		prometheus.RecordError("role_delete_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant role deletion failed"})
	}

	log.Info("Tenant role deleted",
		zap.Uint64("tenant_id", tenantID),
		zap.Uint64("role_id", roleID))

	return c.NoContent(http.StatusNoContent)
}

// ToggleTenantUserRole assigns or removes a tenant-scoped role for a user
// within a tenant. Same toggle contract as the global variant, keyed on the
// (user, tenant, role) triple.
func ToggleTenantUserRole(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordRoleOperation("tenant_toggle")

	userID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid user ID", zap.Error(err))
		prometheus.RecordError("invalid_user_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	tenantID, err := strconv.ParseUint(c.Param("tenant_id"), 10, 32)
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		prometheus.RecordError("invalid_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	roleID, err := strconv.ParseUint(c.Param("role_id"), 10, 32)
	if err != nil {
		log.Error("Invalid role ID", zap.Error(err))
		prometheus.RecordError("invalid_role_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var role model.TenantUserRole
	result := database.GetDB().Where("id = ? AND tenant_id = ?", roleID, tenantID).First(&role)
	if result.Error != nil {
		log.Warn("Tenant role not found",
			zap.Uint64("tenant_id", tenantID),
			zap.Uint64("role_id", roleID))
		prometheus.RecordError("role_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant role not found"})
	}

	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		result := tx.Where("user_id = ? AND tenant_id = ? AND tenant_user_role_id = ?", userID, tenantID, roleID).
			Delete(&model.TenantUserRoleAssignment{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			assignment := model.TenantUserRoleAssignment{
				UserID:           uint(userID),
				TenantID:         uint(tenantID),
				TenantUserRoleID: uint(roleID),
			}
			return tx.Create(&assignment).Error
		}
		return nil
	})
	if err != nil {
		log.Error("Failed to toggle tenant role", zap.Error(err))
		prometheus.RecordError("role_toggle_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to toggle tenant role"})
	}

	log.Info("Toggled tenant role",
		zap.Uint64("user_id", userID),
		zap.Uint64("tenant_id", tenantID),
		zap.Uint64("role_id", roleID))

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
