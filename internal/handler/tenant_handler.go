package handler

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"tenant-admin-service/internal/model"
	"tenant-admin-service/pkg/database"
	"tenant-admin-service/pkg/logger"
	"tenant-admin-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CreateTenant creates a tenant and grants the acting user ownership of it.
// The tenant, the Owner role, the membership and the role assignment are
// created in one transaction.
func CreateTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("create")

	// Get user ID from context (set by AuthMiddleware)
	userID, ok := c.Get("user_id").(uint)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordError("missing_actor")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
	}

	// Parse request
	var req struct {
		Name    string `json:"name"`
		Details string `json:"details,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse tenant creation request", zap.Error(err))
		prometheus.RecordError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name == "" {
		log.Error("Invalid tenant data", zap.String("name", req.Name))
		prometheus.RecordError("incomplete_tenant_creation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	tenant := model.Tenant{
		Name:    req.Name,
		Details: req.Details,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	err := database.GetDB().Transaction(func(tx *gorm.DB) error {
		if result := tx.Create(&tenant); result.Error != nil {
			return result.Error
		}
		return grantTenantOwnership(tx, userID, tenant.ID)
	})
	if err != nil {
		log.Error("Failed to create tenant", zap.Error(err))
		prometheus.RecordError("tenant_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant creation failed"})
	}

	log.Info("Tenant created",
		zap.String("name", tenant.Name),
		zap.Uint("id", tenant.ID),
		zap.Uint("owner_id", userID))

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Tenant created successfully",
		"tenant":  tenant,
	})
}

// ListUserTenants returns every tenant the acting user belongs to, annotated
// with an is_admin flag derived from the user's global roles: true iff any
// global role is named "admin", case-insensitively. Tenant-scoped Owner
// status does not influence the flag.
func ListUserTenants(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("list")

	userID, ok := c.Get("user_id").(uint)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordError("missing_actor")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var memberships []model.TenantUser
	if result := database.GetDB().Preload("Tenant").Where("user_id = ?", userID).Find(&memberships); result.Error != nil {
		log.Error("Failed to retrieve user's tenants", zap.Error(result.Error))
		prometheus.RecordError("tenant_retrieval_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve tenants"})
	}

	var userRoles []model.UserRole
	if result := database.GetDB().Preload("Role").Where("user_id = ?", userID).Find(&userRoles); result.Error != nil {
		log.Error("Failed to retrieve user's global roles", zap.Error(result.Error))
		prometheus.RecordError("role_retrieval_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve tenants"})
	}

	isAdmin := false
	for _, ur := range userRoles {
		if strings.EqualFold(ur.Role.Name, "admin") {
			isAdmin = true
			break
		}
	}

	sort.Slice(memberships, func(i, j int) bool {
		return memberships[i].Tenant.Name < memberships[j].Tenant.Name
	})

	response := make([]echo.Map, 0, len(memberships))
	for _, m := range memberships {
		response = append(response, echo.Map{
			"id":         m.Tenant.ID,
			"name":       m.Tenant.Name,
			"details":    m.Tenant.Details,
			"created_at": m.Tenant.CreatedAt,
			"updated_at": m.Tenant.UpdatedAt,
			"is_admin":   isAdmin,
		})
	}

	return c.JSON(http.StatusOK, response)
}

// GetTenant retrieves tenant details
func GetTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("get")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		prometheus.RecordError("invalid_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, id); result.Error != nil {
		log.Warn("Tenant not found", zap.Uint64("id", id))
		prometheus.RecordError("tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	return c.JSON(http.StatusOK, tenant)
}

// UpdateTenant updates a tenant's name and details
func UpdateTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("update")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
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
		log.Error("Failed to parse tenant update request", zap.Error(err))
		prometheus.RecordError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name == "" {
		prometheus.RecordError("incomplete_tenant_update")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, id); result.Error != nil {
		log.Warn("Tenant not found", zap.Uint64("id", id))
		prometheus.RecordError("tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	tenant.Name = req.Name
	tenant.Details = req.Details

	if err := database.GetDB().Save(&tenant).Error; err != nil {
		log.Error("Failed to update tenant", zap.Error(err))
		prometheus.RecordError("tenant_update_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant update failed"})
	}

	log.Info("Tenant updated", zap.Uint("id", tenant.ID), zap.String("name", tenant.Name))

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Tenant updated successfully",
		"tenant":  tenant,
	})
}

// DeleteTenant removes a tenant together with its memberships, tenant roles
// and tenant role assignments in one transaction.
func DeleteTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("delete")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		prometheus.RecordError("invalid_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, id); result.Error != nil {
		log.Warn("Tenant not found", zap.Uint64("id", id))
		prometheus.RecordError("tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ?", id).Delete(&model.TenantUserRoleAssignment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ?", id).Delete(&model.TenantUserRole{}).Error; err != nil {
			return err
		}
		if err := tx.Where("tenant_id = ?", id).Delete(&model.TenantUser{}).Error; err != nil {
			return err
		}
		return tx.Delete(&tenant).Error
	})
	if err != nil {
		log.Error("Failed to delete tenant", zap.Error(err))
		prometheus.RecordError("tenant_delete_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant deletion failed"})
	}

	log.Info("Tenant deleted", zap.Uint64("id", id), zap.String("name", tenant.Name))

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// ListTenantUsers returns the members of a tenant
func ListTenantUsers(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("list_users")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		prometheus.RecordError("invalid_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var memberships []model.TenantUser
	if result := database.GetDB().Preload("User").Where("tenant_id = ?", id).Find(&memberships); result.Error != nil {
		log.Error("Failed to retrieve tenant users", zap.Error(result.Error))
		prometheus.RecordError("tenant_user_retrieval_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve tenant users"})
	}

	response := make([]echo.Map, 0, len(memberships))
	for _, m := range memberships {
		response = append(response, echo.Map{
			"id": m.ID,
			"user": echo.Map{
				"id":       m.User.ID,
				"username": m.User.Username,
				"email":    m.User.Email,
			},
			"created_at": m.CreatedAt,
		})
	}

	return c.JSON(http.StatusOK, response)
}

// AddUserToTenant creates a membership for an existing user in a tenant
func AddUserToTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("add_user")

	tenantID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		prometheus.RecordError("invalid_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	var req struct {
		UserID uint `json:"user_id"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse add user request", zap.Error(err))
		prometheus.RecordError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.UserID == 0 {
		prometheus.RecordError("incomplete_tenant_user_add")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, tenantID); result.Error != nil {
		log.Warn("Tenant not found", zap.Uint64("id", tenantID))
		prometheus.RecordError("tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	var user model.User
	if result := database.GetDB().First(&user, req.UserID); result.Error != nil {
		log.Warn("User not found", zap.Uint("id", req.UserID))
		prometheus.RecordError("user_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	// At most one membership per (user, tenant) pair
	var existing model.TenantUser
	result := database.GetDB().Where("user_id = ? AND tenant_id = ?", req.UserID, tenantID).First(&existing)
	if result.Error == nil {
		prometheus.RecordError("membership_already_exists")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user is already a member of this tenant"})
	}

	membership := model.TenantUser{
		UserID:   req.UserID,
		TenantID: uint(tenantID),
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&membership).Error; err != nil {
		log.Error("Failed to add user to tenant", zap.Error(err))
		prometheus.RecordError("tenant_user_add_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to add user to tenant"})
	}

	log.Info("Added user to tenant",
		zap.Uint64("tenant_id", tenantID),
		zap.Uint("user_id", req.UserID))

	return c.JSON(http.StatusCreated, echo.Map{
		"message":     "User added to tenant successfully",
		"tenant_user": membership,
	})
}

// RemoveUserFromTenant deletes a membership. The junction row is located by
// its (tenant, user) composite first and removed by its own id.
func RemoveUserFromTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("remove_user")

	tenantID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid tenant ID", zap.Error(err))
		prometheus.RecordError("invalid_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant ID"})
	}

	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 32)
	if err != nil {
		log.Error("Invalid user ID", zap.Error(err))
		prometheus.RecordError("invalid_user_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var membership model.TenantUser
	result := database.GetDB().Where("tenant_id = ? AND user_id = ?", tenantID, userID).First(&membership)
	if result.Error != nil {
		log.Warn("Membership not found",
			zap.Uint64("tenant_id", tenantID),
			zap.Uint64("user_id", userID))
		prometheus.RecordError("membership_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found in tenant"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := database.GetDB().Delete(&model.TenantUser{}, membership.ID).Error; err != nil {
		log.Error("Failed to remove user from tenant", zap.Error(err))
		prometheus.RecordError("tenant_user_remove_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to remove user from tenant"})
	}

	log.Info("Removed user from tenant",
		zap.Uint64("tenant_id", tenantID),
		zap.Uint64("user_id", userID))

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
