package handler

import (
	"fmt"
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

// ListRoles returns all global role definitions
func ListRoles(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordRoleOperation("list")

	defer prometheus.TrackDBOperation("query")(time.Now())
	var roles []model.Role
	if result := database.GetDB().Order("name asc").Find(&roles); result.Error != nil {
		log.Error("Failed to retrieve roles", zap.Error(result.Error))
		prometheus.RecordError("role_retrieval_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve roles"})
	}

	return c.JSON(http.StatusOK, roles)
}

// CreateRole creates a global role definition
func CreateRole(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordRoleOperation("create")

	var req struct {
		Name    string `json:"name"`
		Details string `json:"details,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse role creation request", zap.Error(err))
		prometheus.RecordError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name == "" {
		prometheus.RecordError("incomplete_role_creation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	// Role names are globally unique
	defer prometheus.TrackDBOperation("query")(time.Now())
	var existing model.Role
	if result := database.GetDB().Where("name = ?", req.Name).First(&existing); result.Error == nil {
		prometheus.RecordError("role_already_exists")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Role already exists"})
	}

	role := model.Role{
		Name:    req.Name,
		Details: req.Details,
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&role); result.Error != nil {
		log.Error("Failed to create role", zap.Error(result.Error))
		prometheus.RecordError("role_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "role creation failed"})
	}

	log.Info("Role created", zap.String("name", role.Name), zap.Uint("id", role.ID))

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Role created successfully",
		"role":    role,
	})
}

// GetRole returns a global role together with the users holding it
func GetRole(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordRoleOperation("get")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid role ID", zap.Error(err))
		prometheus.RecordError("invalid_role_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var role model.Role
	if result := database.GetDB().First(&role, id); result.Error != nil {
		log.Warn("Role not found", zap.Uint64("id", id))
		prometheus.RecordError("role_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "role not found"})
	}

	var userRoles []model.UserRole
	if result := database.GetDB().Preload("User").Where("role_id = ?", id).Find(&userRoles); result.Error != nil {
		log.Error("Failed to retrieve role users", zap.Error(result.Error))
		prometheus.RecordError("role_retrieval_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve role"})
	}

	users := make([]echo.Map, 0, len(userRoles))
	for _, ur := range userRoles {
		users = append(users, echo.Map{
			"id":       ur.User.ID,
			"username": ur.User.Username,
			"email":    ur.User.Email,
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":      role.ID,
		"name":    role.Name,
		"details": role.Details,
		"users":   users,
	})
}

// ToggleUserRole assigns the global role to the user if no assignment exists
// and removes it otherwise. The conditional delete-else-insert runs in one
// transaction; the unique index on (user_id, role_id) keeps concurrent
// toggles from double-inserting. The response does not reveal the resulting
// state.
func ToggleUserRole(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordRoleOperation("toggle")

	userID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid user ID", zap.Error(err))
		prometheus.RecordError("invalid_user_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	roleID, err := strconv.ParseUint(c.Param("role_id"), 10, 32)
	if err != nil {
		log.Error("Invalid role ID", zap.Error(err))
		prometheus.RecordError("invalid_role_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if result := database.GetDB().First(&user, userID); result.Error != nil {
		log.Warn("User not found", zap.Uint64("id", userID))
		prometheus.RecordError("user_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	var role model.Role
	if result := database.GetDB().First(&role, roleID); result.Error != nil {
		log.Warn("Role not found", zap.Uint64("id", roleID))
		prometheus.RecordError("role_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "role not found"})
	}

	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		result := tx.Where("user_id = ? AND role_id = ?", userID, roleID).Delete(&model.UserRole{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			userRole := model.UserRole{
				UserID: uint(userID),
				RoleID: uint(roleID),
				Name:   fmt.Sprintf("%s-%s", user.Username, role.Name),
			}
			return tx.Create(&userRole).Error
		}
		return nil
	})
	if err != nil {
		log.Error("Failed to toggle role", zap.Error(err))
		prometheus.RecordError("role_toggle_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to toggle role"})
	}

	log.Info("Toggled global role",
		zap.Uint64("user_id", userID),
		zap.Uint64("role_id", roleID))

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
