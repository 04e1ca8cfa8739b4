package handler

import (
	"errors"
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
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// bcryptCost is the work factor for password hashing
const bcryptCost = 12

var (
	errTenantNotFound = errors.New("tenant not found")
	errRoleNotFound   = errors.New("role not found")
)

// CreateUser creates a new user. When a tenant_id is supplied the user is
// enrolled in that tenant with the default "USER" tenant role. When it is
// not, a personal tenant named after the user is created and the user is
// granted its "Owner" role. Either path runs inside one transaction.
func CreateUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordUserOperation("create")

	// Parse request
	var req struct {
		Username  string   `json:"username"`
		Email     string   `json:"email"`
		Password  string   `json:"password"`
		TenantID  *uint    `json:"tenant_id,omitempty"`
		RoleNames []string `json:"role_names,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse user creation request", zap.Error(err))
		prometheus.RecordError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		log.Error("Invalid user data",
			zap.String("username", req.Username),
			zap.String("email", req.Email),
			zap.Bool("password_provided", req.Password != ""))
		prometheus.RecordError("incomplete_user_creation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username, email and password are required"})
	}

	// Check if username or email already exists - track DB query
	defer prometheus.TrackDBOperation("query")(time.Now())
	var existingUser model.User
	result := database.GetDB().Where("username = ? OR email = ?", req.Username, req.Email).First(&existingUser)
	if result.Error == nil {
		log.Warn("User already exists",
			zap.String("username", req.Username),
			zap.String("email", req.Email))
		prometheus.RecordError("user_already_exists")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Username or email already exists"})
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		prometheus.RecordError("password_hash_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "user creation failed"})
	}

	user := model.User{
		Username: req.Username,
		Email:    req.Email,
		Password: string(hashedPassword),
	}

	// User, tenant enrollment and role assignments succeed or fail together
	defer prometheus.TrackDBOperation("insert")(time.Now())
	err = database.GetDB().Transaction(func(tx *gorm.DB) error {
		if result := tx.Create(&user); result.Error != nil {
			return result.Error
		}

		if req.TenantID != nil {
			if err := enrollUserInTenant(tx, user.ID, *req.TenantID); err != nil {
				return err
			}
		} else {
			if err := createPersonalTenant(tx, &user); err != nil {
				return err
			}
		}

		for _, roleName := range req.RoleNames {
			var role model.Role
			if err := tx.Where("name = ?", roleName).First(&role).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: %s", errRoleNotFound, roleName)
				}
				return err
			}

			userRole := model.UserRole{
				UserID: user.ID,
				RoleID: role.ID,
				Name:   fmt.Sprintf("%s-%s", user.Username, role.Name),
			}
			if err := tx.Create(&userRole).Error; err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		if errors.Is(err, errTenantNotFound) || errors.Is(err, errRoleNotFound) {
			log.Warn("User creation rejected", zap.Error(err))
			prometheus.RecordError("not_found")
			return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
		}
		log.Error("Failed to create user", zap.Error(err))
		prometheus.RecordError("user_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "user creation failed"})
	}

	log.Info("User created",
		zap.String("username", user.Username),
		zap.Uint("id", user.ID))

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "User created successfully",
		"user":    user,
	})
}

// enrollUserInTenant adds the user to an existing tenant with the default
// "USER" tenant role, creating the role on demand.
func enrollUserInTenant(tx *gorm.DB, userID, tenantID uint) error {
	var tenant model.Tenant
	if err := tx.First(&tenant, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errTenantNotFound
		}
		return err
	}

	role, err := getOrCreateTenantRole(tx, tenantID, "USER", "Default tenant role")
	if err != nil {
		return err
	}

	membership := model.TenantUser{
		UserID:   userID,
		TenantID: tenantID,
	}
	if err := tx.Create(&membership).Error; err != nil {
		return err
	}

	assignment := model.TenantUserRoleAssignment{
		UserID:           userID,
		TenantID:         tenantID,
		TenantUserRoleID: role.ID,
	}
	return tx.Create(&assignment).Error
}

// createPersonalTenant creates a tenant named after the user and makes the
// user its owner.
func createPersonalTenant(tx *gorm.DB, user *model.User) error {
	tenant := model.Tenant{
		Name: fmt.Sprintf("%s's Tenant", user.Username),
	}
	if err := tx.Create(&tenant).Error; err != nil {
		return err
	}

	return grantTenantOwnership(tx, user.ID, tenant.ID)
}

// getOrCreateTenantRole looks up a tenant role by (name, tenant) and creates
// it if absent.
func getOrCreateTenantRole(tx *gorm.DB, tenantID uint, name, details string) (model.TenantUserRole, error) {
	var role model.TenantUserRole
	err := tx.Where("name = ? AND tenant_id = ?", name, tenantID).First(&role).Error
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.TenantUserRole{}, err
	}

	role = model.TenantUserRole{
		Name:     name,
		TenantID: tenantID,
		Details:  details,
	}
	if err := tx.Create(&role).Error; err != nil {
		return model.TenantUserRole{}, err
	}
	return role, nil
}

// grantTenantOwnership creates the Owner tenant role, the membership and the
// role assignment for the given user within the given tenant.
func grantTenantOwnership(tx *gorm.DB, userID, tenantID uint) error {
	role, err := getOrCreateTenantRole(tx, tenantID, "Owner", "Tenant owner")
	if err != nil {
		return err
	}

	membership := model.TenantUser{
		UserID:   userID,
		TenantID: tenantID,
	}
	if err := tx.Create(&membership).Error; err != nil {
		return err
	}

	assignment := model.TenantUserRoleAssignment{
		UserID:           userID,
		TenantID:         tenantID,
		TenantUserRoleID: role.ID,
	}
	return tx.Create(&assignment).Error
}

// ListUsers returns all users with their global roles and, per tenant
// membership, their tenant-scoped roles.
func ListUsers(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordUserOperation("list")

	defer prometheus.TrackDBOperation("query")(time.Now())
	var users []model.User
	if result := database.GetDB().Order("created_at desc").Find(&users); result.Error != nil {
		log.Error("Failed to retrieve users", zap.Error(result.Error))
		prometheus.RecordError("user_retrieval_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve users"})
	}

	response := make([]echo.Map, 0, len(users))
	for _, user := range users {
		detail, err := buildUserDetail(user)
		if err != nil {
			log.Error("Failed to load user associations", zap.Uint("user_id", user.ID), zap.Error(err))
			prometheus.RecordError("user_retrieval_failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve users"})
		}
		response = append(response, detail)
	}

	return c.JSON(http.StatusOK, response)
}

// GetUser returns one user with roles and tenant memberships
func GetUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordUserOperation("get")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid user ID", zap.Error(err))
		prometheus.RecordError("invalid_user_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if result := database.GetDB().First(&user, id); result.Error != nil {
		log.Warn("User not found", zap.Uint64("id", id))
		prometheus.RecordError("user_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	detail, err := buildUserDetail(user)
	if err != nil {
		log.Error("Failed to load user associations", zap.Uint64("id", id), zap.Error(err))
		prometheus.RecordError("user_retrieval_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve user"})
	}

	return c.JSON(http.StatusOK, detail)
}

// buildUserDetail loads a user's global roles, memberships and tenant role
// assignments and flattens them into the response shape.
func buildUserDetail(user model.User) (echo.Map, error) {
	db := database.GetDB()

	var userRoles []model.UserRole
	if err := db.Preload("Role").Where("user_id = ?", user.ID).Find(&userRoles).Error; err != nil {
		return nil, err
	}

	var memberships []model.TenantUser
	if err := db.Preload("Tenant").Where("user_id = ?", user.ID).Find(&memberships).Error; err != nil {
		return nil, err
	}

	var assignments []model.TenantUserRoleAssignment
	if err := db.Preload("TenantUserRole").Where("user_id = ?", user.ID).Find(&assignments).Error; err != nil {
		return nil, err
	}

	roles := make([]echo.Map, 0, len(userRoles))
	for _, ur := range userRoles {
		roles = append(roles, echo.Map{"id": ur.Role.ID, "name": ur.Role.Name})
	}

	tenants := make([]echo.Map, 0, len(memberships))
	for _, m := range memberships {
		tenantRoles := make([]echo.Map, 0)
		for _, a := range assignments {
			if a.TenantID == m.TenantID {
				tenantRoles = append(tenantRoles, echo.Map{
					"id":   a.TenantUserRole.ID,
					"name": a.TenantUserRole.Name,
				})
			}
		}
		tenants = append(tenants, echo.Map{
			"tenant":       echo.Map{"id": m.Tenant.ID, "name": m.Tenant.Name},
			"tenant_roles": tenantRoles,
		})
	}

	return echo.Map{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"created_at": user.CreatedAt,
		"updated_at": user.UpdatedAt,
		"roles":      roles,
		"tenants":    tenants,
	}, nil
}

// UpdateUser updates a user's username and email. The password cannot be
// changed through this endpoint.
func UpdateUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordUserOperation("update")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid user ID", zap.Error(err))
		prometheus.RecordError("invalid_user_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse user update request", zap.Error(err))
		prometheus.RecordError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Username == "" || req.Email == "" {
		prometheus.RecordError("incomplete_user_update")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username and email are required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if result := database.GetDB().First(&user, id); result.Error != nil {
		log.Warn("User not found", zap.Uint64("id", id))
		prometheus.RecordError("user_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	// Check the new username/email against other users, excluding this one
	var existingUser model.User
	result := database.GetDB().
		Where("(username = ? OR email = ?) AND id <> ?", req.Username, req.Email, id).
		First(&existingUser)
	if result.Error == nil {
		log.Warn("User update conflicts with existing user",
			zap.Uint64("id", id),
			zap.Uint("conflicting_id", existingUser.ID))
		prometheus.RecordError("user_already_exists")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Username or email already exists"})
	}

	user.Username = req.Username
	user.Email = req.Email

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := database.GetDB().Save(&user).Error; err != nil {
		log.Error("Failed to update user", zap.Error(err))
		prometheus.RecordError("user_update_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "user update failed"})
	}

	log.Info("User updated", zap.Uint("id", user.ID), zap.String("username", user.Username))

	return c.JSON(http.StatusOK, echo.Map{
		"message": "User updated successfully",
		"user":    user,
	})
}

// DeleteUser removes the user row. Dependent rows in other tables are left
// untouched; see the tenant and role endpoints for scoped cleanup.
func DeleteUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordUserOperation("delete")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		log.Error("Invalid user ID", zap.Error(err))
		prometheus.RecordError("invalid_user_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	result := database.GetDB().Delete(&model.User{}, id)
	if result.Error != nil {
		log.Error("Failed to delete user", zap.Error(result.Error))
		prometheus.RecordError("user_delete_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "user deletion failed"})
	}

	if result.RowsAffected == 0 {
		prometheus.RecordError("user_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	log.Info("User deleted", zap.Uint64("id", id))

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
