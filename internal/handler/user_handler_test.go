package handler

import (
	"net/http"
	"testing"

	"tenant-admin-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUserWithoutTenantCreatesPersonalTenant(t *testing.T) {
	db := setupTestDB(t)

	c, rec := newContext(t, http.MethodPost, "/api/users", map[string]interface{}{
		"username": "alice",
		"email":    "a@x.com",
		"password": "pw123456",
	})
	require.NoError(t, CreateUser(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	// A personal tenant named after the user exists
	var tenant model.Tenant
	require.NoError(t, db.Where("name = ?", "alice's Tenant").First(&tenant).Error)

	// alice is its sole member
	var memberships []model.TenantUser
	require.NoError(t, db.Where("tenant_id = ?", tenant.ID).Find(&memberships).Error)
	require.Len(t, memberships, 1)

	var user model.User
	require.NoError(t, db.Where("username = ?", "alice").First(&user).Error)
	assert.Equal(t, user.ID, memberships[0].UserID)

	// alice holds the Owner role within it
	var ownerRole model.TenantUserRole
	require.NoError(t, db.Where("name = ? AND tenant_id = ?", "Owner", tenant.ID).First(&ownerRole).Error)

	var assignment model.TenantUserRoleAssignment
	require.NoError(t, db.Where("user_id = ? AND tenant_id = ? AND tenant_user_role_id = ?",
		user.ID, tenant.ID, ownerRole.ID).First(&assignment).Error)

	// Password is hashed, not stored verbatim
	assert.NotEqual(t, "pw123456", user.Password)
	assert.NotEmpty(t, user.Password)
}

func TestCreateUserConflict(t *testing.T) {
	db := setupTestDB(t)
	createFixtureUser(t, db, "bob", "bob@x.com")

	usersBefore := countRows(t, db, &model.User{})
	tenantsBefore := countRows(t, db, &model.Tenant{})

	// Same username, different email
	c, rec := newContext(t, http.MethodPost, "/api/users", map[string]interface{}{
		"username": "bob",
		"email":    "other@x.com",
		"password": "pw123456",
	})
	require.NoError(t, CreateUser(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Username or email already exists", decodeBody(t, rec)["error"])

	// Same email, different username
	c, rec = newContext(t, http.MethodPost, "/api/users", map[string]interface{}{
		"username": "robert",
		"email":    "bob@x.com",
		"password": "pw123456",
	})
	require.NoError(t, CreateUser(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// No partial rows were persisted
	assert.Equal(t, usersBefore, countRows(t, db, &model.User{}))
	assert.Equal(t, tenantsBefore, countRows(t, db, &model.Tenant{}))
}

func TestCreateUserWithTenantEnrollsWithDefaultRole(t *testing.T) {
	db := setupTestDB(t)
	tenant := createFixtureTenant(t, db, "Acme")

	c, rec := newContext(t, http.MethodPost, "/api/users", map[string]interface{}{
		"username":  "carol",
		"email":     "carol@x.com",
		"password":  "pw123456",
		"tenant_id": tenant.ID,
	})
	require.NoError(t, CreateUser(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	// The USER tenant role was created on demand
	var userRole model.TenantUserRole
	require.NoError(t, db.Where("name = ? AND tenant_id = ?", "USER", tenant.ID).First(&userRole).Error)

	var user model.User
	require.NoError(t, db.Where("username = ?", "carol").First(&user).Error)

	var membership model.TenantUser
	require.NoError(t, db.Where("user_id = ? AND tenant_id = ?", user.ID, tenant.ID).First(&membership).Error)

	var assignment model.TenantUserRoleAssignment
	require.NoError(t, db.Where("user_id = ? AND tenant_id = ? AND tenant_user_role_id = ?",
		user.ID, tenant.ID, userRole.ID).First(&assignment).Error)

	// A second enrollment reuses the same role definition
	c, rec = newContext(t, http.MethodPost, "/api/users", map[string]interface{}{
		"username":  "dave",
		"email":     "dave@x.com",
		"password":  "pw123456",
		"tenant_id": tenant.ID,
	})
	require.NoError(t, CreateUser(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var roleCount int64
	require.NoError(t, db.Model(&model.TenantUserRole{}).
		Where("name = ? AND tenant_id = ?", "USER", tenant.ID).Count(&roleCount).Error)
	assert.Equal(t, int64(1), roleCount)
}

func TestCreateUserWithUnknownTenant(t *testing.T) {
	db := setupTestDB(t)
	usersBefore := countRows(t, db, &model.User{})

	c, rec := newContext(t, http.MethodPost, "/api/users", map[string]interface{}{
		"username":  "erin",
		"email":     "erin@x.com",
		"password":  "pw123456",
		"tenant_id": 9999,
	})
	require.NoError(t, CreateUser(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The whole transaction rolled back, including the user row
	assert.Equal(t, usersBefore, countRows(t, db, &model.User{}))
}

func TestCreateUserWithUnknownGlobalRoleRollsBack(t *testing.T) {
	db := setupTestDB(t)
	usersBefore := countRows(t, db, &model.User{})
	tenantsBefore := countRows(t, db, &model.Tenant{})

	c, rec := newContext(t, http.MethodPost, "/api/users", map[string]interface{}{
		"username":   "frank",
		"email":      "frank@x.com",
		"password":   "pw123456",
		"role_names": []string{"no-such-role"},
	})
	require.NoError(t, CreateUser(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, usersBefore, countRows(t, db, &model.User{}))
	assert.Equal(t, tenantsBefore, countRows(t, db, &model.Tenant{}))
}

func TestCreateUserWithGlobalRoles(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.Create(&model.Role{Name: "admin"}).Error)

	c, rec := newContext(t, http.MethodPost, "/api/users", map[string]interface{}{
		"username":   "grace",
		"email":      "grace@x.com",
		"password":   "pw123456",
		"role_names": []string{"admin"},
	})
	require.NoError(t, CreateUser(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var user model.User
	require.NoError(t, db.Where("username = ?", "grace").First(&user).Error)

	var userRole model.UserRole
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&userRole).Error)
	assert.Equal(t, "grace-admin", userRole.Name)
}

func TestUpdateUserConflictExcludesSelf(t *testing.T) {
	db := setupTestDB(t)
	user := createFixtureUser(t, db, "henry", "henry@x.com")
	createFixtureUser(t, db, "iris", "iris@x.com")

	// Re-submitting the user's own username and email is not a conflict
	c, rec := newContext(t, http.MethodPut, "/", map[string]interface{}{
		"username": "henry",
		"email":    "henry@x.com",
	})
	c.SetParamNames("id")
	c.SetParamValues(intToString(user.ID))
	require.NoError(t, UpdateUser(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Colliding with another user's email is rejected
	c, rec = newContext(t, http.MethodPut, "/", map[string]interface{}{
		"username": "henry",
		"email":    "iris@x.com",
	})
	c.SetParamNames("id")
	c.SetParamValues(intToString(user.ID))
	require.NoError(t, UpdateUser(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Username or email already exists", decodeBody(t, rec)["error"])
}

func TestUpdateUserNotFound(t *testing.T) {
	setupTestDB(t)

	c, rec := newContext(t, http.MethodPut, "/", map[string]interface{}{
		"username": "nobody",
		"email":    "nobody@x.com",
	})
	c.SetParamNames("id")
	c.SetParamValues("4242")
	require.NoError(t, UpdateUser(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteUser(t *testing.T) {
	db := setupTestDB(t)
	user := createFixtureUser(t, db, "judy", "judy@x.com")

	c, rec := newContext(t, http.MethodDelete, "/", nil)
	c.SetParamNames("id")
	c.SetParamValues(intToString(user.ID))
	require.NoError(t, DeleteUser(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])

	assert.Equal(t, int64(0), countRows(t, db, &model.User{}))

	// Deleting again is a 404
	c, rec = newContext(t, http.MethodDelete, "/", nil)
	c.SetParamNames("id")
	c.SetParamValues(intToString(user.ID))
	require.NoError(t, DeleteUser(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetUserDetail(t *testing.T) {
	db := setupTestDB(t)
	user := createFixtureUser(t, db, "kate", "kate@x.com")
	tenant := createFixtureTenant(t, db, "Acme")

	role := model.TenantUserRole{Name: "Owner", TenantID: tenant.ID}
	require.NoError(t, db.Create(&role).Error)
	require.NoError(t, db.Create(&model.TenantUser{UserID: user.ID, TenantID: tenant.ID}).Error)
	require.NoError(t, db.Create(&model.TenantUserRoleAssignment{
		UserID: user.ID, TenantID: tenant.ID, TenantUserRoleID: role.ID,
	}).Error)

	c, rec := newContext(t, http.MethodGet, "/", nil)
	c.SetParamNames("id")
	c.SetParamValues(intToString(user.ID))
	require.NoError(t, GetUser(c))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "kate", body["username"])

	tenants, ok := body["tenants"].([]interface{})
	require.True(t, ok)
	require.Len(t, tenants, 1)
	entry := tenants[0].(map[string]interface{})
	tenantRoles := entry["tenant_roles"].([]interface{})
	require.Len(t, tenantRoles, 1)
	assert.Equal(t, "Owner", tenantRoles[0].(map[string]interface{})["name"])
}
