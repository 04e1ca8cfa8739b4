package handler

import (
	"net/http"
	"testing"

	"tenant-admin-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTenantIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	user := createFixtureUser(t, db, "bob", "bob@x.com")

	c, rec := newContext(t, http.MethodPost, "/api/tenants", map[string]interface{}{
		"name":    "Acme",
		"details": "Acme Corp",
	})
	c.Set("user_id", user.ID)
	require.NoError(t, CreateTenant(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	// Exactly one tenant, one Owner role, one membership, one assignment
	assert.Equal(t, int64(1), countRows(t, db, &model.Tenant{}))
	assert.Equal(t, int64(1), countRows(t, db, &model.TenantUserRole{}))
	assert.Equal(t, int64(1), countRows(t, db, &model.TenantUser{}))
	assert.Equal(t, int64(1), countRows(t, db, &model.TenantUserRoleAssignment{}))

	var role model.TenantUserRole
	require.NoError(t, db.First(&role).Error)
	assert.Equal(t, "Owner", role.Name)

	var assignment model.TenantUserRoleAssignment
	require.NoError(t, db.First(&assignment).Error)
	assert.Equal(t, user.ID, assignment.UserID)
}

func TestCreateTenantRequiresName(t *testing.T) {
	db := setupTestDB(t)
	user := createFixtureUser(t, db, "bob", "bob@x.com")

	c, rec := newContext(t, http.MethodPost, "/api/tenants", map[string]interface{}{
		"name": "",
	})
	c.Set("user_id", user.ID)
	require.NoError(t, CreateTenant(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name is required", decodeBody(t, rec)["error"])
	assert.Equal(t, int64(0), countRows(t, db, &model.Tenant{}))
}

func TestListUserTenantsAdminFlag(t *testing.T) {
	db := setupTestDB(t)
	user := createFixtureUser(t, db, "bob", "bob@x.com")

	// bob owns Acme
	c, rec := newContext(t, http.MethodPost, "/api/tenants", map[string]interface{}{"name": "Acme"})
	c.Set("user_id", user.ID)
	require.NoError(t, CreateTenant(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	// Owner status alone does not make is_admin true
	c, rec = newContext(t, http.MethodGet, "/api/tenants", nil)
	c.Set("user_id", user.ID)
	require.NoError(t, ListUserTenants(c))
	require.Equal(t, http.StatusOK, rec.Code)

	tenants := decodeList(t, rec)
	require.Len(t, tenants, 1)
	assert.Equal(t, "Acme", tenants[0]["name"])
	assert.Equal(t, false, tenants[0]["is_admin"])

	// The flag derives from a global role literally named "admin"
	role := model.Role{Name: "Admin"}
	require.NoError(t, db.Create(&role).Error)
	require.NoError(t, db.Create(&model.UserRole{
		UserID: user.ID, RoleID: role.ID, Name: "bob-Admin",
	}).Error)

	c, rec = newContext(t, http.MethodGet, "/api/tenants", nil)
	c.Set("user_id", user.ID)
	require.NoError(t, ListUserTenants(c))
	require.Equal(t, http.StatusOK, rec.Code)

	tenants = decodeList(t, rec)
	require.Len(t, tenants, 1)
	assert.Equal(t, true, tenants[0]["is_admin"])
}

func TestUpdateTenant(t *testing.T) {
	db := setupTestDB(t)
	tenant := createFixtureTenant(t, db, "Acme")

	c, rec := newContext(t, http.MethodPut, "/", map[string]interface{}{
		"name":    "Acme Renamed",
		"details": "new details",
	})
	c.SetParamNames("id")
	c.SetParamValues(intToString(tenant.ID))
	require.NoError(t, UpdateTenant(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var updated model.Tenant
	require.NoError(t, db.First(&updated, tenant.ID).Error)
	assert.Equal(t, "Acme Renamed", updated.Name)
	assert.Equal(t, "new details", updated.Details)

	// Empty name is rejected
	c, rec = newContext(t, http.MethodPut, "/", map[string]interface{}{"name": ""})
	c.SetParamNames("id")
	c.SetParamValues(intToString(tenant.ID))
	require.NoError(t, UpdateTenant(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown id is a 404
	c, rec = newContext(t, http.MethodPut, "/", map[string]interface{}{"name": "x"})
	c.SetParamNames("id")
	c.SetParamValues("4242")
	require.NoError(t, UpdateTenant(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteTenantRemovesDependents(t *testing.T) {
	db := setupTestDB(t)
	user := createFixtureUser(t, db, "bob", "bob@x.com")

	c, rec := newContext(t, http.MethodPost, "/api/tenants", map[string]interface{}{"name": "Acme"})
	c.Set("user_id", user.ID)
	require.NoError(t, CreateTenant(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var tenant model.Tenant
	require.NoError(t, db.First(&tenant).Error)

	c, rec = newContext(t, http.MethodDelete, "/", nil)
	c.SetParamNames("id")
	c.SetParamValues(intToString(tenant.ID))
	require.NoError(t, DeleteTenant(c))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, int64(0), countRows(t, db, &model.Tenant{}))
	assert.Equal(t, int64(0), countRows(t, db, &model.TenantUser{}))
	assert.Equal(t, int64(0), countRows(t, db, &model.TenantUserRole{}))
	assert.Equal(t, int64(0), countRows(t, db, &model.TenantUserRoleAssignment{}))

	// A former member no longer sees the tenant
	c, rec = newContext(t, http.MethodGet, "/api/tenants", nil)
	c.Set("user_id", user.ID)
	require.NoError(t, ListUserTenants(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeList(t, rec), 0)
}

func TestDeleteTenantNotFound(t *testing.T) {
	setupTestDB(t)

	c, rec := newContext(t, http.MethodDelete, "/", nil)
	c.SetParamNames("id")
	c.SetParamValues("4242")
	require.NoError(t, DeleteTenant(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "tenant not found", decodeBody(t, rec)["error"])
}

func TestAddAndRemoveTenantUser(t *testing.T) {
	db := setupTestDB(t)
	tenant := createFixtureTenant(t, db, "Acme")
	user := createFixtureUser(t, db, "carol", "carol@x.com")

	c, rec := newContext(t, http.MethodPost, "/", map[string]interface{}{"user_id": user.ID})
	c.SetParamNames("id")
	c.SetParamValues(intToString(tenant.ID))
	require.NoError(t, AddUserToTenant(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	// At most one membership per (user, tenant) pair
	c, rec = newContext(t, http.MethodPost, "/", map[string]interface{}{"user_id": user.ID})
	c.SetParamNames("id")
	c.SetParamValues(intToString(tenant.ID))
	require.NoError(t, AddUserToTenant(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int64(1), countRows(t, db, &model.TenantUser{}))

	// Members list shows the user
	c, rec = newContext(t, http.MethodGet, "/", nil)
	c.SetParamNames("id")
	c.SetParamValues(intToString(tenant.ID))
	require.NoError(t, ListTenantUsers(c))
	require.Equal(t, http.StatusOK, rec.Code)
	members := decodeList(t, rec)
	require.Len(t, members, 1)

	// Remove and verify the junction row is gone
	c, rec = newContext(t, http.MethodDelete, "/", nil)
	c.SetParamNames("id", "user_id")
	c.SetParamValues(intToString(tenant.ID), intToString(user.ID))
	require.NoError(t, RemoveUserFromTenant(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), countRows(t, db, &model.TenantUser{}))

	// Removing again is a 404
	c, rec = newContext(t, http.MethodDelete, "/", nil)
	c.SetParamNames("id", "user_id")
	c.SetParamValues(intToString(tenant.ID), intToString(user.ID))
	require.NoError(t, RemoveUserFromTenant(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTenant(t *testing.T) {
	db := setupTestDB(t)
	tenant := createFixtureTenant(t, db, "Acme")

	c, rec := newContext(t, http.MethodGet, "/", nil)
	c.SetParamNames("id")
	c.SetParamValues(intToString(tenant.ID))
	require.NoError(t, GetTenant(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Acme", decodeBody(t, rec)["name"])

	c, rec = newContext(t, http.MethodGet, "/", nil)
	c.SetParamNames("id")
	c.SetParamValues("4242")
	require.NoError(t, GetTenant(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
