package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-auth-rbac"
)

func TestNewRole(t *testing.T) {
	now := newTestClock().Now()
	p := uuid.New()

	role, err := auth.NewRole(" editor ", "Edits things", []uuid.UUID{p, p, uuid.Nil}, nil, false, now)
	require.NoError(t, err)

	assert.Equal(t, "editor", role.Name)
	assert.Equal(t, auth.GlobalScope, role.Scope)
	assert.Equal(t, []uuid.UUID{p}, role.PermissionIDs)
	assert.False(t, role.IsSystem)
}

func TestNewRoleScopes(t *testing.T) {
	now := newTestClock().Now()
	tenant := uuid.New()

	role, err := auth.NewRole("editor", "", nil, &tenant, false, now)
	require.NoError(t, err)
	assert.Equal(t, tenant.String(), role.Scope)

	nilTenant := uuid.Nil
	role, err = auth.NewRole("editor", "", nil, &nilTenant, false, now)
	require.NoError(t, err)
	assert.Nil(t, role.TenantID)
	assert.Equal(t, auth.GlobalScope, role.Scope)
}

func TestNewRoleValidatesName(t *testing.T) {
	now := newTestClock().Now()

	_, err := auth.NewRole("  ", "", nil, nil, false, now)
	requireKind(t, auth.KindValidation, err)

	_, err = auth.NewRole(strings.Repeat("r", 101), "", nil, nil, false, now)
	requireKind(t, auth.KindValidation, err)
}

func TestRolePermissions(t *testing.T) {
	clock := newTestClock()
	role, err := auth.NewRole("editor", "", nil, nil, false, clock.Now())
	require.NoError(t, err)
	p := uuid.New()

	clock.Advance(time.Minute)
	changed, err := role.AddPermission(p, clock.Now())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, clock.Now(), role.UpdatedAt)

	changed, err = role.AddPermission(p, clock.Now())
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = role.RemovePermission(p, clock.Now())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, role.HasPermission(p))

	changed, err = role.RemovePermission(p, clock.Now())
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestSystemRoleIsImmutable(t *testing.T) {
	now := newTestClock().Now()
	role, err := auth.NewRole("admin", "", []uuid.UUID{uuid.New()}, nil, true, now)
	require.NoError(t, err)

	name := "root"
	assert.ErrorIs(t, role.Update(auth.RoleUpdate{Name: &name}, now), auth.ErrSystemRole)
	assert.Equal(t, "admin", role.Name)

	_, err = role.AddPermission(uuid.New(), now)
	assert.ErrorIs(t, err, auth.ErrSystemRole)

	_, err = role.RemovePermission(role.PermissionIDs[0], now)
	assert.ErrorIs(t, err, auth.ErrSystemRole)
	assert.Len(t, role.PermissionIDs, 1)

	assert.ErrorIs(t, role.CanDelete(), auth.ErrSystemRole)
	requireKind(t, auth.KindForbidden, role.CanDelete())
}

func TestRoleUpdate(t *testing.T) {
	now := newTestClock().Now()
	role, err := auth.NewRole("editor", "old", nil, nil, false, now)
	require.NoError(t, err)

	desc := " new "
	require.NoError(t, role.Update(auth.RoleUpdate{Description: &desc}, now))
	assert.Equal(t, "editor", role.Name)
	assert.Equal(t, "new", role.Description)

	empty := ""
	requireKind(t, auth.KindValidation, role.Update(auth.RoleUpdate{Name: &empty}, now))
	assert.Equal(t, "editor", role.Name)
}

func TestNewPermission(t *testing.T) {
	now := newTestClock().Now()

	p, err := auth.NewPermission(" Articles ", "Publish", "", "", now)
	require.NoError(t, err)
	assert.Equal(t, "articles:publish", p.Code)
	assert.Equal(t, "articles:publish", p.Name)

	_, err = auth.NewPermission("", "read", "", "", now)
	requireKind(t, auth.KindValidation, err)

	_, err = auth.NewPermission("articles", "re ad", "", "", now)
	requireKind(t, auth.KindValidation, err)
}

func TestParsePermissionCode(t *testing.T) {
	resource, action, err := auth.ParsePermissionCode("users:delete")
	require.NoError(t, err)
	assert.Equal(t, "users", resource)
	assert.Equal(t, "delete", action)

	_, _, err = auth.ParsePermissionCode("users")
	requireKind(t, auth.KindValidation, err)
}

func TestPermissionSet(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	set := auth.NewPermissionSet(a, b, a)

	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Has(a))
	assert.False(t, set.Has(uuid.New()))
	assert.ElementsMatch(t, []uuid.UUID{a, b}, set.IDs())
}
