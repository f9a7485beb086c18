package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemmy-platform/hemmy-authz/internal/catalog"
	"github.com/hemmy-platform/hemmy-authz/internal/shared"
)

type mockRepository struct {
	roles       map[int64]catalog.Role
	permissions map[int64]catalog.Permission

	rolePermissions map[int64]RolePermission
	userRoles       map[int64]UserRole
	nextID          int64

	// deleteMisses makes the first N DeleteRolePermission calls report zero
	// rows, simulating a lost delete race.
	deleteMisses int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		roles:           make(map[int64]catalog.Role),
		permissions:     make(map[int64]catalog.Permission),
		rolePermissions: make(map[int64]RolePermission),
		userRoles:       make(map[int64]UserRole),
		nextID:          1,
	}
}

func (m *mockRepository) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *mockRepository) GetRole(ctx context.Context, id int64) (catalog.Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return catalog.Role{}, fmt.Errorf("ledger: role: %w", shared.ErrNotFound)
	}
	return role, nil
}

func (m *mockRepository) GetPermission(ctx context.Context, id int64) (catalog.Permission, error) {
	perm, ok := m.permissions[id]
	if !ok {
		return catalog.Permission{}, fmt.Errorf("ledger: permission: %w", shared.ErrNotFound)
	}
	return perm, nil
}

func (m *mockRepository) FindRolePermission(ctx context.Context, roleID, permissionID int64) (RolePermission, error) {
	for _, rp := range m.rolePermissions {
		if rp.RoleID == roleID && rp.PermissionID == permissionID {
			return rp, nil
		}
	}
	return RolePermission{}, fmt.Errorf("ledger: role permission: %w", shared.ErrNotFound)
}

func (m *mockRepository) GetRolePermission(ctx context.Context, id int64) (RolePermission, error) {
	rp, ok := m.rolePermissions[id]
	if !ok {
		return RolePermission{}, fmt.Errorf("ledger: role permission: %w", shared.ErrNotFound)
	}
	return rp, nil
}

func (m *mockRepository) InsertRolePermission(ctx context.Context, roleID, permissionID int64) (RolePermission, error) {
	if _, err := m.FindRolePermission(ctx, roleID, permissionID); err == nil {
		return RolePermission{}, fmt.Errorf("ledger: role permission: %w", shared.ErrConflict)
	}
	rp := RolePermission{ID: m.id(), RoleID: roleID, PermissionID: permissionID}
	m.rolePermissions[rp.ID] = rp
	return rp, nil
}

func (m *mockRepository) DeleteRolePermission(ctx context.Context, id int64) (int64, error) {
	if m.deleteMisses > 0 {
		m.deleteMisses--
		return 0, nil
	}
	if _, ok := m.rolePermissions[id]; !ok {
		return 0, nil
	}
	delete(m.rolePermissions, id)
	return 1, nil
}

func (m *mockRepository) ListPermissionsForRole(ctx context.Context, roleID int64) ([]catalog.Permission, error) {
	var out []catalog.Permission
	for _, rp := range m.rolePermissions {
		if rp.RoleID == roleID {
			out = append(out, m.permissions[rp.PermissionID])
		}
	}
	return out, nil
}

func (m *mockRepository) FindUserRole(ctx context.Context, userID, roleID int64) (UserRole, error) {
	for _, ur := range m.userRoles {
		if ur.UserID == userID && ur.RoleID == roleID {
			return ur, nil
		}
	}
	return UserRole{}, fmt.Errorf("ledger: user role: %w", shared.ErrNotFound)
}

func (m *mockRepository) GetUserRole(ctx context.Context, id int64) (UserRole, error) {
	ur, ok := m.userRoles[id]
	if !ok {
		return UserRole{}, fmt.Errorf("ledger: user role: %w", shared.ErrNotFound)
	}
	return ur, nil
}

func (m *mockRepository) InsertUserRole(ctx context.Context, userID, roleID int64) (UserRole, error) {
	if _, err := m.FindUserRole(ctx, userID, roleID); err == nil {
		return UserRole{}, fmt.Errorf("ledger: user role: %w", shared.ErrConflict)
	}
	ur := UserRole{ID: m.id(), UserID: userID, RoleID: roleID}
	m.userRoles[ur.ID] = ur
	return ur, nil
}

func (m *mockRepository) DeleteUserRole(ctx context.Context, id int64) (int64, error) {
	if _, ok := m.userRoles[id]; !ok {
		return 0, nil
	}
	delete(m.userRoles, id)
	return 1, nil
}

func (m *mockRepository) ListRolesForUser(ctx context.Context, userID int64) ([]catalog.Role, error) {
	var out []catalog.Role
	for _, ur := range m.userRoles {
		if ur.UserID == userID {
			out = append(out, m.roles[ur.RoleID])
		}
	}
	return out, nil
}

func seedCatalog(repo *mockRepository) {
	repo.roles[1] = catalog.Role{ID: 1, Code: "SUPERADMIN", Name: "Super Administrator", IsSystem: true}
	repo.roles[2] = catalog.Role{ID: 2, Code: "EDITOR", Name: "Editor"}
	repo.roles[3] = catalog.Role{ID: 3, Code: "AUDITOR", Name: "Auditor", IsSystem: true}
	repo.permissions[10] = catalog.Permission{ID: 10, Code: "*", Name: "All capabilities"}
	repo.permissions[11] = catalog.Permission{ID: 11, Code: "reports:read", Name: "View reports"}
	repo.permissions[12] = catalog.Permission{ID: 12, Code: "reports:write", Name: "Manage reports"}
}

func TestAssignPermissionToRole(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	service := NewService(repo, nil, nil)

	rp, err := service.AssignPermissionToRole(context.Background(), 2, 11)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rp.RoleID)
	assert.Equal(t, int64(11), rp.PermissionID)
}

func TestAssignPermissionToRoleMissingEntities(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	service := NewService(repo, nil, nil)

	_, err := service.AssignPermissionToRole(context.Background(), 99, 11)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = service.AssignPermissionToRole(context.Background(), 2, 99)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAssignPermissionToRoleDuplicateIsConflict(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	service := NewService(repo, nil, nil)

	_, err := service.AssignPermissionToRole(context.Background(), 2, 11)
	require.NoError(t, err)

	_, err = service.AssignPermissionToRole(context.Background(), 2, 11)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestAssignExistingPairOnSystemRoleIsConflict(t *testing.T) {
	// An existing pair reports Conflict even where the guard would also
	// object; the duplicate check runs first.
	repo := newMockRepository()
	seedCatalog(repo)
	repo.rolePermissions[50] = RolePermission{ID: 50, RoleID: 1, PermissionID: 10}
	service := NewService(repo, nil, nil)

	_, err := service.AssignPermissionToRole(context.Background(), 1, 10)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestAssignWildcardToOrdinaryRoleIsForbidden(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	service := NewService(repo, nil, nil)

	_, err := service.AssignPermissionToRole(context.Background(), 2, 10)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Empty(t, repo.rolePermissions)
}

func TestAssignToSystemRoleIsForbidden(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	service := NewService(repo, nil, nil)

	_, err := service.AssignPermissionToRole(context.Background(), 3, 11)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = service.AssignPermissionToRole(context.Background(), 1, 11)
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestRevokePermissionFromRole(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	repo.rolePermissions[50] = RolePermission{ID: 50, RoleID: 2, PermissionID: 11}
	service := NewService(repo, nil, nil)

	require.NoError(t, service.RevokePermissionFromRole(context.Background(), 50))
	assert.Empty(t, repo.rolePermissions)
}

func TestRevokePermissionFromSystemRoleIsForbidden(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	repo.rolePermissions[50] = RolePermission{ID: 50, RoleID: 1, PermissionID: 10}
	service := NewService(repo, nil, nil)

	err := service.RevokePermissionFromRole(context.Background(), 50)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.Contains(t, repo.rolePermissions, int64(50))
}

func TestRevokePermissionRetriesLostDeleteOnce(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	repo.rolePermissions[50] = RolePermission{ID: 50, RoleID: 2, PermissionID: 11}
	repo.deleteMisses = 1
	service := NewService(repo, nil, nil)

	require.NoError(t, service.RevokePermissionFromRole(context.Background(), 50))
	assert.Empty(t, repo.rolePermissions)
}

func TestRevokePermissionMissingAfterRetryIsNotFound(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	repo.rolePermissions[50] = RolePermission{ID: 50, RoleID: 2, PermissionID: 11}
	repo.deleteMisses = 2
	service := NewService(repo, nil, nil)

	err := service.RevokePermissionFromRole(context.Background(), 50)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAssignRoleToUser(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	service := NewService(repo, nil, nil)

	ur, err := service.AssignRoleToUser(context.Background(), 101, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(101), ur.UserID)

	_, err = service.AssignRoleToUser(context.Background(), 101, 2)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestAssignSuperadminRoleToUserIsAllowed(t *testing.T) {
	// Role membership is not part of the protected system definition; even
	// SUPERADMIN may be granted through the general path.
	repo := newMockRepository()
	seedCatalog(repo)
	service := NewService(repo, nil, nil)

	_, err := service.AssignRoleToUser(context.Background(), 101, 1)
	require.NoError(t, err)
}

func TestAssignRoleToUserMissingRoleIsNotFound(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	service := NewService(repo, nil, nil)

	_, err := service.AssignRoleToUser(context.Background(), 101, 99)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRevokeRoleFromUser(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	repo.userRoles[60] = UserRole{ID: 60, UserID: 101, RoleID: 1}
	service := NewService(repo, nil, nil)

	require.NoError(t, service.RevokeRoleFromUser(context.Background(), 60))
	assert.Empty(t, repo.userRoles)

	err := service.RevokeRoleFromUser(context.Background(), 60)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

type recordingInvalidator struct {
	allCalls  int
	userCalls []int64
}

func (r *recordingInvalidator) InvalidateAll(ctx context.Context) { r.allCalls++ }

func (r *recordingInvalidator) InvalidateUser(ctx context.Context, userID int64) {
	r.userCalls = append(r.userCalls, userID)
}

func TestMutationsInvalidateCaches(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	inv := &recordingInvalidator{}
	service := NewService(repo, nil, inv)

	_, err := service.AssignPermissionToRole(context.Background(), 2, 11)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.allCalls)

	_, err = service.AssignRoleToUser(context.Background(), 101, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{101}, inv.userCalls)
}

type recordingAudit struct {
	entries []shared.AuditLog
}

func (r *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	r.entries = append(r.entries, log)
	return nil
}

func TestAssignmentEmitsAuditEntry(t *testing.T) {
	repo := newMockRepository()
	seedCatalog(repo)
	audit := &recordingAudit{}
	service := NewService(repo, audit, nil)

	ctx := shared.ContextWithActor(context.Background(), 42)
	_, err := service.AssignPermissionToRole(ctx, 2, 11)
	require.NoError(t, err)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, "role_permission.assign", audit.entries[0].Action)
	assert.Equal(t, int64(42), audit.entries[0].ActorID)
}
