package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/hemmy-platform/hemmy-authz/internal/catalog"
	"github.com/hemmy-platform/hemmy-authz/internal/guard"
	"github.com/hemmy-platform/hemmy-authz/internal/shared"
)

// Invalidator drops cached effective permission sets after ledger mutations.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID int64)
	InvalidateAll(ctx context.Context)
}

// Service maintains the role-permission and user-role junctions, consulting
// the guard predicates before every mutation. Every operation is a single
// transaction against the backing store.
type Service struct {
	repo       Repository
	audit      shared.AuditRecorder
	invalidate Invalidator
}

// NewService constructs a Service. audit and invalidate may be nil.
func NewService(repo Repository, audit shared.AuditRecorder, invalidate Invalidator) *Service {
	return &Service{repo: repo, audit: audit, invalidate: invalidate}
}

// AssignPermissionToRole grants a permission to a role. The wildcard may
// only ever be linked to SUPERADMIN, and the permission sets of system roles
// are fixed outside this path. "Already assigned" is a distinct outcome from
// "newly assigned": callers get ErrConflict, never a silent no-op.
func (s *Service) AssignPermissionToRole(ctx context.Context, roleID, permissionID int64) (RolePermission, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return RolePermission{}, err
	}
	perm, err := s.repo.GetPermission(ctx, permissionID)
	if err != nil {
		return RolePermission{}, err
	}
	if _, err := s.repo.FindRolePermission(ctx, roleID, permissionID); err == nil {
		return RolePermission{}, fmt.Errorf("ledger: permission %q already assigned to role %q: %w", perm.Code, role.Code, shared.ErrConflict)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return RolePermission{}, err
	}
	if guard.IsWildcardPermission(perm) && !guard.CanAssignWildcard(role) {
		return RolePermission{}, fmt.Errorf("ledger: wildcard permission is restricted to %s: %w", catalog.SuperadminRoleCode, shared.ErrForbidden)
	}
	if !guard.CanModifyRolePermissions(role) {
		return RolePermission{}, fmt.Errorf("ledger: role %q permissions are fixed at provisioning: %w", role.Code, shared.ErrForbidden)
	}
	// The unique index backs this insert; a concurrent assignment of the
	// same pair surfaces as ErrConflict here rather than a double insert.
	rp, err := s.repo.InsertRolePermission(ctx, roleID, permissionID)
	if err != nil {
		return RolePermission{}, err
	}
	s.record(ctx, "role_permission.assign", "role_permission", rp.ID, map[string]any{"role": role.Code, "permission": perm.Code})
	s.invalidateAll(ctx)
	return rp, nil
}

// RevokePermissionFromRole removes a role-permission row. Rows on system
// roles never leave through this path. A delete that loses the race with a
// concurrent delete is retried once, then surfaces ErrNotFound.
func (s *Service) RevokePermissionFromRole(ctx context.Context, rolePermissionID int64) error {
	rp, err := s.repo.GetRolePermission(ctx, rolePermissionID)
	if err != nil {
		return err
	}
	role, err := s.repo.GetRole(ctx, rp.RoleID)
	if err != nil {
		return err
	}
	if !guard.CanModifyRolePermissions(role) {
		return fmt.Errorf("ledger: role %q permissions are fixed at provisioning: %w", role.Code, shared.ErrForbidden)
	}
	deleted, err := s.repo.DeleteRolePermission(ctx, rolePermissionID)
	if err != nil {
		return err
	}
	if deleted == 0 {
		deleted, err = s.repo.DeleteRolePermission(ctx, rolePermissionID)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return fmt.Errorf("ledger: role permission: %w", shared.ErrNotFound)
		}
	}
	s.record(ctx, "role_permission.revoke", "role_permission", rolePermissionID, map[string]any{"role": role.Code})
	s.invalidateAll(ctx)
	return nil
}

// AssignRoleToUser grants a role to a user. Any role may be granted,
// SUPERADMIN included; authorization of the calling actor is the caller's
// concern.
func (s *Service) AssignRoleToUser(ctx context.Context, userID, roleID int64) (UserRole, error) {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return UserRole{}, err
	}
	if _, err := s.repo.FindUserRole(ctx, userID, roleID); err == nil {
		return UserRole{}, fmt.Errorf("ledger: user %d already holds role %q: %w", userID, role.Code, shared.ErrConflict)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return UserRole{}, err
	}
	ur, err := s.repo.InsertUserRole(ctx, userID, roleID)
	if err != nil {
		return UserRole{}, err
	}
	s.record(ctx, "user_role.assign", "user_role", ur.ID, map[string]any{"user_id": userID, "role": role.Code})
	s.invalidateUser(ctx, userID)
	return ur, nil
}

// RevokeRoleFromUser removes a user-role row. A user's role membership is
// not part of the protected system definition, so no guard applies.
func (s *Service) RevokeRoleFromUser(ctx context.Context, userRoleID int64) error {
	ur, err := s.repo.GetUserRole(ctx, userRoleID)
	if err != nil {
		return err
	}
	deleted, err := s.repo.DeleteUserRole(ctx, userRoleID)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return fmt.Errorf("ledger: user role: %w", shared.ErrNotFound)
	}
	s.record(ctx, "user_role.revoke", "user_role", userRoleID, map[string]any{"user_id": ur.UserID, "role_id": ur.RoleID})
	s.invalidateUser(ctx, ur.UserID)
	return nil
}

// ListPermissionsForRole returns the permissions granted to a role, resolved
// entities in insertion order.
func (s *Service) ListPermissionsForRole(ctx context.Context, roleID int64) ([]catalog.Permission, error) {
	return s.repo.ListPermissionsForRole(ctx, roleID)
}

// ListRolesForUser returns the roles a user holds, resolved entities in
// insertion order.
func (s *Service) ListRolesForUser(ctx context.Context, userID int64) ([]catalog.Role, error) {
	return s.repo.ListRolesForUser(ctx, userID)
}

func (s *Service) record(ctx context.Context, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	actorID, _ := shared.ActorFromContext(ctx)
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}

func (s *Service) invalidateAll(ctx context.Context) {
	if s.invalidate != nil {
		s.invalidate.InvalidateAll(ctx)
	}
}

func (s *Service) invalidateUser(ctx context.Context, userID int64) {
	if s.invalidate != nil {
		s.invalidate.InvalidateUser(ctx, userID)
	}
}
