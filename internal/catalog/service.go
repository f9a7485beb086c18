package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hemmy-platform/hemmy-authz/internal/guard"
	"github.com/hemmy-platform/hemmy-authz/internal/shared"
)

// Invalidator drops cached effective permission sets after catalog mutations
// that change what users can do.
type Invalidator interface {
	InvalidateAll(ctx context.Context)
}

// Service enforces uniqueness, immutability and protection rules for the
// catalog entities. Every mutating operation is a single transaction.
type Service struct {
	repo       Repository
	audit      shared.AuditRecorder
	invalidate Invalidator
}

// NewService constructs a Service. audit and invalidate may be nil.
func NewService(repo Repository, audit shared.AuditRecorder, invalidate Invalidator) *Service {
	return &Service{repo: repo, audit: audit, invalidate: invalidate}
}

// CreateRoleInput carries the fields accepted when creating a role.
type CreateRoleInput struct {
	Code        string
	Name        string
	Description string
}

// CreateRole creates an ordinary role. Roles created through this path are
// never system roles.
func (s *Service) CreateRole(ctx context.Context, in CreateRoleInput) (Role, error) {
	code := strings.TrimSpace(in.Code)
	name := strings.TrimSpace(in.Name)
	if code == "" || name == "" {
		return Role{}, fmt.Errorf("catalog: role code and name required: %w", shared.ErrInvalid)
	}
	role, err := s.repo.InsertRole(ctx, code, name, strings.TrimSpace(in.Description))
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, "role.create", "role", role.ID, map[string]any{"code": role.Code})
	return role, nil
}

// UpdateRole applies a patch to a role. Protected roles reject any change to
// code, name or description; the code of an ordinary role is immutable.
func (s *Service) UpdateRole(ctx context.Context, id int64, patch RolePatch) (Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if patch.Touches() && !guard.CanMutateRole(role) {
		return Role{}, fmt.Errorf("catalog: role %q is protected: %w", role.Code, shared.ErrForbidden)
	}
	if patch.Code != nil && *patch.Code != role.Code {
		return Role{}, fmt.Errorf("catalog: role code is immutable: %w", shared.ErrInvalid)
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return Role{}, fmt.Errorf("catalog: role name required: %w", shared.ErrInvalid)
		}
		role.Name = name
	}
	if patch.Description != nil {
		role.Description = strings.TrimSpace(*patch.Description)
	}
	updated, err := s.repo.UpdateRole(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, "role.update", "role", updated.ID, map[string]any{"code": updated.Code})
	return updated, nil
}

// DeleteRole removes a role and, in the same transaction, every
// role-permission and user-role row referencing it.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if !guard.CanMutateRole(role) {
		return fmt.Errorf("catalog: role %q is protected: %w", role.Code, shared.ErrForbidden)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.DeleteRolePermissionsByRole(ctx, id); err != nil {
			return err
		}
		if _, err := tx.DeleteUserRolesByRole(ctx, id); err != nil {
			return err
		}
		deleted, err := tx.DeleteRole(ctx, id)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return fmt.Errorf("catalog: role: %w", shared.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, "role.delete", "role", id, map[string]any{"code": role.Code})
	s.dropCaches(ctx)
	return nil
}

// CreatePermissionInput carries the fields accepted when creating a permission.
type CreatePermissionInput struct {
	Code        string
	Name        string
	Description string
	ResourceID  *int64
}

// CreatePermission creates a permission. The wildcard code is reserved for
// provisioning and cannot be created here.
func (s *Service) CreatePermission(ctx context.Context, in CreatePermissionInput) (Permission, error) {
	code := strings.TrimSpace(in.Code)
	name := strings.TrimSpace(in.Name)
	if code == "" || name == "" {
		return Permission{}, fmt.Errorf("catalog: permission code and name required: %w", shared.ErrInvalid)
	}
	if code == WildcardPermissionCode {
		return Permission{}, fmt.Errorf("catalog: wildcard permission is reserved: %w", shared.ErrForbidden)
	}
	perm, err := s.repo.InsertPermission(ctx, code, name, strings.TrimSpace(in.Description), in.ResourceID)
	if err != nil {
		return Permission{}, err
	}
	s.record(ctx, "permission.create", "permission", perm.ID, map[string]any{"code": perm.Code})
	return perm, nil
}

// UpdatePermission applies a patch to a permission. The wildcard permission
// is immutable, and permission codes never change once created.
func (s *Service) UpdatePermission(ctx context.Context, id int64, patch PermissionPatch) (Permission, error) {
	perm, err := s.repo.GetPermission(ctx, id)
	if err != nil {
		return Permission{}, err
	}
	if !guard.CanMutatePermission(perm) {
		return Permission{}, fmt.Errorf("catalog: wildcard permission is immutable: %w", shared.ErrForbidden)
	}
	if patch.Code != nil && *patch.Code != perm.Code {
		return Permission{}, fmt.Errorf("catalog: permission code is immutable: %w", shared.ErrInvalid)
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return Permission{}, fmt.Errorf("catalog: permission name required: %w", shared.ErrInvalid)
		}
		perm.Name = name
	}
	if patch.Description != nil {
		perm.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.ClearResourceID {
		perm.ResourceID = nil
	} else if patch.ResourceID != nil {
		perm.ResourceID = patch.ResourceID
	}
	updated, err := s.repo.UpdatePermission(ctx, perm)
	if err != nil {
		return Permission{}, err
	}
	s.record(ctx, "permission.update", "permission", updated.ID, map[string]any{"code": updated.Code})
	s.dropCaches(ctx)
	return updated, nil
}

// DeletePermission removes a permission and, in the same transaction, every
// role-permission row referencing it.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	perm, err := s.repo.GetPermission(ctx, id)
	if err != nil {
		return err
	}
	if !guard.CanMutatePermission(perm) {
		return fmt.Errorf("catalog: wildcard permission cannot be deleted: %w", shared.ErrForbidden)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.DeleteRolePermissionsByPermission(ctx, id); err != nil {
			return err
		}
		deleted, err := tx.DeletePermission(ctx, id)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return fmt.Errorf("catalog: permission: %w", shared.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, "permission.delete", "permission", id, map[string]any{"code": perm.Code})
	s.dropCaches(ctx)
	return nil
}

// CreateResourceInput carries the fields accepted when creating a resource.
type CreateResourceInput struct {
	RouteCode   string
	Name        string
	Description string
	OrderIndex  int32
	IsActive    bool
}

// CreateResource creates a resource.
func (s *Service) CreateResource(ctx context.Context, in CreateResourceInput) (Resource, error) {
	routeCode := strings.TrimSpace(in.RouteCode)
	name := strings.TrimSpace(in.Name)
	if routeCode == "" || name == "" {
		return Resource{}, fmt.Errorf("catalog: resource route code and name required: %w", shared.ErrInvalid)
	}
	res, err := s.repo.InsertResource(ctx, routeCode, name, strings.TrimSpace(in.Description), in.OrderIndex, in.IsActive)
	if err != nil {
		return Resource{}, err
	}
	s.record(ctx, "resource.create", "resource", res.ID, map[string]any{"route_code": res.RouteCode})
	return res, nil
}

// UpdateResource applies a patch to a resource. The route code is immutable
// once set.
func (s *Service) UpdateResource(ctx context.Context, id int64, patch ResourcePatch) (Resource, error) {
	res, err := s.repo.GetResource(ctx, id)
	if err != nil {
		return Resource{}, err
	}
	if patch.RouteCode != nil && *patch.RouteCode != res.RouteCode {
		return Resource{}, fmt.Errorf("catalog: resource route code is immutable: %w", shared.ErrInvalid)
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return Resource{}, fmt.Errorf("catalog: resource name required: %w", shared.ErrInvalid)
		}
		res.Name = name
	}
	if patch.Description != nil {
		res.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.OrderIndex != nil {
		res.OrderIndex = *patch.OrderIndex
	}
	if patch.IsActive != nil {
		res.IsActive = *patch.IsActive
	}
	updated, err := s.repo.UpdateResource(ctx, res)
	if err != nil {
		return Resource{}, err
	}
	s.record(ctx, "resource.update", "resource", updated.ID, map[string]any{"route_code": updated.RouteCode})
	return updated, nil
}

// DeleteResource removes a resource and, in the same transaction, detaches
// permissions that pointed to it. The permissions themselves survive.
func (s *Service) DeleteResource(ctx context.Context, id int64) error {
	res, err := s.repo.GetResource(ctx, id)
	if err != nil {
		return err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.DetachPermissionsFromResource(ctx, id); err != nil {
			return err
		}
		deleted, err := tx.DeleteResource(ctx, id)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return fmt.Errorf("catalog: resource: %w", shared.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, "resource.delete", "resource", id, map[string]any{"route_code": res.RouteCode})
	s.dropCaches(ctx)
	return nil
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// FindRoleByCode fetches a role by code.
func (s *Service) FindRoleByCode(ctx context.Context, code string) (Role, error) {
	return s.repo.FindRoleByCode(ctx, code)
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetPermission fetches a permission by ID.
func (s *Service) GetPermission(ctx context.Context, id int64) (Permission, error) {
	return s.repo.GetPermission(ctx, id)
}

// FindPermissionByCode fetches a permission by code.
func (s *Service) FindPermissionByCode(ctx context.Context, code string) (Permission, error) {
	return s.repo.FindPermissionByCode(ctx, code)
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// GetResource fetches a resource by ID.
func (s *Service) GetResource(ctx context.Context, id int64) (Resource, error) {
	return s.repo.GetResource(ctx, id)
}

// FindResourceByRouteCode fetches a resource by route code.
func (s *Service) FindResourceByRouteCode(ctx context.Context, routeCode string) (Resource, error) {
	return s.repo.FindResourceByRouteCode(ctx, routeCode)
}

// ListResources returns all resources.
func (s *Service) ListResources(ctx context.Context) ([]Resource, error) {
	return s.repo.ListResources(ctx)
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

func (s *Service) dropCaches(ctx context.Context) {
	if s.invalidate != nil {
		s.invalidate.InvalidateAll(ctx)
	}
}
