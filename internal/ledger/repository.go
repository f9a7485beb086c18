package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hemmy-platform/hemmy-authz/internal/catalog"
	"github.com/hemmy-platform/hemmy-authz/internal/shared"
)

// Repository persists the two junction relations and resolves the catalog
// entities they reference.
type Repository interface {
	GetRole(ctx context.Context, id int64) (catalog.Role, error)
	GetPermission(ctx context.Context, id int64) (catalog.Permission, error)

	FindRolePermission(ctx context.Context, roleID, permissionID int64) (RolePermission, error)
	GetRolePermission(ctx context.Context, id int64) (RolePermission, error)
	InsertRolePermission(ctx context.Context, roleID, permissionID int64) (RolePermission, error)
	DeleteRolePermission(ctx context.Context, id int64) (int64, error)
	ListPermissionsForRole(ctx context.Context, roleID int64) ([]catalog.Permission, error)

	FindUserRole(ctx context.Context, userID, roleID int64) (UserRole, error)
	GetUserRole(ctx context.Context, id int64) (UserRole, error)
	InsertUserRole(ctx context.Context, userID, roleID int64) (UserRole, error)
	DeleteUserRole(ctx context.Context, id int64) (int64, error)
	ListRolesForUser(ctx context.Context, userID int64) ([]catalog.Role, error)
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// GetRole fetches a role by ID.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (catalog.Role, error) {
	var role catalog.Role
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, description, is_system, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Code, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Role{}, fmt.Errorf("ledger: role: %w", shared.ErrNotFound)
		}
		return catalog.Role{}, err
	}
	return role, nil
}

// GetPermission fetches a permission by ID.
func (r *PGRepository) GetPermission(ctx context.Context, id int64) (catalog.Permission, error) {
	var perm catalog.Permission
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, description, resource_id, created_at, updated_at FROM permissions WHERE id = $1`, id).
		Scan(&perm.ID, &perm.Code, &perm.Name, &perm.Description, &perm.ResourceID, &perm.CreatedAt, &perm.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Permission{}, fmt.Errorf("ledger: permission: %w", shared.ErrNotFound)
		}
		return catalog.Permission{}, err
	}
	return perm, nil
}

func scanRolePermission(row pgx.Row) (RolePermission, error) {
	var rp RolePermission
	err := row.Scan(&rp.ID, &rp.RoleID, &rp.PermissionID, &rp.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RolePermission{}, fmt.Errorf("ledger: role permission: %w", shared.ErrNotFound)
		}
		return RolePermission{}, err
	}
	return rp, nil
}

// FindRolePermission looks up the row for a (role, permission) pair.
func (r *PGRepository) FindRolePermission(ctx context.Context, roleID, permissionID int64) (RolePermission, error) {
	return scanRolePermission(r.pool.QueryRow(ctx, `SELECT id, role_id, permission_id, created_at FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID))
}

// GetRolePermission fetches a role-permission row by ID.
func (r *PGRepository) GetRolePermission(ctx context.Context, id int64) (RolePermission, error) {
	return scanRolePermission(r.pool.QueryRow(ctx, `SELECT id, role_id, permission_id, created_at FROM role_permissions WHERE id = $1`, id))
}

// InsertRolePermission creates a role-permission row. The unique index on
// (role_id, permission_id) makes the uniqueness check atomic with the insert.
func (r *PGRepository) InsertRolePermission(ctx context.Context, roleID, permissionID int64) (RolePermission, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) RETURNING id, role_id, permission_id, created_at`, roleID, permissionID)
	rp, err := scanRolePermission(row)
	if err != nil {
		return RolePermission{}, mapConstraint(err, "ledger: role permission")
	}
	return rp, nil
}

// DeleteRolePermission removes a role-permission row by ID.
func (r *PGRepository) DeleteRolePermission(ctx context.Context, id int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM role_permissions WHERE id = $1`, id)
	return tag.RowsAffected(), err
}

// ListPermissionsForRole returns the permissions granted to a role in
// insertion order.
func (r *PGRepository) ListPermissionsForRole(ctx context.Context, roleID int64) ([]catalog.Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.code, p.name, p.description, p.resource_id, p.created_at, p.updated_at
		FROM role_permissions rp JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1 ORDER BY rp.id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []catalog.Permission
	for rows.Next() {
		var perm catalog.Permission
		if err := rows.Scan(&perm.ID, &perm.Code, &perm.Name, &perm.Description, &perm.ResourceID, &perm.CreatedAt, &perm.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

func scanUserRole(row pgx.Row) (UserRole, error) {
	var ur UserRole
	err := row.Scan(&ur.ID, &ur.UserID, &ur.RoleID, &ur.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRole{}, fmt.Errorf("ledger: user role: %w", shared.ErrNotFound)
		}
		return UserRole{}, err
	}
	return ur, nil
}

// FindUserRole looks up the row for a (user, role) pair.
func (r *PGRepository) FindUserRole(ctx context.Context, userID, roleID int64) (UserRole, error) {
	return scanUserRole(r.pool.QueryRow(ctx, `SELECT id, user_id, role_id, created_at FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID))
}

// GetUserRole fetches a user-role row by ID.
func (r *PGRepository) GetUserRole(ctx context.Context, id int64) (UserRole, error) {
	return scanUserRole(r.pool.QueryRow(ctx, `SELECT id, user_id, role_id, created_at FROM user_roles WHERE id = $1`, id))
}

// InsertUserRole creates a user-role row. The unique index on
// (user_id, role_id) makes the uniqueness check atomic with the insert.
func (r *PGRepository) InsertUserRole(ctx context.Context, userID, roleID int64) (UserRole, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) RETURNING id, user_id, role_id, created_at`, userID, roleID)
	ur, err := scanUserRole(row)
	if err != nil {
		return UserRole{}, mapConstraint(err, "ledger: user role")
	}
	return ur, nil
}

// DeleteUserRole removes a user-role row by ID.
func (r *PGRepository) DeleteUserRole(ctx context.Context, id int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE id = $1`, id)
	return tag.RowsAffected(), err
}

// ListRolesForUser returns the roles held by a user in insertion order.
func (r *PGRepository) ListRolesForUser(ctx context.Context, userID int64) ([]catalog.Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.id, r.code, r.name, r.description, r.is_system, r.created_at, r.updated_at
		FROM user_roles ur JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1 ORDER BY ur.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []catalog.Role
	for rows.Next() {
		var role catalog.Role
		if err := rows.Scan(&role.ID, &role.Code, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func mapConstraint(err error, prefix string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", prefix, shared.ErrConflict)
		case "23503":
			return fmt.Errorf("%s: referenced entity: %w", prefix, shared.ErrNotFound)
		}
	}
	return err
}
