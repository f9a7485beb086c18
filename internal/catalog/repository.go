package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hemmy-platform/hemmy-authz/internal/platform/db"
	"github.com/hemmy-platform/hemmy-authz/internal/shared"
)

// TxRepository exposes the cascade steps executed inside a single transaction.
type TxRepository interface {
	DeleteRolePermissionsByRole(ctx context.Context, roleID int64) (int64, error)
	DeleteUserRolesByRole(ctx context.Context, roleID int64) (int64, error)
	DeleteRole(ctx context.Context, roleID int64) (int64, error)
	DeleteRolePermissionsByPermission(ctx context.Context, permissionID int64) (int64, error)
	DeletePermission(ctx context.Context, permissionID int64) (int64, error)
	DetachPermissionsFromResource(ctx context.Context, resourceID int64) (int64, error)
	DeleteResource(ctx context.Context, resourceID int64) (int64, error)
}

// Repository persists catalog entities.
type Repository interface {
	GetRole(ctx context.Context, id int64) (Role, error)
	FindRoleByCode(ctx context.Context, code string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	InsertRole(ctx context.Context, code, name, description string) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)

	GetPermission(ctx context.Context, id int64) (Permission, error)
	FindPermissionByCode(ctx context.Context, code string) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	InsertPermission(ctx context.Context, code, name, description string, resourceID *int64) (Permission, error)
	UpdatePermission(ctx context.Context, permission Permission) (Permission, error)

	GetResource(ctx context.Context, id int64) (Resource, error)
	FindResourceByRouteCode(ctx context.Context, routeCode string) (Resource, error)
	ListResources(ctx context.Context) ([]Resource, error)
	InsertResource(ctx context.Context, routeCode, name, description string, orderIndex int32, isActive bool) (Resource, error)
	UpdateResource(ctx context.Context, resource Resource) (Resource, error)

	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const roleColumns = `id, code, name, description, is_system, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Code, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("catalog: role: %w", shared.ErrNotFound)
		}
		return Role{}, err
	}
	return role, nil
}

// GetRole fetches a role by ID.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// FindRoleByCode fetches a role by its unique code.
func (r *PGRepository) FindRoleByCode(ctx context.Context, code string) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE code = $1`, code))
}

// ListRoles returns all roles ordered by code.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Code, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// InsertRole creates a role. The is_system flag is never set through this
// path; system roles come from provisioning only.
func (r *PGRepository) InsertRole(ctx context.Context, code, name, description string) (Role, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO roles (code, name, description, is_system) VALUES ($1, $2, $3, FALSE) RETURNING `+roleColumns, code, name, description)
	role, err := scanRole(row)
	if err != nil {
		return Role{}, mapConstraint(err, "catalog: role")
	}
	return role, nil
}

// UpdateRole persists mutable role fields.
func (r *PGRepository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx, `UPDATE roles SET code = $2, name = $3, description = $4, updated_at = NOW() WHERE id = $1 RETURNING `+roleColumns, role.ID, role.Code, role.Name, role.Description)
	updated, err := scanRole(row)
	if err != nil {
		return Role{}, mapConstraint(err, "catalog: role")
	}
	return updated, nil
}

const permissionColumns = `id, code, name, description, resource_id, created_at, updated_at`

func scanPermission(row pgx.Row) (Permission, error) {
	var perm Permission
	err := row.Scan(&perm.ID, &perm.Code, &perm.Name, &perm.Description, &perm.ResourceID, &perm.CreatedAt, &perm.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, fmt.Errorf("catalog: permission: %w", shared.ErrNotFound)
		}
		return Permission{}, err
	}
	return perm, nil
}

// GetPermission fetches a permission by ID.
func (r *PGRepository) GetPermission(ctx context.Context, id int64) (Permission, error) {
	return scanPermission(r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id))
}

// FindPermissionByCode fetches a permission by its unique code.
func (r *PGRepository) FindPermissionByCode(ctx context.Context, code string) (Permission, error) {
	return scanPermission(r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE code = $1`, code))
}

// ListPermissions returns all permissions ordered by code.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var perm Permission
		if err := rows.Scan(&perm.ID, &perm.Code, &perm.Name, &perm.Description, &perm.ResourceID, &perm.CreatedAt, &perm.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// InsertPermission creates a permission.
func (r *PGRepository) InsertPermission(ctx context.Context, code, name, description string, resourceID *int64) (Permission, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO permissions (code, name, description, resource_id) VALUES ($1, $2, $3, $4) RETURNING `+permissionColumns, code, name, description, resourceID)
	perm, err := scanPermission(row)
	if err != nil {
		return Permission{}, mapConstraint(err, "catalog: permission")
	}
	return perm, nil
}

// UpdatePermission persists mutable permission fields.
func (r *PGRepository) UpdatePermission(ctx context.Context, permission Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx, `UPDATE permissions SET code = $2, name = $3, description = $4, resource_id = $5, updated_at = NOW() WHERE id = $1 RETURNING `+permissionColumns, permission.ID, permission.Code, permission.Name, permission.Description, permission.ResourceID)
	updated, err := scanPermission(row)
	if err != nil {
		return Permission{}, mapConstraint(err, "catalog: permission")
	}
	return updated, nil
}

const resourceColumns = `id, route_code, name, description, order_index, is_active, created_at, updated_at`

func scanResource(row pgx.Row) (Resource, error) {
	var res Resource
	err := row.Scan(&res.ID, &res.RouteCode, &res.Name, &res.Description, &res.OrderIndex, &res.IsActive, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Resource{}, fmt.Errorf("catalog: resource: %w", shared.ErrNotFound)
		}
		return Resource{}, err
	}
	return res, nil
}

// GetResource fetches a resource by ID.
func (r *PGRepository) GetResource(ctx context.Context, id int64) (Resource, error) {
	return scanResource(r.pool.QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = $1`, id))
}

// FindResourceByRouteCode fetches a resource by its unique route code.
func (r *PGRepository) FindResourceByRouteCode(ctx context.Context, routeCode string) (Resource, error) {
	return scanResource(r.pool.QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources WHERE route_code = $1`, routeCode))
}

// ListResources returns all resources ordered by order_index then route code.
func (r *PGRepository) ListResources(ctx context.Context) ([]Resource, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+resourceColumns+` FROM resources ORDER BY order_index, route_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var resources []Resource
	for rows.Next() {
		var res Resource
		if err := rows.Scan(&res.ID, &res.RouteCode, &res.Name, &res.Description, &res.OrderIndex, &res.IsActive, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}
	return resources, rows.Err()
}

// InsertResource creates a resource.
func (r *PGRepository) InsertResource(ctx context.Context, routeCode, name, description string, orderIndex int32, isActive bool) (Resource, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO resources (route_code, name, description, order_index, is_active) VALUES ($1, $2, $3, $4, $5) RETURNING `+resourceColumns, routeCode, name, description, orderIndex, isActive)
	res, err := scanResource(row)
	if err != nil {
		return Resource{}, mapConstraint(err, "catalog: resource")
	}
	return res, nil
}

// UpdateResource persists mutable resource fields.
func (r *PGRepository) UpdateResource(ctx context.Context, resource Resource) (Resource, error) {
	row := r.pool.QueryRow(ctx, `UPDATE resources SET name = $2, description = $3, order_index = $4, is_active = $5, updated_at = NOW() WHERE id = $1 RETURNING `+resourceColumns, resource.ID, resource.Name, resource.Description, resource.OrderIndex, resource.IsActive)
	updated, err := scanResource(row)
	if err != nil {
		return Resource{}, mapConstraint(err, "catalog: resource")
	}
	return updated, nil
}

// WithTx runs fn against a transactional view of the repository.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) DeleteRolePermissionsByRole(ctx context.Context, roleID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID)
	return tag.RowsAffected(), err
}

func (r *txRepository) DeleteUserRolesByRole(ctx context.Context, roleID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, roleID)
	return tag.RowsAffected(), err
}

func (r *txRepository) DeleteRole(ctx context.Context, roleID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	return tag.RowsAffected(), err
}

func (r *txRepository) DeleteRolePermissionsByPermission(ctx context.Context, permissionID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM role_permissions WHERE permission_id = $1`, permissionID)
	return tag.RowsAffected(), err
}

func (r *txRepository) DeletePermission(ctx context.Context, permissionID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, permissionID)
	return tag.RowsAffected(), err
}

func (r *txRepository) DetachPermissionsFromResource(ctx context.Context, resourceID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE permissions SET resource_id = NULL, updated_at = NOW() WHERE resource_id = $1`, resourceID)
	return tag.RowsAffected(), err
}

func (r *txRepository) DeleteResource(ctx context.Context, resourceID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM resources WHERE id = $1`, resourceID)
	return tag.RowsAffected(), err
}

// mapConstraint translates PostgreSQL constraint violations into the shared
// error kinds. Unique violations back the check-and-insert discipline; the
// database, not a prior read, is the arbiter of uniqueness.
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
