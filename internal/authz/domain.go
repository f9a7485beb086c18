// Package authz holds the domain entities of the authorization core and the
// reserved codes marking the protected rows. It imports nothing from the rest
// of the module so the catalog, ledger, guard and resolver packages can all
// share these types.
package authz

import "time"

// Reserved codes marking the protected entities. They are ordinary rows
// distinguished at the data level; the guard package interprets them.
const (
	// WildcardPermissionCode grants every capability unconditionally.
	WildcardPermissionCode = "*"
	// SuperadminRoleCode identifies the super-administrator role.
	SuperadminRoleCode = "SUPERADMIN"
)

// Role groups permissions under a stable code.
type Role struct {
	ID          int64
	Code        string
	Name        string
	Description string
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission represents an atomic capability, optionally scoped to a resource.
type Permission struct {
	ID          int64
	Code        string
	Name        string
	Description string
	ResourceID  *int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Resource represents a navigable module permissions may be scoped to.
type Resource struct {
	ID          int64
	RouteCode   string
	Name        string
	Description string
	OrderIndex  int32
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
