package catalog

import "github.com/hemmy-platform/hemmy-authz/internal/authz"

// The catalog works on the shared domain entities. Aliases keep the rest of
// the module talking in catalog terms while the types live in the leaf
// authz package.
type (
	// Role groups permissions under a stable code.
	Role = authz.Role
	// Permission represents an atomic capability, optionally scoped to a resource.
	Permission = authz.Permission
	// Resource represents a navigable module permissions may be scoped to.
	Resource = authz.Resource
)

// Reserved codes, re-exported for callers that only import the catalog.
const (
	WildcardPermissionCode = authz.WildcardPermissionCode
	SuperadminRoleCode     = authz.SuperadminRoleCode
)

// RolePatch carries optional field changes for a role. Nil means unchanged.
type RolePatch struct {
	Code        *string
	Name        *string
	Description *string
}

// Touches reports whether the patch changes any protected field.
func (p RolePatch) Touches() bool {
	return p.Code != nil || p.Name != nil || p.Description != nil
}

// PermissionPatch carries optional field changes for a permission.
// ClearResourceID detaches the permission from its resource.
type PermissionPatch struct {
	Code            *string
	Name            *string
	Description     *string
	ResourceID      *int64
	ClearResourceID bool
}

// ResourcePatch carries optional field changes for a resource.
type ResourcePatch struct {
	RouteCode   *string
	Name        *string
	Description *string
	OrderIndex  *int32
	IsActive    *bool
}
