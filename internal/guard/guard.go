// Package guard holds the stateless protection predicates consulted before
// every catalog or ledger mutation. The protected entities are ordinary rows
// marked at the data level (the "*" permission code, the SUPERADMIN role code,
// the is_system flag); each rule is an independently callable predicate so the
// rules can be exercised without going through the full call stack.
package guard

import "github.com/hemmy-platform/hemmy-authz/internal/authz"

// IsWildcardPermission reports whether the permission is the reserved
// wildcard that grants every capability.
func IsWildcardPermission(p authz.Permission) bool {
	return p.Code == authz.WildcardPermissionCode
}

// IsSuperadminRole reports whether the role is the super-administrator role.
func IsSuperadminRole(r authz.Role) bool {
	return r.Code == authz.SuperadminRoleCode
}

// IsProtectedRole reports whether the role definition is immutable: any
// system role, and the SUPERADMIN role regardless of its flag.
func IsProtectedRole(r authz.Role) bool {
	return r.IsSystem || IsSuperadminRole(r)
}

// CanAssignWildcard reports whether the wildcard permission may be linked to
// the role. Only SUPERADMIN ever holds the wildcard.
func CanAssignWildcard(r authz.Role) bool {
	return IsSuperadminRole(r)
}

// CanModifyRolePermissions reports whether the role's permission set may be
// changed through the general assignment path. System role memberships are
// fixed at provisioning time.
func CanModifyRolePermissions(r authz.Role) bool {
	return !IsProtectedRole(r)
}

// CanMutateRole reports whether the role's definition may be updated or the
// role deleted.
func CanMutateRole(r authz.Role) bool {
	return !IsProtectedRole(r)
}

// CanMutatePermission reports whether the permission may be updated or
// deleted. The wildcard is seeded once and never changes.
func CanMutatePermission(p authz.Permission) bool {
	return !IsWildcardPermission(p)
}
