package ledger

import "time"

// RolePermission records that a role grants a permission. At most one row
// exists per (role, permission) pair.
type RolePermission struct {
	ID           int64
	RoleID       int64
	PermissionID int64
	CreatedAt    time.Time
}

// UserRole records that a user holds a role. At most one row exists per
// (user, role) pair. Users are external; only their identifier appears here.
type UserRole struct {
	ID        int64
	UserID    int64
	RoleID    int64
	CreatedAt time.Time
}
