// Package resolver answers capability queries: which permissions a user
// effectively holds, and whether the user may perform an action on a subject.
package resolver

import (
	"context"

	"github.com/hemmy-platform/hemmy-authz/internal/authz"
	"github.com/hemmy-platform/hemmy-authz/internal/guard"
)

// Ledger is the read-only slice of the assignment ledger the resolver needs.
type Ledger interface {
	ListRolesForUser(ctx context.Context, userID int64) ([]authz.Role, error)
	ListPermissionsForRole(ctx context.Context, roleID int64) ([]authz.Permission, error)
}

// Resolver computes effective permission sets straight from the ledger. It
// holds no cache: every call reflects the ledger state at the time of the
// call. Use CachedResolver for a caller-side cache.
type Resolver struct {
	ledger Ledger
	match  Matcher
}

// New constructs a Resolver. A nil matcher falls back to DefaultMatcher.
func New(ledger Ledger, match Matcher) *Resolver {
	if match == nil {
		match = DefaultMatcher
	}
	return &Resolver{ledger: ledger, match: match}
}

// EffectivePermissions returns the union of permissions reachable through
// every role the user currently holds, deduplicated by permission identity.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID int64) ([]authz.Permission, error) {
	roles, err := r.ledger.ListRolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{})
	var perms []authz.Permission
	for _, role := range roles {
		rolePerms, err := r.ledger.ListPermissionsForRole(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		for _, perm := range rolePerms {
			if _, ok := seen[perm.ID]; ok {
				continue
			}
			seen[perm.ID] = struct{}{}
			perms = append(perms, perm)
		}
	}
	return perms, nil
}

// CanPerform reports whether the user may perform action on subject: true
// when the effective set holds the wildcard, or when any permission matches
// under the configured matcher.
func (r *Resolver) CanPerform(ctx context.Context, userID int64, action, subject string) (bool, error) {
	perms, err := r.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return decide(perms, r.match, action, subject), nil
}

func decide(perms []authz.Permission, match Matcher, action, subject string) bool {
	for _, perm := range perms {
		if guard.IsWildcardPermission(perm) {
			return true
		}
	}
	for _, perm := range perms {
		if match(perm, action, subject) {
			return true
		}
	}
	return false
}
