// Package bootstrap provisions the protected entities: the wildcard
// permission, the SUPERADMIN system role, and the single role-permission row
// linking them. This is the one path that may touch system role membership;
// the general assignment operations refuse it.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hemmy-platform/hemmy-authz/internal/catalog"
	"github.com/hemmy-platform/hemmy-authz/internal/platform/db"
	"github.com/hemmy-platform/hemmy-authz/internal/shared"
)

// Seeder provisions system entities. Every run is idempotent: existing rows
// are left untouched.
type Seeder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSeeder constructs a Seeder.
func NewSeeder(pool *pgxpool.Pool, logger *slog.Logger) *Seeder {
	return &Seeder{pool: pool, logger: logger}
}

// Run provisions the wildcard permission, the SUPERADMIN role and their
// linkage inside one transaction, then ensures the service's own admin
// permission codes exist.
func (s *Seeder) Run(ctx context.Context) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO permissions (code, name, description)
			VALUES ($1, 'All capabilities', 'Grants every capability unconditionally')
			ON CONFLICT (code) DO NOTHING`, catalog.WildcardPermissionCode); err != nil {
			return fmt.Errorf("bootstrap: seed wildcard permission: %w", err)
		}
		var wildcardID int64
		if err := tx.QueryRow(ctx, `SELECT id FROM permissions WHERE code = $1`, catalog.WildcardPermissionCode).Scan(&wildcardID); err != nil {
			return fmt.Errorf("bootstrap: lookup wildcard permission: %w", err)
		}

		if _, err := tx.Exec(ctx, `INSERT INTO roles (code, name, description, is_system)
			VALUES ($1, 'Super Administrator', 'Holds the wildcard permission', TRUE)
			ON CONFLICT (code) DO NOTHING`, catalog.SuperadminRoleCode); err != nil {
			return fmt.Errorf("bootstrap: seed superadmin role: %w", err)
		}
		var superadminID int64
		if err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE code = $1`, catalog.SuperadminRoleCode).Scan(&superadminID); err != nil {
			return fmt.Errorf("bootstrap: lookup superadmin role: %w", err)
		}

		if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id)
			VALUES ($1, $2) ON CONFLICT (role_id, permission_id) DO NOTHING`, superadminID, wildcardID); err != nil {
			return fmt.Errorf("bootstrap: link wildcard to superadmin: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, code := range shared.AdminScopes() {
		if _, err := s.pool.Exec(ctx, `INSERT INTO permissions (code, name, description)
			VALUES ($1, $1, 'Service administration scope') ON CONFLICT (code) DO NOTHING`, code); err != nil {
			return fmt.Errorf("bootstrap: seed admin scope %s: %w", code, err)
		}
	}

	if s.logger != nil {
		s.logger.Info("bootstrap complete")
	}
	return nil
}

// GrantSuperadmin gives the SUPERADMIN role to a user, used to hand the
// first operator the keys. Granting roles to users is not restricted by the
// guard, so the ordinary ledger semantics apply; an existing grant is left
// in place.
func (s *Seeder) GrantSuperadmin(ctx context.Context, userID int64) error {
	var superadminID int64
	if err := s.pool.QueryRow(ctx, `SELECT id FROM roles WHERE code = $1`, catalog.SuperadminRoleCode).Scan(&superadminID); err != nil {
		return fmt.Errorf("bootstrap: lookup superadmin role: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `INSERT INTO user_roles (user_id, role_id)
		VALUES ($1, $2) ON CONFLICT (user_id, role_id) DO NOTHING`, userID, superadminID); err != nil {
		return fmt.Errorf("bootstrap: grant superadmin to user %d: %w", userID, err)
	}
	return nil
}
