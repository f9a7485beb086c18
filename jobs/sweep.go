package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hemmy-platform/hemmy-authz/internal/catalog"
)

// SweepReport summarises one invariant sweep over the assignment ledger.
type SweepReport struct {
	StrayWildcardRows  int64
	SuperadminUnlinked bool
}

// Violations reports whether the sweep found anything wrong.
func (r SweepReport) Violations() bool {
	return r.StrayWildcardRows > 0 || r.SuperadminUnlinked
}

// RunInvariantSweep re-checks the static ledger invariants: the wildcard
// permission is linked only to SUPERADMIN, and SUPERADMIN still holds it.
// The operations enforce these rules at mutation time; the sweep is a
// detection net for out-of-band writes. Read-only.
func RunInvariantSweep(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (SweepReport, error) {
	var report SweepReport

	err := pool.QueryRow(ctx, `SELECT COUNT(*)
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		JOIN roles r ON r.id = rp.role_id
		WHERE p.code = $1 AND r.code <> $2`,
		catalog.WildcardPermissionCode, catalog.SuperadminRoleCode).Scan(&report.StrayWildcardRows)
	if err != nil {
		return report, err
	}

	var linked int64
	err = pool.QueryRow(ctx, `SELECT COUNT(*)
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		JOIN roles r ON r.id = rp.role_id
		WHERE p.code = $1 AND r.code = $2`,
		catalog.WildcardPermissionCode, catalog.SuperadminRoleCode).Scan(&linked)
	if err != nil {
		return report, err
	}
	report.SuperadminUnlinked = linked == 0

	if logger != nil {
		if report.Violations() {
			logger.Error("ledger invariant violation detected",
				slog.Int64("stray_wildcard_rows", report.StrayWildcardRows),
				slog.Bool("superadmin_unlinked", report.SuperadminUnlinked))
		} else {
			logger.Info("ledger invariants hold", slog.String("job", "invariant_sweep"))
		}
	}
	return report, nil
}

// NewInvariantSweepHandler returns the asynq handler for the sweep task.
func NewInvariantSweepHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		_, err := RunInvariantSweep(ctx, pool, logger)
		return err
	}
}
