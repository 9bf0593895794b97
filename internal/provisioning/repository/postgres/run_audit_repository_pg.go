package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AradIT/voipprov/internal/provisioning/domain"
)

type PgRunAuditRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewPgRunAuditRepository(db *pgxpool.Pool, logger *slog.Logger) domain.RunAuditRepository {
	return &PgRunAuditRepository{db: db, logger: logger.With("component", "run_audit_repository_pg")}
}

// RecordRun inserts the run header and its per-subscriber rows in one
// transaction.
func (r *PgRunAuditRepository) RecordRun(ctx context.Context, run *domain.ProvisioningRun, records []*domain.RunAuditRecord) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		runQuery := `INSERT INTO provisioning_runs
			(id, domain, report_only, create_billable, started_at, finished_at,
			 active_count, already_active_count, inactive_count, blocked_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		_, err := tx.Exec(ctx, runQuery,
			run.ID, run.Domain, run.ReportOnly, run.CreateBillable, run.StartedAt, run.FinishedAt,
			run.ActiveCount, run.AlreadyCount, run.InactiveCount, run.BlockedCount,
		)
		if err != nil {
			return fmt.Errorf("inserting provisioning_runs row: %w", err)
		}

		recordQuery := `INSERT INTO provisioning_run_records (run_id, extension, bucket)
			VALUES ($1, $2, $3)`
		for _, record := range records {
			if _, err := tx.Exec(ctx, recordQuery, run.ID, record.Extension, string(record.Bucket)); err != nil {
				return fmt.Errorf("inserting provisioning_run_records row for %s: %w", record.Extension, err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to record provisioning run", "run_id", run.ID.String(), "error", err)
		return err
	}

	r.logger.InfoContext(ctx, "Provisioning run recorded", "run_id", run.ID.String(), "records", len(records))
	return nil
}
