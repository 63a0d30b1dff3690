// Package ledger persists the per-(device, user) sync ledger: last
// watermark, status and counters of the most recent sync call.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fieldlabs/hydrosync/internal/common"
	"github.com/fieldlabs/hydrosync/internal/dbx"
	"github.com/fieldlabs/hydrosync/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, e *models.SyncLedgerEntry) error {
	query := `INSERT INTO sync_ledger (device_id, user_id, watermark, status, applied_count,
			conflict_count, resolved_count, last_error, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (device_id, user_id)
		DO UPDATE SET
			watermark = EXCLUDED.watermark,
			status = EXCLUDED.status,
			applied_count = EXCLUDED.applied_count,
			conflict_count = EXCLUDED.conflict_count,
			resolved_count = EXCLUDED.resolved_count,
			last_error = EXCLUDED.last_error,
			updated_at = now()`
	_, err := r.db.ExecContext(ctx, query,
		e.DeviceID, e.UserID, e.Watermark, e.Status,
		e.AppliedCount, e.ConflictCount, e.ResolvedCount, e.LastError)
	if err != nil {
		return fmt.Errorf("failed to upsert ledger entry: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, deviceID, userID string) (*models.SyncLedgerEntry, error) {
	query := `SELECT device_id, user_id, watermark, status, applied_count,
			conflict_count, resolved_count, last_error, updated_at
		FROM sync_ledger WHERE device_id=$1 AND user_id=$2`
	row := r.db.QueryRowContext(ctx, query, deviceID, userID)

	var e models.SyncLedgerEntry
	err := row.Scan(&e.DeviceID, &e.UserID, &e.Watermark, &e.Status,
		&e.AppliedCount, &e.ConflictCount, &e.ResolvedCount, &e.LastError, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select ledger entry: %w", err)
	}
	return &e, nil
}
