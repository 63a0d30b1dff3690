// Package conflicts is the conflict archive: pure persistence and query for
// the backup snapshots produced by the resolver. No resolution logic lives
// here.
package conflicts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

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

// Create stores one backup row. Snapshots go in as raw text so the client
// payload survives byte-for-byte.
func (r *PostgresRepository) Create(ctx context.Context, b *models.ConflictBackup) error {
	query := `INSERT INTO conflict_backups (id, lab_id, device_id, entity_type, entity_id,
			client_snapshot, server_snapshot, strategy, detected_at, resolved_at, resolved_by, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	res, err := r.db.ExecContext(ctx, query,
		b.ID, b.LabID, b.DeviceID, b.EntityType, b.EntityID,
		string(b.ClientSnapshot), string(b.ServerSnapshot), b.Strategy,
		b.DetectedAt, b.ResolvedAt, b.ResolvedBy, b.Notes)
	if err != nil {
		return fmt.Errorf("failed to insert conflict backup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

func scanBackup(row interface{ Scan(dest ...any) error }) (*models.ConflictBackup, error) {
	var b models.ConflictBackup
	var client, server string
	err := row.Scan(&b.ID, &b.LabID, &b.DeviceID, &b.EntityType, &b.EntityID,
		&client, &server, &b.Strategy, &b.DetectedAt, &b.ResolvedAt, &b.ResolvedBy, &b.Notes)
	if err != nil {
		return nil, err
	}
	b.ClientSnapshot = []byte(client)
	b.ServerSnapshot = []byte(server)
	return &b, nil
}

const selectColumns = `id, lab_id, device_id, entity_type, entity_id,
	client_snapshot, server_snapshot, strategy, detected_at, resolved_at, resolved_by, notes`

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.ConflictBackup, error) {
	query := `SELECT ` + selectColumns + ` FROM conflict_backups WHERE id=$1`
	b, err := scanBackup(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select conflict backup: %w", err)
	}
	return b, nil
}

// List returns backups matching the filter, newest first.
func (r *PostgresRepository) List(ctx context.Context, f ListFilter) ([]*models.ConflictBackup, error) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.LabID != "" {
		add("lab_id=$%d", f.LabID)
	}
	if f.DeviceID != "" {
		add("device_id=$%d", f.DeviceID)
	}
	if f.From != nil {
		add("detected_at>=$%d", *f.From)
	}
	if f.To != nil {
		add("detected_at<$%d", *f.To)
	}
	if f.Resolved != nil {
		if *f.Resolved {
			conds = append(conds, "resolved_at IS NOT NULL")
		} else {
			conds = append(conds, "resolved_at IS NULL")
		}
	}

	query := `SELECT ` + selectColumns + ` FROM conflict_backups`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY detected_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select conflict backups: %w", err)
	}
	defer rows.Close()

	var result []*models.ConflictBackup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
