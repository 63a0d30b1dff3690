// Package audit provides PostgreSQL persistence for the hot audit table and
// the cold archive table. Both tables share one schema; only the archival
// job ever deletes from the hot table, and only after a verified copy.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fieldlabs/hydrosync/internal/dbx"
	"github.com/fieldlabs/hydrosync/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const insertColumns = `id, actor, entity_type, entity_id, action, old_value, new_value,
	changed_fields, truncated, overflow_key, conflict_backup_id, origin_addr, recorded_at`

func (r *PostgresRepository) Insert(ctx context.Context, e *models.AuditEntry) error {
	query := `INSERT INTO audit_entries (` + insertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	res, err := r.db.ExecContext(ctx, query,
		e.ID, e.Actor, e.EntityType, e.EntityID, e.Action,
		string(e.OldValue), string(e.NewValue), e.ChangedFields,
		e.Truncated, e.OverflowKey, e.ConflictBackupID, e.OriginAddr, e.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
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

func (r *PostgresRepository) ListByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.AuditEntry, error) {
	query := `SELECT ` + insertColumns + ` FROM audit_entries
		WHERE entity_type=$1 AND entity_id=$2 ORDER BY recorded_at`
	rows, err := r.db.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to select audit entries: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var oldV, newV string
		if err := rows.Scan(&e.ID, &e.Actor, &e.EntityType, &e.EntityID, &e.Action,
			&oldV, &newV, &e.ChangedFields, &e.Truncated, &e.OverflowKey,
			&e.ConflictBackupID, &e.OriginAddr, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.OldValue = []byte(oldV)
		e.NewValue = []byte(newV)
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) SelectArchivableIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := `SELECT id FROM audit_entries WHERE recorded_at<$1 ORDER BY recorded_at, id LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select archivable ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

// placeholders renders "$from, $from+1, ..." for an IN list.
func placeholders(n, from int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(parts, ", ")
}

func toAnySlice(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func (r *PostgresRepository) CopyToArchive(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `INSERT INTO audit_archive (` + insertColumns + `)
		SELECT ` + insertColumns + ` FROM audit_entries WHERE id IN (` + placeholders(len(ids), 1) + `)
		ON CONFLICT DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, toAnySlice(ids)...)
	if err != nil {
		return 0, fmt.Errorf("failed to copy audit entries to archive: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `DELETE FROM audit_entries WHERE id IN (` + placeholders(len(ids), 1) + `)`
	res, err := r.db.ExecContext(ctx, query, toAnySlice(ids)...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete archived audit entries: %w", err)
	}
	return res.RowsAffected()
}
