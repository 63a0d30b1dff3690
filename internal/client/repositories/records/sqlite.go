package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fieldlabs/hydrosync/internal/client/models"
	"github.com/fieldlabs/hydrosync/internal/common"
	"github.com/fieldlabs/hydrosync/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert inserts or replaces a record by (entity type, id).
func (r *SQLiteRepository) Upsert(ctx context.Context, rec *models.LocalRecord) error {
	query := ` INSERT INTO records (entity_type, entity_id, payload, token, deleted, dirty, updated_at)
			values (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(entity_type, entity_id) DO UPDATE SET payload = excluded.payload,
				token = excluded.token,
				deleted = excluded.deleted,
				dirty = excluded.dirty,
				updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.EntityType, rec.EntityID, string(rec.Payload), rec.Token, rec.Deleted, rec.Dirty, rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

// Get returns a record by its identifier.
func (r *SQLiteRepository) Get(ctx context.Context, entityType, entityID string) (*models.LocalRecord, error) {
	query := `select entity_type, entity_id, payload, token, deleted, dirty, updated_at
		from records where entity_type=? and entity_id=?`
	row := r.db.QueryRowContext(ctx, query, entityType, entityID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return rec, nil
}

// List returns all non-deleted records of one type.
func (r *SQLiteRepository) List(ctx context.Context, entityType string) ([]*models.LocalRecord, error) {
	query := `select entity_type, entity_id, payload, token, deleted, dirty, updated_at
		from records where entity_type=? and deleted=0 order by entity_id`
	rows, err := r.db.QueryContext(ctx, query, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// GetAllDirty returns records awaiting sync, in stable order.
func (r *SQLiteRepository) GetAllDirty(ctx context.Context) ([]*models.LocalRecord, error) {
	query := `select entity_type, entity_id, payload, token, deleted, dirty, updated_at
		from records where dirty=1 order by entity_type, entity_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select dirty records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// ClearDirty unsets the dirty flag and adopts the new token, but only when
// the stored payload still equals the pushed snapshot. An edit made while the
// sync round was in flight keeps the row dirty for the next round.
func (r *SQLiteRepository) ClearDirty(ctx context.Context, entityType, entityID string, pushedPayload []byte, newToken int64) error {
	query := `update records set dirty=0, token=? where entity_type=? and entity_id=? and payload=?`
	_, err := r.db.ExecContext(ctx, query, newToken, entityType, entityID, string(pushedPayload))
	if err != nil {
		return fmt.Errorf("failed to clear dirty flag: %w", err)
	}
	return nil
}

// Overwrite replaces a record with the authoritative server state.
func (r *SQLiteRepository) Overwrite(ctx context.Context, rec *models.LocalRecord) error {
	query := ` INSERT INTO records (entity_type, entity_id, payload, token, deleted, dirty, updated_at)
			values (?, ?, ?, ?, ?, 0, ?)
			ON CONFLICT(entity_type, entity_id) DO UPDATE SET payload = excluded.payload,
				token = excluded.token,
				deleted = excluded.deleted,
				dirty = 0,
				updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.EntityType, rec.EntityID, string(rec.Payload), rec.Token, rec.Deleted, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to overwrite record: %w", err)
	}
	return nil
}

func scanRecord(row interface{ Scan(dest ...any) error }) (*models.LocalRecord, error) {
	rec := &models.LocalRecord{}
	var payload string
	if err := row.Scan(&rec.EntityType, &rec.EntityID, &payload, &rec.Token, &rec.Deleted, &rec.Dirty, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Payload = []byte(payload)
	return rec, nil
}

func collectRecords(rows *sql.Rows) ([]*models.LocalRecord, error) {
	var result []*models.LocalRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
