package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldlabs/hydrosync/internal/client/models"
	"github.com/fieldlabs/hydrosync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Add(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO notifications (entity_type, entity_id, message, backup_id, created_at, read)
		values (?, ?, ?, ?, ?, 0)`
	res, err := r.db.ExecContext(ctx, query, n.EntityType, n.EntityID, n.Message, n.BackupID, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	n.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get notification id: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListUnread(ctx context.Context) ([]*models.Notification, error) {
	query := `select id, entity_type, entity_id, message, backup_id, created_at, read
		from notifications where read=0 order by id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select notifications: %w", err)
	}
	defer rows.Close()

	var result []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(&n.ID, &n.EntityType, &n.EntityID, &n.Message, &n.BackupID, &n.CreatedAt, &n.Read); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) MarkRead(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `update notifications set read=1 where id=? and read=0`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra != 1 {
		return fmt.Errorf("wrong rows affected count: %d", ra)
	}
	return nil
}
