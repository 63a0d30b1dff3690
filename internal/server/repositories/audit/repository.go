package audit

import (
	"context"
	"time"

	"github.com/fieldlabs/hydrosync/internal/server/models"
)

// Repository persists the hot audit table and supports the hot→cold moves of
// the archival job. There are no update methods: audit rows are immutable.
type Repository interface {
	Insert(ctx context.Context, e *models.AuditEntry) error
	ListByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.AuditEntry, error)

	// SelectArchivableIDs returns up to limit hot row ids recorded before
	// cutoff, in stable (recorded_at, id) order.
	SelectArchivableIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	// CopyToArchive copies the given hot rows into the cold table. Rows
	// already present in the archive are skipped, making re-runs idempotent.
	CopyToArchive(ctx context.Context, ids []string) (int64, error)
	// DeleteByIDs removes the given rows from the hot table.
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}
