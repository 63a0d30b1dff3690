package records

import (
	"context"

	"github.com/fieldlabs/hydrosync/internal/client/models"
)

// Repository describes the local record store the agent works against.
// Implementations are backed by the agent's SQLite database.
type Repository interface {
	// Upsert inserts or replaces a record by (entity type, id).
	Upsert(ctx context.Context, rec *models.LocalRecord) error

	// Get returns a record by its identifier.
	Get(ctx context.Context, entityType, entityID string) (*models.LocalRecord, error)

	// List returns all non-deleted records of one type.
	List(ctx context.Context, entityType string) ([]*models.LocalRecord, error)

	// GetAllDirty returns the records with local changes not yet accepted
	// by the server, in stable order.
	GetAllDirty(ctx context.Context) ([]*models.LocalRecord, error)

	// ClearDirty unsets the dirty flag only if the stored payload still
	// matches the pushed snapshot, so edits made during a sync round stay
	// pending.
	ClearDirty(ctx context.Context, entityType, entityID string, pushedPayload []byte, newToken int64) error

	// Overwrite replaces a record with the authoritative server state and
	// unsets the dirty flag unconditionally. Used for pulls and for
	// conflict overwrites.
	Overwrite(ctx context.Context, rec *models.LocalRecord) error
}
