package results

import (
	"context"

	"github.com/fieldlabs/hydrosync/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, id string) (*models.VersionedRecord, error)
	Insert(ctx context.Context, rec *models.VersionedRecord) (*models.VersionedRecord, error)
	CompareAndSwap(ctx context.Context, rec *models.VersionedRecord, presented int64) (*models.VersionedRecord, error)
	ChangedSince(ctx context.Context, labID string, afterSeq int64) ([]*models.VersionedRecord, error)

	// Void marks a submitted result voided with a forward reference to its
	// replacement. It is the only legal in-place transition of a submitted row.
	Void(ctx context.Context, id, replacementID, actor string) (*models.VersionedRecord, error)
}
