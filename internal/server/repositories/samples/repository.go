package samples

import (
	"context"

	"github.com/fieldlabs/hydrosync/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, id string) (*models.VersionedRecord, error)
	Insert(ctx context.Context, rec *models.VersionedRecord) (*models.VersionedRecord, error)
	CompareAndSwap(ctx context.Context, rec *models.VersionedRecord, presented int64) (*models.VersionedRecord, error)
	ChangedSince(ctx context.Context, labID string, afterSeq int64) ([]*models.VersionedRecord, error)
}
