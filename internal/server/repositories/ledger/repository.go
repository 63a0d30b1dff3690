package ledger

import (
	"context"

	"github.com/fieldlabs/hydrosync/internal/server/models"
)

type Repository interface {
	Upsert(ctx context.Context, e *models.SyncLedgerEntry) error
	Get(ctx context.Context, deviceID, userID string) (*models.SyncLedgerEntry, error)
}
