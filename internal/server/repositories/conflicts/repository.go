package conflicts

import (
	"context"
	"time"

	"github.com/fieldlabs/hydrosync/internal/server/models"
)

// ListFilter narrows a conflict backup listing. Zero-valued fields are
// ignored; Resolved distinguishes resolved/unresolved when set.
type ListFilter struct {
	LabID    string
	DeviceID string
	From     *time.Time
	To       *time.Time
	Resolved *bool
}

type Repository interface {
	Create(ctx context.Context, b *models.ConflictBackup) error
	GetByID(ctx context.Context, id string) (*models.ConflictBackup, error)
	List(ctx context.Context, f ListFilter) ([]*models.ConflictBackup, error)
}
