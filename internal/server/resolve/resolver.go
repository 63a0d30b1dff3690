// Package resolve turns guard rejections into recorded resolutions. The
// default policy is Last-Writer-Wins: the state already persisted on the
// server is authoritative, and the rejected client payload is preserved
// verbatim in a conflict backup instead of being discarded.
//
// The resolver is only invoked from batch sync. Interactive direct edits
// surface the guard rejection to the caller for retry and never reach this
// package.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldlabs/hydrosync/internal/common"
	"github.com/fieldlabs/hydrosync/internal/logging"
	"github.com/fieldlabs/hydrosync/internal/server/models"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/conflicts"
	"github.com/google/uuid"
)

// Conflict is one guard rejection handed over for resolution.
type Conflict struct {
	DeviceID string
	Actor    string
	// Client is the rejected record exactly as the device pushed it.
	Client *models.VersionedRecord
	// Server is the authoritative state reported by the guard.
	Server *models.VersionedRecord
	// Reason is common.ErrVersionConflict or common.ErrImmutableRecord.
	Reason error
	Notes  string
}

type Resolver struct {
	now   func() time.Time
	newID func() string
	log   logging.Logger
}

func New(log logging.Logger) *Resolver {
	return &Resolver{
		now:   time.Now,
		newID: uuid.NewString,
		log:   log.With("module", "conflict_resolver"),
	}
}

// Resolve applies the resolution policy and writes exactly one backup
// through repo, which is expected to be bound to the same transaction as the
// rejected record's processing.
//
// A submitted test result rejects any conflicting write unconditionally,
// independent of timestamps; everything else resolves Last-Writer-Wins with
// the server side winning. Both outcomes leave the entity untouched — the
// backup is the entire effect.
func (r *Resolver) Resolve(ctx context.Context, repo conflicts.Repository, c Conflict) (*models.ConflictBackup, error) {
	if c.Client == nil || c.Server == nil {
		return nil, fmt.Errorf("%w: conflict requires both versions", common.ErrValidation)
	}

	strategy := models.StrategyLastWriterWins
	if errors.Is(c.Reason, common.ErrImmutableRecord) || c.Server.Immutable {
		strategy = models.StrategyImmutableRejected
	}

	now := r.now().UTC()
	backup := &models.ConflictBackup{
		ID:             r.newID(),
		LabID:          c.Server.LabID,
		DeviceID:       c.DeviceID,
		EntityType:     c.Server.EntityType,
		EntityID:       c.Server.EntityID,
		ClientSnapshot: c.Client.Payload,
		ServerSnapshot: c.Server.Payload,
		Strategy:       strategy,
		DetectedAt:     now,
		ResolvedAt:     &now,
		ResolvedBy:     "system",
		Notes:          c.Notes,
	}

	if err := repo.Create(ctx, backup); err != nil {
		return nil, fmt.Errorf("failed to store conflict backup: %w", err)
	}

	r.log.Info(ctx, "conflict resolved",
		"entity_type", backup.EntityType,
		"entity_id", backup.EntityID,
		"device_id", backup.DeviceID,
		"strategy", backup.Strategy)

	return backup, nil
}
