package syncsvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldlabs/hydrosync/internal/common"
	"github.com/fieldlabs/hydrosync/internal/dbx"
	"github.com/fieldlabs/hydrosync/internal/server/auth"
	"github.com/fieldlabs/hydrosync/internal/server/models"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/conflicts"
)

// Apply runs a single interactive mutation through the guard. Unlike Sync it
// surfaces a rejection as an error (a *guard.ConflictError for token
// mismatches), so an interactive caller can re-read and retry instead of
// having the write resolved away.
func (c *Coordinator) Apply(ctx context.Context, scope auth.Scope, origin string, pr PushRecord) (*models.VersionedRecord, error) {
	var applied *models.VersionedRecord

	err := c.runTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		store, err := c.store(tx, pr.EntityType)
		if err != nil {
			return err
		}

		rec := &models.VersionedRecord{
			EntityType: pr.EntityType,
			EntityID:   pr.EntityID,
			LabID:      scope.LabID,
			Payload:    pr.Payload,
			Deleted:    pr.Deleted,
			UpdatedBy:  scope.UserID,
		}

		current, err := store.Get(ctx, pr.EntityID)
		switch {
		case err == nil:
			if current.LabID != scope.LabID {
				return fmt.Errorf("%w: record belongs to another lab", common.ErrValidation)
			}
			applied, err = c.guard.Apply(ctx, store, rec, pr.PresentedToken)
			if err != nil {
				return err
			}
			action := models.ActionUpdate
			if applied.Deleted && !current.Deleted {
				action = models.ActionDelete
			}
			return c.trail.Record(ctx, tx, &models.AuditEntry{
				Actor:      scope.UserID,
				EntityType: applied.EntityType,
				EntityID:   applied.EntityID,
				Action:     action,
				OldValue:   current.Payload,
				NewValue:   applied.Payload,
				OriginAddr: origin,
			})
		case errors.Is(err, common.ErrNotFound):
			applied, err = store.Insert(ctx, rec)
			if err != nil {
				return err
			}
			return c.trail.Record(ctx, tx, &models.AuditEntry{
				Actor:      scope.UserID,
				EntityType: applied.EntityType,
				EntityID:   applied.EntityID,
				Action:     models.ActionCreate,
				NewValue:   applied.Payload,
				OriginAddr: origin,
			})
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// VoidResult handles corrections to finalized lab work: the submitted result
// is marked voided with a forward reference to its replacement, never edited
// in place.
func (c *Coordinator) VoidResult(ctx context.Context, scope auth.Scope, origin, resultID, replacementID string) (*models.VersionedRecord, error) {
	if replacementID == "" {
		return nil, fmt.Errorf("%w: void requires a replacement result id", common.ErrValidation)
	}

	var voided *models.VersionedRecord
	err := c.runTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		before, err := c.rm.Results(tx).Get(ctx, resultID)
		if err != nil {
			return err
		}
		if before.LabID != scope.LabID {
			return fmt.Errorf("%w: result belongs to another lab", common.ErrValidation)
		}

		voided, err = c.rm.Results(tx).Void(ctx, resultID, replacementID, scope.UserID)
		if err != nil {
			return err
		}

		return c.trail.Record(ctx, tx, &models.AuditEntry{
			Actor:      scope.UserID,
			EntityType: models.EntityTestResult,
			EntityID:   resultID,
			Action:     models.ActionUpdate,
			OldValue:   before.Payload,
			NewValue:   voided.Payload,
			OriginAddr: origin,
		})
	})
	if err != nil {
		return nil, err
	}
	return voided, nil
}

// ListConflicts exposes the conflict archive for review tooling. The scope's
// lab is enforced regardless of the filter.
func (c *Coordinator) ListConflicts(ctx context.Context, scope auth.Scope, filter conflicts.ListFilter) ([]*models.ConflictBackup, error) {
	filter.LabID = scope.LabID
	return c.rm.Conflicts(c.db).List(ctx, filter)
}

// GetConflict fetches one backup, refusing cross-lab reads.
func (c *Coordinator) GetConflict(ctx context.Context, scope auth.Scope, id string) (*models.ConflictBackup, error) {
	b, err := c.rm.Conflicts(c.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.LabID != scope.LabID {
		return nil, common.ErrNotFound
	}
	return b, nil
}

// AuditHistory returns the hot-tier trail for one entity, oldest first.
func (c *Coordinator) AuditHistory(ctx context.Context, scope auth.Scope, et models.EntityType, entityID string) ([]*models.AuditEntry, error) {
	if _, err := c.store(c.db, et); err != nil {
		return nil, err
	}
	return c.rm.Audit(c.db).ListByEntity(ctx, et, entityID)
}

// LedgerStatus reports the last sync outcome for a device/user pair.
func (c *Coordinator) LedgerStatus(ctx context.Context, scope auth.Scope, deviceID string) (*models.SyncLedgerEntry, error) {
	return c.rm.Ledger(c.db).Get(ctx, deviceID, scope.UserID)
}
