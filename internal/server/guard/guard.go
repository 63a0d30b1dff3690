// Package guard implements the optimistic-concurrency primitive every
// mutation funnels through: an atomic compare-and-set on the per-entity
// version token. It is the only concurrency control in the system; there are
// no application-level locks.
package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldlabs/hydrosync/internal/common"
	"github.com/fieldlabs/hydrosync/internal/server/models"
)

// Store is the slice of a syncable repository the guard needs. All syncable
// repositories (samples, results, parameters) satisfy it.
type Store interface {
	Get(ctx context.Context, id string) (*models.VersionedRecord, error)
	CompareAndSwap(ctx context.Context, rec *models.VersionedRecord, presented int64) (*models.VersionedRecord, error)
}

// ConflictError reports a rejected compare-and-set together with the state
// that won. Reason is common.ErrVersionConflict for a stale token and
// common.ErrImmutableRecord when the persisted row reached a terminal status.
type ConflictError struct {
	Current *models.VersionedRecord
	Reason  error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: %s %s at token %d", e.Reason, e.Current.EntityType, e.Current.EntityID, e.Current.Token)
}

func (e *ConflictError) Unwrap() error { return e.Reason }

type Guard struct{}

func New() *Guard { return &Guard{} }

// Apply attempts the compare-and-set. On success the new server state (with
// the regenerated token) is returned. On rejection the failure is classified
// by re-reading the row: a *ConflictError carries the authoritative state so
// the resolver can act without another round trip.
//
// The CAS itself is a single UPDATE guarded by the version column, so a
// rejected write leaves the row untouched: no lost updates, no partial
// application.
func (g *Guard) Apply(ctx context.Context, store Store, rec *models.VersionedRecord, presented int64) (*models.VersionedRecord, error) {
	applied, err := store.CompareAndSwap(ctx, rec, presented)
	if err == nil {
		return applied, nil
	}
	if !errors.Is(err, common.ErrVersionConflict) {
		return nil, err
	}

	current, gerr := store.Get(ctx, rec.EntityID)
	if gerr != nil {
		// Rows are never hard-deleted, so a vanished row means something
		// worse than a token race.
		return nil, fmt.Errorf("classify rejected write: %w", gerr)
	}

	reason := common.ErrVersionConflict
	if current.Immutable {
		reason = common.ErrImmutableRecord
	}
	return nil, &ConflictError{Current: current, Reason: reason}
}
