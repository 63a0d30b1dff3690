// Package agent runs the field device's side of the sync protocol: it tracks
// local edits in the dirty set, pushes them with their presented tokens,
// adopts regenerated tokens on acceptance, and reconciles conflict outcomes
// by overwriting the losing local state and notifying the user.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fieldlabs/hydrosync/internal/client/models"
	"github.com/fieldlabs/hydrosync/internal/client/repositories/metadata"
	"github.com/fieldlabs/hydrosync/internal/client/repositories/notifications"
	"github.com/fieldlabs/hydrosync/internal/client/repositories/records"
	"github.com/fieldlabs/hydrosync/internal/client/transport"
	"github.com/fieldlabs/hydrosync/internal/common"
	"github.com/fieldlabs/hydrosync/internal/logging"
	"github.com/sethvargo/go-retry"
)

// watermarkKey is the metadata slot holding the last completed pull position.
const watermarkKey = "watermark"

type Agent struct {
	records       records.Repository
	metadata      metadata.Repository
	notifications notifications.Repository
	caller        transport.Caller
	deviceID      string
	log           logging.Logger

	// push retry policy for unreachable-server rounds
	maxRetries  uint64
	baseBackoff time.Duration
}

func New(rec records.Repository, md metadata.Repository, nt notifications.Repository,
	caller transport.Caller, deviceID string, log logging.Logger) *Agent {
	return &Agent{
		records:       rec,
		metadata:      md,
		notifications: nt,
		caller:        caller,
		deviceID:      deviceID,
		log:           log.With("module", "sync_agent", "device_id", deviceID),
		maxRetries:    5,
		baseBackoff:   time.Second,
	}
}

// RecordEdit stores a local change and flags it for the next sync. Repeated
// edits before a sync collapse into one pending record carrying the same
// presented token.
func (a *Agent) RecordEdit(ctx context.Context, entityType, entityID string, payload json.RawMessage) error {
	rec := &models.LocalRecord{
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
		Dirty:      true,
		UpdatedAt:  time.Now().UTC(),
	}

	existing, err := a.records.Get(ctx, entityType, entityID)
	switch {
	case err == nil:
		rec.Token = existing.Token
	case errors.Is(err, common.ErrNotFound):
		// first local edit, token stays zero
	default:
		return err
	}

	return a.records.Upsert(ctx, rec)
}

// Delete marks a record as a tombstone pending sync.
func (a *Agent) Delete(ctx context.Context, entityType, entityID string) error {
	existing, err := a.records.Get(ctx, entityType, entityID)
	if err != nil {
		return err
	}
	existing.Deleted = true
	existing.Dirty = true
	existing.UpdatedAt = time.Now().UTC()
	return a.records.Upsert(ctx, existing)
}

// Get returns the local view of a record.
func (a *Agent) Get(ctx context.Context, entityType, entityID string) (*models.LocalRecord, error) {
	return a.records.Get(ctx, entityType, entityID)
}

// List returns the local non-deleted records of one type.
func (a *Agent) List(ctx context.Context, entityType string) ([]*models.LocalRecord, error) {
	return a.records.List(ctx, entityType)
}

// Pending returns the records still awaiting a successful push.
func (a *Agent) Pending(ctx context.Context) ([]*models.LocalRecord, error) {
	return a.records.GetAllDirty(ctx)
}

// Notifications returns unread conflict notifications, oldest first.
func (a *Agent) Notifications(ctx context.Context) ([]*models.Notification, error) {
	return a.notifications.ListUnread(ctx)
}

// MarkNotificationRead flags a notification as seen.
func (a *Agent) MarkNotificationRead(ctx context.Context, id int64) error {
	return a.notifications.MarkRead(ctx, id)
}

// Watermark reads the last completed pull position, zero if never synced.
func (a *Agent) Watermark(ctx context.Context) (int64, error) {
	raw, err := a.metadata.Get(ctx, watermarkKey)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	wm, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt watermark value %q: %w", raw, err)
	}
	return wm, nil
}

func (a *Agent) saveWatermark(ctx context.Context, wm int64) error {
	return a.metadata.Set(ctx, watermarkKey, []byte(strconv.FormatInt(wm, 10)))
}

// Sync runs one push/pull round. Connectivity failures are retried with
// exponential backoff; everything else surfaces immediately. The watermark is
// persisted only after all pulled changes are applied, so an interrupted
// round re-pulls instead of skipping.
func (a *Agent) Sync(ctx context.Context) (*transport.SyncResult, error) {
	wm, err := a.Watermark(ctx)
	if err != nil {
		return nil, err
	}

	dirty, err := a.records.GetAllDirty(ctx)
	if err != nil {
		return nil, err
	}

	req := &transport.SyncRequest{LastWatermark: wm}
	pushed := make(map[string][]byte, len(dirty))
	for _, rec := range dirty {
		req.Records = append(req.Records, transport.PushRecord{
			EntityType:     rec.EntityType,
			EntityID:       rec.EntityID,
			Payload:        rec.Payload,
			PresentedToken: rec.Token,
			Deleted:        rec.Deleted,
		})
		pushed[rec.EntityType+"/"+rec.EntityID] = rec.Payload
	}

	var res *transport.SyncResult
	backoff := retry.WithMaxRetries(a.maxRetries, retry.NewExponential(a.baseBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var callErr error
		res, callErr = a.caller.Sync(ctx, a.deviceID, req)
		if errors.Is(callErr, common.ErrNetwork) {
			return retry.RetryableError(callErr)
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}

	// Accepted pushes: adopt the regenerated token. The payload match inside
	// ClearDirty keeps records edited mid-round in the dirty set.
	for _, ap := range res.Applied {
		snapshot := pushed[ap.EntityType+"/"+ap.EntityID]
		if err := a.records.ClearDirty(ctx, ap.EntityType, ap.EntityID, snapshot, ap.NewToken); err != nil {
			return nil, err
		}
	}

	// Pulled changes: overwrite clean local state; a dirty record keeps its
	// pending edit and will be judged by the guard on the next push.
	for _, ch := range res.ServerChanges {
		local, err := a.records.Get(ctx, ch.EntityType, ch.EntityID)
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		if local != nil && local.Dirty {
			continue
		}
		err = a.records.Overwrite(ctx, &models.LocalRecord{
			EntityType: ch.EntityType,
			EntityID:   ch.EntityID,
			Payload:    ch.Payload,
			Token:      ch.Token,
			Deleted:    ch.Deleted,
		})
		if err != nil {
			return nil, err
		}
	}

	// Lost conflicts: the server state replaces the local edit outright; the
	// losing payload survives in the server-side backup referenced here.
	for _, cf := range res.Conflicts {
		err := a.records.Overwrite(ctx, &models.LocalRecord{
			EntityType: cf.EntityType,
			EntityID:   cf.EntityID,
			Payload:    cf.ServerPayload,
			Token:      cf.ServerToken,
			Deleted:    cf.ServerDeleted,
		})
		if err != nil {
			return nil, err
		}

		n := &models.Notification{
			EntityType: cf.EntityType,
			EntityID:   cf.EntityID,
			Message:    fmt.Sprintf("local edit lost a sync conflict (%s) and was replaced by the server version", cf.Reason),
			BackupID:   cf.ConflictBackupID,
		}
		if err := a.notifications.Add(ctx, n); err != nil {
			return nil, err
		}
	}

	if err := a.saveWatermark(ctx, res.NewWatermark); err != nil {
		return nil, err
	}

	a.log.Info(ctx, "sync round completed",
		"pushed", len(req.Records),
		"applied", len(res.Applied),
		"conflicts", len(res.Conflicts),
		"pulled", len(res.ServerChanges),
		"watermark", res.NewWatermark)

	return res, nil
}

// Run syncs on a fixed interval until the context is cancelled. Failed rounds
// are logged and retried on the next tick.
func (a *Agent) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Sync(ctx); err != nil {
				a.log.Error(ctx, "sync round failed", "error", err.Error())
			}
		}
	}
}
