// Package syncsvc orchestrates the bidirectional sync protocol: the push
// phase applies each incoming record through the concurrency guard (handing
// rejections to the resolver), the pull phase exports everything the caller's
// lab changed since its watermark. Every record is processed in its own
// transaction, so a mid-batch failure needs no rollback choreography —
// already-applied records replay as no-ops because their token now matches.
package syncsvc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/fieldlabs/hydrosync/internal/common"
	"github.com/fieldlabs/hydrosync/internal/dbx"
	"github.com/fieldlabs/hydrosync/internal/logging"
	"github.com/fieldlabs/hydrosync/internal/server/audittrail"
	"github.com/fieldlabs/hydrosync/internal/server/auth"
	"github.com/fieldlabs/hydrosync/internal/server/guard"
	"github.com/fieldlabs/hydrosync/internal/server/models"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/repomanager"
	"github.com/fieldlabs/hydrosync/internal/server/resolve"
)

// Store is the syncable-repository surface the coordinator routes records
// through. All three entity repositories satisfy it.
type Store interface {
	Get(ctx context.Context, id string) (*models.VersionedRecord, error)
	Insert(ctx context.Context, rec *models.VersionedRecord) (*models.VersionedRecord, error)
	CompareAndSwap(ctx context.Context, rec *models.VersionedRecord, presented int64) (*models.VersionedRecord, error)
	ChangedSince(ctx context.Context, labID string, afterSeq int64) ([]*models.VersionedRecord, error)
}

// PushRecord is one client-side edit presented for application.
type PushRecord struct {
	EntityType     models.EntityType `json:"entity_type"`
	EntityID       string            `json:"entity_id"`
	Payload        json.RawMessage   `json:"payload"`
	PresentedToken int64             `json:"presented_token"`
	Deleted        bool              `json:"deleted"`
}

// AppliedRecord confirms an accepted record and carries the regenerated
// token so the device converges without an echo pull.
type AppliedRecord struct {
	EntityType models.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	NewToken   int64             `json:"new_token"`
}

// ConflictReport is the per-record outcome of a rejected write.
type ConflictReport struct {
	EntityType       models.EntityType `json:"entity_type"`
	EntityID         string            `json:"entity_id"`
	ServerPayload    json.RawMessage   `json:"server_payload"`
	ServerToken      int64             `json:"server_token"`
	ServerDeleted    bool              `json:"server_deleted"`
	ConflictBackupID string            `json:"conflict_backup_id"`
	// Reason is "version-conflict" or "immutable-record".
	Reason string `json:"reason"`
}

// RejectedRecord reports a record refused before reaching the guard
// (unknown entity type, cross-lab write, malformed payload).
type RejectedRecord struct {
	EntityType models.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Reason     string            `json:"reason"`
}

// Request is one sync call from a device.
type Request struct {
	DeviceID      string
	Origin        string
	LastWatermark int64
	Records       []PushRecord
}

// Result is the per-call outcome returned to the device.
type Result struct {
	NewWatermark  int64                     `json:"new_watermark"`
	Applied       []AppliedRecord           `json:"applied"`
	Conflicts     []ConflictReport          `json:"conflicts"`
	Rejected      []RejectedRecord          `json:"rejected,omitempty"`
	ServerChanges []*models.VersionedRecord `json:"server_changes"`
}

type Coordinator struct {
	db       *sql.DB
	rm       repomanager.RepositoryManager
	guard    *guard.Guard
	resolver *resolve.Resolver
	trail    *audittrail.Manager
	log      logging.Logger

	runTx func(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error
}

// NewCoordinator wires the sync pipeline. A nil db runs record applications
// without a wrapping transaction, which the in-memory repository manager
// relies on in tests.
func NewCoordinator(db *sql.DB, rm repomanager.RepositoryManager, g *guard.Guard,
	r *resolve.Resolver, trail *audittrail.Manager, log logging.Logger) *Coordinator {

	runTx := func(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
		return fn(ctx, nil)
	}
	if db != nil {
		runTx = func(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
			return dbx.WithTx(ctx, db, nil, fn)
		}
	}

	return &Coordinator{
		db:       db,
		rm:       rm,
		guard:    g,
		resolver: r,
		trail:    trail,
		log:      log.With("module", "sync_coordinator"),
		runTx:    runTx,
	}
}

func (c *Coordinator) store(tx dbx.DBTX, et models.EntityType) (Store, error) {
	switch et {
	case models.EntitySample:
		return c.rm.Samples(tx), nil
	case models.EntityTestResult:
		return c.rm.Results(tx), nil
	case models.EntityParameter:
		return c.rm.Parameters(tx), nil
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownEntityType, et)
	}
}

// Sync runs one push/pull round for a device. Guard and resolver outcomes are
// reported per record inside the result; only infrastructure failures return
// an error, and records already applied before such a failure stay applied.
func (c *Coordinator) Sync(ctx context.Context, scope auth.Scope, req Request) (*Result, error) {
	res := &Result{NewWatermark: req.LastWatermark}

	// (entityType, entityID) → token this round already reported back, either
	// as an accepted push or inside a conflict report, for echo suppression.
	reportedTokens := map[string]int64{}
	resolved := 0

	for _, pr := range req.Records {
		outcome, err := c.applyOne(ctx, scope, req, pr)
		if err != nil {
			c.writeLedger(ctx, scope, req.DeviceID, res, resolved, err)
			return nil, fmt.Errorf("sync push failed on %s %s: %w", pr.EntityType, pr.EntityID, err)
		}

		switch {
		case outcome.applied != nil:
			res.Applied = append(res.Applied, *outcome.applied)
			reportedTokens[recordKey(pr.EntityType, pr.EntityID)] = outcome.applied.NewToken
			if outcome.seq > res.NewWatermark {
				res.NewWatermark = outcome.seq
			}
		case outcome.conflict != nil:
			res.Conflicts = append(res.Conflicts, *outcome.conflict)
			reportedTokens[recordKey(pr.EntityType, pr.EntityID)] = outcome.conflict.ServerToken
			resolved++
		case outcome.rejected != nil:
			res.Rejected = append(res.Rejected, *outcome.rejected)
		}
	}

	if err := c.pull(ctx, scope, req.LastWatermark, reportedTokens, res); err != nil {
		c.writeLedger(ctx, scope, req.DeviceID, res, resolved, err)
		return nil, err
	}

	c.writeLedger(ctx, scope, req.DeviceID, res, resolved, nil)

	c.log.Info(ctx, "sync completed",
		"device_id", req.DeviceID,
		"user_id", scope.UserID,
		"applied", len(res.Applied),
		"conflicts", len(res.Conflicts),
		"pulled", len(res.ServerChanges),
		"watermark", res.NewWatermark)

	return res, nil
}

type recordOutcome struct {
	applied  *AppliedRecord
	conflict *ConflictReport
	rejected *RejectedRecord
	seq      int64
}

func recordKey(et models.EntityType, id string) string {
	return string(et) + "/" + id
}

// applyOne processes a single pushed record in its own atomic unit.
func (c *Coordinator) applyOne(ctx context.Context, scope auth.Scope, req Request, pr PushRecord) (*recordOutcome, error) {
	out := &recordOutcome{}

	err := c.runTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		store, err := c.store(tx, pr.EntityType)
		if err != nil {
			out.rejected = &RejectedRecord{EntityType: pr.EntityType, EntityID: pr.EntityID, Reason: err.Error()}
			return nil
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
		if errors.Is(err, common.ErrNotFound) {
			return c.insertFresh(ctx, tx, store, scope, req, rec, out)
		}
		if err != nil {
			return err
		}

		if current.LabID != scope.LabID {
			out.rejected = &RejectedRecord{EntityType: pr.EntityType, EntityID: pr.EntityID, Reason: "record belongs to another lab"}
			return nil
		}

		// Idempotent replay: the server already holds exactly this state.
		// Covers a re-push after a lost response (the presented token is then
		// one behind the stored one) and replays of immutable records. No new
		// token, no backup, no duplicate audit entry.
		if current.Deleted == pr.Deleted && jsonEqual(current.Payload, pr.Payload) {
			out.applied = &AppliedRecord{EntityType: pr.EntityType, EntityID: pr.EntityID, NewToken: current.Token}
			out.seq = current.ServerSeq
			return nil
		}

		if current.Token == pr.PresentedToken {
			applied, err := c.guard.Apply(ctx, store, rec, pr.PresentedToken)
			if err == nil {
				return c.auditAccepted(ctx, tx, scope, req, current, applied, out)
			}
			var ce *guard.ConflictError
			if !errors.As(err, &ce) {
				return err
			}
			// Raced with a concurrent write, or the row is immutable: same
			// path as a stale token.
			return c.resolveConflict(ctx, tx, scope, req, rec, pr, ce.Current, ce.Reason, out)
		}

		reason := common.ErrVersionConflict
		if current.Immutable {
			reason = common.ErrImmutableRecord
		}
		return c.resolveConflict(ctx, tx, scope, req, rec, pr, current, reason, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Coordinator) insertFresh(ctx context.Context, tx dbx.DBTX, store Store, scope auth.Scope,
	req Request, rec *models.VersionedRecord, out *recordOutcome) error {

	applied, err := store.Insert(ctx, rec)
	if err != nil {
		if errors.Is(err, common.ErrValidation) {
			out.rejected = &RejectedRecord{EntityType: rec.EntityType, EntityID: rec.EntityID, Reason: err.Error()}
			return nil
		}
		return err
	}

	err = c.trail.Record(ctx, tx, &models.AuditEntry{
		Actor:      scope.UserID,
		EntityType: applied.EntityType,
		EntityID:   applied.EntityID,
		Action:     models.ActionCreate,
		NewValue:   applied.Payload,
		OriginAddr: req.Origin,
	})
	if err != nil {
		return err
	}

	out.applied = &AppliedRecord{EntityType: applied.EntityType, EntityID: applied.EntityID, NewToken: applied.Token}
	out.seq = applied.ServerSeq
	return nil
}

func (c *Coordinator) auditAccepted(ctx context.Context, tx dbx.DBTX, scope auth.Scope, req Request,
	before, after *models.VersionedRecord, out *recordOutcome) error {

	action := models.ActionUpdate
	if after.Deleted && !before.Deleted {
		action = models.ActionDelete
	}

	err := c.trail.Record(ctx, tx, &models.AuditEntry{
		Actor:      scope.UserID,
		EntityType: after.EntityType,
		EntityID:   after.EntityID,
		Action:     action,
		OldValue:   before.Payload,
		NewValue:   after.Payload,
		OriginAddr: req.Origin,
	})
	if err != nil {
		return err
	}

	out.applied = &AppliedRecord{EntityType: after.EntityType, EntityID: after.EntityID, NewToken: after.Token}
	out.seq = after.ServerSeq
	return nil
}

func (c *Coordinator) resolveConflict(ctx context.Context, tx dbx.DBTX, scope auth.Scope, req Request,
	client *models.VersionedRecord, pr PushRecord, server *models.VersionedRecord,
	reason error, out *recordOutcome) error {

	client.Token = pr.PresentedToken

	backup, err := c.resolver.Resolve(ctx, c.rm.Conflicts(tx), resolve.Conflict{
		DeviceID: req.DeviceID,
		Actor:    scope.UserID,
		Client:   client,
		Server:   server,
		Reason:   reason,
	})
	if err != nil {
		return err
	}

	// The server state won; the audit entry records the resolution and links
	// the backup holding the losing payload.
	err = c.trail.Record(ctx, tx, &models.AuditEntry{
		Actor:            scope.UserID,
		EntityType:       server.EntityType,
		EntityID:         server.EntityID,
		Action:           models.ActionUpdate,
		OldValue:         server.Payload,
		NewValue:         server.Payload,
		ConflictBackupID: backup.ID,
		OriginAddr:       req.Origin,
	})
	if err != nil {
		return err
	}

	reasonName := "version-conflict"
	if errors.Is(reason, common.ErrImmutableRecord) {
		reasonName = "immutable-record"
	}
	out.conflict = &ConflictReport{
		EntityType:       server.EntityType,
		EntityID:         server.EntityID,
		ServerPayload:    server.Payload,
		ServerToken:      server.Token,
		ServerDeleted:    server.Deleted,
		ConflictBackupID: backup.ID,
		Reason:           reasonName,
	}
	return nil
}

// pull collects everything visible to the caller's lab changed after the
// watermark, suppressing records the push phase already reported back, as an
// accepted write or as a conflict carrying the server state. The watermark
// still advances over suppressed rows.
func (c *Coordinator) pull(ctx context.Context, scope auth.Scope, afterSeq int64,
	reportedTokens map[string]int64, res *Result) error {

	for _, et := range []models.EntityType{models.EntitySample, models.EntityTestResult, models.EntityParameter} {
		store, err := c.store(c.db, et)
		if err != nil {
			return err
		}
		changes, err := store.ChangedSince(ctx, scope.LabID, afterSeq)
		if err != nil {
			return fmt.Errorf("sync pull failed: %w", err)
		}
		for _, rec := range changes {
			if rec.ServerSeq > res.NewWatermark {
				res.NewWatermark = rec.ServerSeq
			}
			if tok, ok := reportedTokens[recordKey(rec.EntityType, rec.EntityID)]; ok && tok == rec.Token {
				continue // already reported in this round's push phase
			}
			res.ServerChanges = append(res.ServerChanges, rec)
		}
	}
	return nil
}

func (c *Coordinator) writeLedger(ctx context.Context, scope auth.Scope, deviceID string,
	res *Result, resolved int, syncErr error) {

	entry := &models.SyncLedgerEntry{
		DeviceID:      deviceID,
		UserID:        scope.UserID,
		Watermark:     res.NewWatermark,
		Status:        "ok",
		AppliedCount:  len(res.Applied),
		ConflictCount: len(res.Conflicts),
		ResolvedCount: resolved,
	}
	if syncErr != nil {
		entry.Status = "failed"
		entry.LastError = syncErr.Error()
	}

	if err := c.rm.Ledger(c.db).Upsert(ctx, entry); err != nil {
		c.log.Error(ctx, "failed to update sync ledger",
			"device_id", deviceID, "user_id", scope.UserID, "error", err.Error())
	}
}

// jsonEqual compares two JSON documents structurally.
func jsonEqual(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
