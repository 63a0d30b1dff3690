// Package audittrail builds and persists the immutable audit entry every
// accepted mutation produces, direct edits and sync/resolver outcomes alike.
// Entries are written in the same transactional scope as the mutation that
// triggered them, so a rolled-back write never leaves a stray audit row.
package audittrail

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/fieldlabs/hydrosync/internal/dbx"
	"github.com/fieldlabs/hydrosync/internal/logging"
	"github.com/fieldlabs/hydrosync/internal/server/models"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// OverflowStore receives full payloads that do not fit the hot audit table.
type OverflowStore interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Hook is notified after an audit entry has been written. Downstream
// reporting and compliance tooling register here.
type Hook func(e *models.AuditEntry)

type Manager struct {
	rm       repomanager.RepositoryManager
	overflow OverflowStore
	maxBytes int
	hooks    []Hook
	log      logging.Logger
	now      func() time.Time
	newID    func() string
}

// NewManager builds a Manager. maxBytes bounds the combined size of the
// old/new snapshots stored inline; larger payloads are moved to the overflow
// store. overflow may be nil, in which case oversized snapshots are replaced
// by a stub without a pointer.
func NewManager(rm repomanager.RepositoryManager, overflow OverflowStore, maxBytes int, log logging.Logger) *Manager {
	return &Manager{
		rm:       rm,
		overflow: overflow,
		maxBytes: maxBytes,
		log:      log.With("module", "audit_trail"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Subscribe registers a hook invoked after every recorded mutation.
// Not safe for concurrent use with Record; register hooks during wiring.
func (m *Manager) Subscribe(h Hook) {
	m.hooks = append(m.hooks, h)
}

// Record completes and persists one audit entry using the given DBTX, which
// callers pass as the transaction the triggering mutation runs in.
func (m *Manager) Record(ctx context.Context, db dbx.DBTX, e *models.AuditEntry) error {
	if e.ID == "" {
		e.ID = m.newID()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = m.now().UTC()
	}
	if e.ChangedFields == "" {
		e.ChangedFields = changedFields(e.OldValue, e.NewValue)
	}

	if m.maxBytes > 0 && len(e.OldValue)+len(e.NewValue) > m.maxBytes {
		if err := m.spill(ctx, e); err != nil {
			return err
		}
	}

	if err := m.rm.Audit(db).Insert(ctx, e); err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	for _, h := range m.hooks {
		h(e)
	}
	return nil
}

// spill moves the full snapshots to the overflow store and replaces the
// inline values with stubs. The payload is never rejected for size.
func (m *Manager) spill(ctx context.Context, e *models.AuditEntry) error {
	full, err := json.Marshal(map[string]json.RawMessage{
		"old": nonEmpty(e.OldValue),
		"new": nonEmpty(e.NewValue),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal overflow payload: %w", err)
	}

	e.Truncated = true
	if m.overflow != nil {
		key := overflowKey(m.now().UTC(), e.ID)
		if err := m.overflow.Put(ctx, key, full); err != nil {
			return fmt.Errorf("failed to store overflow payload: %w", err)
		}
		e.OverflowKey = key
	} else {
		m.log.Warn(ctx, "oversized audit payload dropped, no overflow store configured",
			"entity_type", e.EntityType, "entity_id", e.EntityID, "bytes", len(full))
	}

	e.OldValue = truncStub(e.OldValue)
	e.NewValue = truncStub(e.NewValue)
	return nil
}

func nonEmpty(v json.RawMessage) json.RawMessage {
	if len(v) == 0 {
		return json.RawMessage("null")
	}
	return v
}

func truncStub(v json.RawMessage) json.RawMessage {
	if len(v) == 0 {
		return v
	}
	return json.RawMessage(fmt.Sprintf(`{"_truncated":true,"bytes":%d}`, len(v)))
}

// overflowKey places overflow objects under a date-partitioned prefix.
func overflowKey(t time.Time, entryID string) string {
	return fmt.Sprintf("audit/%d/%02d/%02d/%s", t.Year(), t.Month(), t.Day(), entryID)
}

// changedFields summarizes the top-level JSON keys whose values differ
// between the snapshots. Non-JSON snapshots yield an empty summary.
func changedFields(oldV, newV json.RawMessage) string {
	var oldM, newM map[string]any
	if len(oldV) > 0 {
		if err := json.Unmarshal(oldV, &oldM); err != nil {
			return ""
		}
	}
	if len(newV) > 0 {
		if err := json.Unmarshal(newV, &newM); err != nil {
			return ""
		}
	}

	set := map[string]struct{}{}
	for k, v := range newM {
		if ov, ok := oldM[k]; !ok || !reflect.DeepEqual(ov, v) {
			set[k] = struct{}{}
		}
	}
	for k := range oldM {
		if _, ok := newM[k]; !ok {
			set[k] = struct{}{}
		}
	}

	fields := make([]string, 0, len(set))
	for k := range set {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return strings.Join(fields, ",")
}
