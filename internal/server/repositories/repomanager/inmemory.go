package repomanager

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fieldlabs/hydrosync/internal/common"
	"github.com/fieldlabs/hydrosync/internal/dbx"
	"github.com/fieldlabs/hydrosync/internal/server/models"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/audit"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/conflicts"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/ledger"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/parameters"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/results"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/samples"
)

// MemoryRepositoryManager is an in-memory RepositoryManager with the same
// compare-and-set and archival semantics as the PostgreSQL implementation.
// It backs service-level tests; the DBTX arguments are ignored.
type MemoryRepositoryManager struct {
	mu      sync.Mutex
	seq     int64
	records map[models.EntityType]map[string]*models.VersionedRecord
	backups []*models.ConflictBackup
	hot     []*models.AuditEntry
	cold    []*models.AuditEntry
	ledgers map[string]*models.SyncLedgerEntry
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		records: map[models.EntityType]map[string]*models.VersionedRecord{
			models.EntitySample:     {},
			models.EntityTestResult: {},
			models.EntityParameter:  {},
		},
		ledgers: map[string]*models.SyncLedgerEntry{},
	}
}

func (m *MemoryRepositoryManager) Samples(db dbx.DBTX) samples.Repository {
	return &memStore{m: m, et: models.EntitySample}
}

func (m *MemoryRepositoryManager) Results(db dbx.DBTX) results.Repository {
	return &memResultStore{memStore{m: m, et: models.EntityTestResult}}
}

func (m *MemoryRepositoryManager) Parameters(db dbx.DBTX) parameters.Repository {
	return &memStore{m: m, et: models.EntityParameter}
}

func (m *MemoryRepositoryManager) Conflicts(db dbx.DBTX) conflicts.Repository {
	return &memConflicts{m: m}
}

func (m *MemoryRepositoryManager) Audit(db dbx.DBTX) audit.Repository {
	return &memAudit{m: m}
}

func (m *MemoryRepositoryManager) Ledger(db dbx.DBTX) ledger.Repository {
	return &memLedger{m: m}
}

func (m *MemoryRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return nil
}

// ArchiveSizes reports (hot, cold) audit row counts for assertions.
func (m *MemoryRepositoryManager) ArchiveSizes() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hot), len(m.cold)
}

func isSubmittedResult(et models.EntityType, payload json.RawMessage) bool {
	if et != models.EntityTestResult {
		return false
	}
	var probe struct {
		Status models.ResultStatus `json:"status"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	return probe.Status == models.ResultSubmitted
}

type memStore struct {
	m  *MemoryRepositoryManager
	et models.EntityType
}

func (s *memStore) snapshot(rec *models.VersionedRecord) *models.VersionedRecord {
	cp := *rec
	cp.Payload = append(json.RawMessage(nil), rec.Payload...)
	cp.Immutable = isSubmittedResult(s.et, rec.Payload)
	return &cp
}

func (s *memStore) Get(ctx context.Context, id string) (*models.VersionedRecord, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	rec, ok := s.m.records[s.et][id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return s.snapshot(rec), nil
}

func (s *memStore) Insert(ctx context.Context, rec *models.VersionedRecord) (*models.VersionedRecord, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.seq++
	stored := &models.VersionedRecord{
		EntityType: s.et,
		EntityID:   rec.EntityID,
		LabID:      rec.LabID,
		Payload:    append(json.RawMessage(nil), rec.Payload...),
		Token:      1,
		ServerSeq:  s.m.seq,
		Deleted:    rec.Deleted,
		UpdatedAt:  time.Now().UTC(),
		UpdatedBy:  rec.UpdatedBy,
	}
	s.m.records[s.et][rec.EntityID] = stored
	return s.snapshot(stored), nil
}

func (s *memStore) CompareAndSwap(ctx context.Context, rec *models.VersionedRecord, presented int64) (*models.VersionedRecord, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	current, ok := s.m.records[s.et][rec.EntityID]
	if !ok || current.Token != presented || isSubmittedResult(s.et, current.Payload) {
		return nil, common.ErrVersionConflict
	}
	s.m.seq++
	stored := &models.VersionedRecord{
		EntityType: s.et,
		EntityID:   rec.EntityID,
		LabID:      current.LabID,
		Payload:    append(json.RawMessage(nil), rec.Payload...),
		Token:      presented + 1,
		ServerSeq:  s.m.seq,
		Deleted:    rec.Deleted,
		UpdatedAt:  time.Now().UTC(),
		UpdatedBy:  rec.UpdatedBy,
	}
	s.m.records[s.et][rec.EntityID] = stored
	return s.snapshot(stored), nil
}

func (s *memStore) ChangedSince(ctx context.Context, labID string, afterSeq int64) ([]*models.VersionedRecord, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []*models.VersionedRecord
	for _, rec := range s.m.records[s.et] {
		if rec.LabID == labID && rec.ServerSeq > afterSeq {
			out = append(out, s.snapshot(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServerSeq < out[j].ServerSeq })
	return out, nil
}

type memResultStore struct {
	memStore
}

func (s *memResultStore) Void(ctx context.Context, id, replacementID, actor string) (*models.VersionedRecord, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	current, ok := s.m.records[s.et][id]
	if !ok || !isSubmittedResult(s.et, current.Payload) {
		return nil, common.ErrNotFound
	}

	var tr models.TestResult
	if err := json.Unmarshal(current.Payload, &tr); err != nil {
		return nil, err
	}
	tr.Status = models.ResultVoided
	tr.SupersededBy = replacementID
	payload, err := json.Marshal(&tr)
	if err != nil {
		return nil, err
	}

	s.m.seq++
	stored := &models.VersionedRecord{
		EntityType: s.et,
		EntityID:   id,
		LabID:      current.LabID,
		Payload:    payload,
		Token:      current.Token + 1,
		ServerSeq:  s.m.seq,
		UpdatedAt:  time.Now().UTC(),
		UpdatedBy:  actor,
	}
	s.m.records[s.et][id] = stored
	return s.snapshot(stored), nil
}

type memConflicts struct {
	m *MemoryRepositoryManager
}

func (c *memConflicts) Create(ctx context.Context, b *models.ConflictBackup) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	cp := *b
	c.m.backups = append(c.m.backups, &cp)
	return nil
}

func (c *memConflicts) GetByID(ctx context.Context, id string) (*models.ConflictBackup, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	for _, b := range c.m.backups {
		if b.ID == id {
			cp := *b
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (c *memConflicts) List(ctx context.Context, f conflicts.ListFilter) ([]*models.ConflictBackup, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	var out []*models.ConflictBackup
	for _, b := range c.m.backups {
		if f.LabID != "" && b.LabID != f.LabID {
			continue
		}
		if f.DeviceID != "" && b.DeviceID != f.DeviceID {
			continue
		}
		if f.From != nil && b.DetectedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !b.DetectedAt.Before(*f.To) {
			continue
		}
		if f.Resolved != nil && *f.Resolved != (b.ResolvedAt != nil) {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.After(out[j].DetectedAt) })
	return out, nil
}

type memAudit struct {
	m *MemoryRepositoryManager
}

func (a *memAudit) Insert(ctx context.Context, e *models.AuditEntry) error {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	cp := *e
	a.m.hot = append(a.m.hot, &cp)
	return nil
}

func (a *memAudit) ListByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.AuditEntry, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	var out []*models.AuditEntry
	for _, e := range a.m.hot {
		if e.EntityType == entityType && e.EntityID == entityID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

func (a *memAudit) SelectArchivableIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	eligible := make([]*models.AuditEntry, 0)
	for _, e := range a.m.hot {
		if e.RecordedAt.Before(cutoff) {
			eligible = append(eligible, e)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].RecordedAt.Equal(eligible[j].RecordedAt) {
			return eligible[i].ID < eligible[j].ID
		}
		return eligible[i].RecordedAt.Before(eligible[j].RecordedAt)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	ids := make([]string, len(eligible))
	for i, e := range eligible {
		ids[i] = e.ID
	}
	return ids, nil
}

func (a *memAudit) CopyToArchive(ctx context.Context, ids []string) (int64, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	archived := map[string]struct{}{}
	for _, e := range a.m.cold {
		archived[e.ID] = struct{}{}
	}
	want := map[string]struct{}{}
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var n int64
	for _, e := range a.m.hot {
		if _, ok := want[e.ID]; !ok {
			continue
		}
		if _, dup := archived[e.ID]; dup {
			continue
		}
		cp := *e
		a.m.cold = append(a.m.cold, &cp)
		n++
	}
	return n, nil
}

func (a *memAudit) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	a.m.mu.Lock()
	defer a.m.mu.Unlock()
	want := map[string]struct{}{}
	for _, id := range ids {
		want[id] = struct{}{}
	}
	kept := a.m.hot[:0]
	var n int64
	for _, e := range a.m.hot {
		if _, ok := want[e.ID]; ok {
			n++
			continue
		}
		kept = append(kept, e)
	}
	a.m.hot = kept
	return n, nil
}

type memLedger struct {
	m *MemoryRepositoryManager
}

func ledgerKey(deviceID, userID string) string {
	return strings.Join([]string{deviceID, userID}, "/")
}

func (l *memLedger) Upsert(ctx context.Context, e *models.SyncLedgerEntry) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	cp := *e
	cp.UpdatedAt = time.Now().UTC()
	l.m.ledgers[ledgerKey(e.DeviceID, e.UserID)] = &cp
	return nil
}

func (l *memLedger) Get(ctx context.Context, deviceID, userID string) (*models.SyncLedgerEntry, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	e, ok := l.m.ledgers[ledgerKey(deviceID, userID)]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *e
	return &cp, nil
}
