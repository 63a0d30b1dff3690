package audittrail

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/fieldlabs/hydrosync/internal/logging"
	"github.com/fieldlabs/hydrosync/internal/server/models"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memOverflow struct {
	objects map[string][]byte
}

func (m *memOverflow) Put(ctx context.Context, key string, data []byte) error {
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return nil
}

func newManager(t *testing.T, overflow OverflowStore, maxBytes int) (*Manager, *repomanager.MemoryRepositoryManager) {
	t.Helper()
	rm := repomanager.NewMemoryRepositoryManager()
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	return NewManager(rm, overflow, maxBytes, log), rm
}

func TestRecord_FillsDefaultsAndChangedFields(t *testing.T) {
	m, rm := newManager(t, nil, 0)
	ctx := context.Background()

	e := &models.AuditEntry{
		Actor:      "anna",
		EntityType: models.EntitySample,
		EntityID:   "s1",
		Action:     models.ActionUpdate,
		OldValue:   json.RawMessage(`{"status":"collected","collected_by":"anna"}`),
		NewValue:   json.RawMessage(`{"status":"received","collected_by":"anna"}`),
	}
	require.NoError(t, m.Record(ctx, nil, e))

	assert.NotEmpty(t, e.ID)
	assert.False(t, e.RecordedAt.IsZero())
	assert.Equal(t, "status", e.ChangedFields)

	entries, err := rm.Audit(nil).ListByEntity(ctx, models.EntitySample, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRecord_ChangedFieldsCoversAddedAndRemovedKeys(t *testing.T) {
	m, _ := newManager(t, nil, 0)

	e := &models.AuditEntry{
		EntityType: models.EntitySample,
		EntityID:   "s1",
		Action:     models.ActionUpdate,
		OldValue:   json.RawMessage(`{"a":1,"b":2}`),
		NewValue:   json.RawMessage(`{"b":3,"c":4}`),
	}
	require.NoError(t, m.Record(context.Background(), nil, e))
	assert.Equal(t, "a,b,c", e.ChangedFields)
}

func TestRecord_OversizedPayloadSpillsToOverflow(t *testing.T) {
	overflow := &memOverflow{}
	m, _ := newManager(t, overflow, 64)

	big := `{"big":"` + strings.Repeat("x", 200) + `"}`
	e := &models.AuditEntry{
		EntityType: models.EntityTestResult,
		EntityID:   "r1",
		Action:     models.ActionCreate,
		NewValue:   json.RawMessage(big),
	}
	require.NoError(t, m.Record(context.Background(), nil, e))

	assert.True(t, e.Truncated)
	require.NotEmpty(t, e.OverflowKey)
	assert.True(t, strings.HasPrefix(e.OverflowKey, "audit/"))

	stored, ok := overflow.objects[e.OverflowKey]
	require.True(t, ok, "full payload must be in the overflow store")
	assert.Contains(t, string(stored), strings.Repeat("x", 200))

	// Inline value replaced by a stub, never rejected.
	assert.Contains(t, string(e.NewValue), `"_truncated":true`)
}

func TestRecord_NotifiesHooks(t *testing.T) {
	m, _ := newManager(t, nil, 0)

	var seen []string
	m.Subscribe(func(e *models.AuditEntry) {
		seen = append(seen, e.EntityID)
	})

	e := &models.AuditEntry{
		EntityType: models.EntitySample,
		EntityID:   "s9",
		Action:     models.ActionCreate,
		NewValue:   json.RawMessage(`{"status":"collected"}`),
	}
	require.NoError(t, m.Record(context.Background(), nil, e))
	assert.Equal(t, []string{"s9"}, seen)
}
