package archiver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/fieldlabs/hydrosync/internal/logging"
	"github.com/fieldlabs/hydrosync/internal/server/models"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSink struct {
	batches []int64
}

func (s *countingSink) RecordBatch(copied, deleted int64, took time.Duration) {
	s.batches = append(s.batches, deleted)
}

func seedHot(t *testing.T, rm *repomanager.MemoryRepositoryManager, n int, recordedAt time.Time) {
	t.Helper()
	repo := rm.Audit(nil)
	for i := 0; i < n; i++ {
		err := repo.Insert(context.Background(), &models.AuditEntry{
			ID:         fmt.Sprintf("a%05d", i),
			EntityType: models.EntitySample,
			EntityID:   fmt.Sprintf("s%d", i),
			Action:     models.ActionUpdate,
			RecordedAt: recordedAt,
		})
		require.NoError(t, err)
	}
}

func newArchiver(rm *repomanager.MemoryRepositoryManager, opts Options, sink Sink) *Archiver {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	return New(nil, rm, opts, sink, log)
}

func TestRunOnce_MovesAgedRowsInBatches(t *testing.T) {
	rm := repomanager.NewMemoryRepositoryManager()
	old := time.Now().UTC().AddDate(0, 0, -120)
	seedHot(t, rm, 5000, old)

	sink := &countingSink{}
	a := newArchiver(rm, Options{BatchSize: 1000}, sink)

	batches, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, batches)

	hot, cold := rm.ArchiveSizes()
	assert.Equal(t, 0, hot, "no eligible hot rows may remain")
	assert.Equal(t, 5000, cold)
	assert.Equal(t, []int64{1000, 1000, 1000, 1000, 1000}, sink.batches)
}

func TestRunOnce_SecondRunIsNoop(t *testing.T) {
	rm := repomanager.NewMemoryRepositoryManager()
	seedHot(t, rm, 250, time.Now().UTC().AddDate(0, 0, -91))

	a := newArchiver(rm, Options{BatchSize: 100}, nil)

	batches, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, batches)

	batches, err = a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, batches, "second consecutive run must be a no-op")

	hot, cold := rm.ArchiveSizes()
	assert.Equal(t, 0, hot)
	assert.Equal(t, 250, cold)
}

func TestRunOnce_KeepsRowsInsideRetention(t *testing.T) {
	rm := repomanager.NewMemoryRepositoryManager()
	seedHot(t, rm, 10, time.Now().UTC().AddDate(0, 0, -10))

	a := newArchiver(rm, Options{}, nil)

	batches, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, batches)

	hot, cold := rm.ArchiveSizes()
	assert.Equal(t, 10, hot, "recent rows stay hot")
	assert.Equal(t, 0, cold)
}
