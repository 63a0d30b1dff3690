package agent

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/fieldlabs/hydrosync/internal/client/client"
	"github.com/fieldlabs/hydrosync/internal/client/repositories/metadata"
	"github.com/fieldlabs/hydrosync/internal/client/repositories/notifications"
	"github.com/fieldlabs/hydrosync/internal/client/repositories/records"
	"github.com/fieldlabs/hydrosync/internal/client/transport"
	"github.com/fieldlabs/hydrosync/internal/common"
	"github.com/fieldlabs/hydrosync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

type fakeCaller struct {
	requests []*transport.SyncRequest
	results  []*transport.SyncResult
	errs     []error
	calls    int
}

func (f *fakeCaller) Sync(ctx context.Context, deviceID string, req *transport.SyncRequest) (*transport.SyncResult, error) {
	f.requests = append(f.requests, req)
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return &transport.SyncResult{NewWatermark: req.LastWatermark}, nil
}

func setupAgent(t *testing.T, caller transport.Caller) *Agent {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, client.RunMigrations(context.Background(), db))

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	a := New(records.NewSQLiteRepository(db), metadata.NewSQLiteRepository(db),
		notifications.NewSQLiteRepository(db), caller, "dev-1", log)
	a.baseBackoff = time.Millisecond
	return a
}

func TestSync_DirtySetCollapsesToOnePush(t *testing.T) {
	fc := &fakeCaller{results: []*transport.SyncResult{{
		NewWatermark: 1,
		Applied:      []transport.AppliedRecord{{EntityType: "sample", EntityID: "s-1", NewToken: 1}},
	}}}
	a := setupAgent(t, fc)
	ctx := context.Background()

	require.NoError(t, a.RecordEdit(ctx, "sample", "s-1", []byte(`{"status":"collected"}`)))
	require.NoError(t, a.RecordEdit(ctx, "sample", "s-1", []byte(`{"status":"in_transit"}`)))

	_, err := a.Sync(ctx)
	require.NoError(t, err)

	require.Len(t, fc.requests, 1)
	require.Len(t, fc.requests[0].Records, 1, "multiple edits collapse into one pending record")
	assert.Equal(t, `{"status":"in_transit"}`, string(fc.requests[0].Records[0].Payload))
	assert.Equal(t, int64(0), fc.requests[0].Records[0].PresentedToken)

	// token adopted, dirty cleared
	rec, err := a.Get(ctx, "sample", "s-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Token)
	assert.False(t, rec.Dirty)
}

func TestSync_ConflictOverwritesLocalAndNotifies(t *testing.T) {
	fc := &fakeCaller{results: []*transport.SyncResult{{
		NewWatermark: 5,
		Conflicts: []transport.ConflictReport{{
			EntityType:       "sample",
			EntityID:         "s-1",
			ServerPayload:    []byte(`{"status":"analyzed"}`),
			ServerToken:      4,
			ConflictBackupID: "backup-1",
			Reason:           "version-conflict",
		}},
	}}}
	a := setupAgent(t, fc)
	ctx := context.Background()

	require.NoError(t, a.RecordEdit(ctx, "sample", "s-1", []byte(`{"status":"received"}`)))

	_, err := a.Sync(ctx)
	require.NoError(t, err)

	rec, err := a.Get(ctx, "sample", "s-1")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"analyzed"}`, string(rec.Payload))
	assert.Equal(t, int64(4), rec.Token)
	assert.False(t, rec.Dirty, "losing edit is replaced outright")

	notes, err := a.Notifications(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "backup-1", notes[0].BackupID)
	assert.Contains(t, notes[0].Message, "version-conflict")

	require.NoError(t, a.MarkNotificationRead(ctx, notes[0].ID))
	notes, err = a.Notifications(ctx)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestSync_PullSkipsDirtyRecords(t *testing.T) {
	fc := &fakeCaller{results: []*transport.SyncResult{{
		NewWatermark: 3,
		ServerChanges: []transport.ServerChange{
			{EntityType: "sample", EntityID: "s-1", Payload: []byte(`{"status":"server"}`), Token: 2, ServerSeq: 2},
			{EntityType: "sample", EntityID: "s-2", Payload: []byte(`{"status":"fresh"}`), Token: 1, ServerSeq: 3},
		},
	}}}
	a := setupAgent(t, fc)
	ctx := context.Background()

	// s-1 has a pending local edit that the round does not resolve
	require.NoError(t, a.RecordEdit(ctx, "sample", "s-1", []byte(`{"status":"local"}`)))

	_, err := a.Sync(ctx)
	require.NoError(t, err)

	s1, err := a.Get(ctx, "sample", "s-1")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"local"}`, string(s1.Payload), "pending edit survives the pull")
	assert.True(t, s1.Dirty)

	s2, err := a.Get(ctx, "sample", "s-2")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"fresh"}`, string(s2.Payload))
	assert.Equal(t, int64(1), s2.Token)
}

func TestSync_RetriesNetworkErrors(t *testing.T) {
	fc := &fakeCaller{
		errs: []error{common.ErrNetwork, common.ErrNetwork, nil},
		results: []*transport.SyncResult{nil, nil, {
			NewWatermark: 1,
		}},
	}
	a := setupAgent(t, fc)

	_, err := a.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, fc.calls)
}

func TestSync_DoesNotRetryAuthFailure(t *testing.T) {
	fc := &fakeCaller{errs: []error{common.ErrUnauthorized}}
	a := setupAgent(t, fc)

	_, err := a.Sync(context.Background())
	require.ErrorIs(t, err, common.ErrUnauthorized)
	assert.Equal(t, 1, fc.calls)
}

func TestSync_WatermarkIsResumable(t *testing.T) {
	fc := &fakeCaller{results: []*transport.SyncResult{
		{NewWatermark: 7},
		{NewWatermark: 7},
	}}
	a := setupAgent(t, fc)
	ctx := context.Background()

	_, err := a.Sync(ctx)
	require.NoError(t, err)

	wm, err := a.Watermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), wm)

	// the next round resumes from the persisted watermark
	_, err = a.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, fc.requests, 2)
	assert.Equal(t, int64(7), fc.requests[1].LastWatermark)
}

func TestDelete_MarksTombstoneDirty(t *testing.T) {
	fc := &fakeCaller{}
	a := setupAgent(t, fc)
	ctx := context.Background()

	require.NoError(t, a.RecordEdit(ctx, "parameter", "p-1", []byte(`{"name":"pH"}`)))
	require.NoError(t, a.Delete(ctx, "parameter", "p-1"))

	rec, err := a.Get(ctx, "parameter", "p-1")
	require.NoError(t, err)
	assert.True(t, rec.Deleted)
	assert.True(t, rec.Dirty)

	list, err := a.List(ctx, "parameter")
	require.NoError(t, err)
	assert.Empty(t, list)
}
