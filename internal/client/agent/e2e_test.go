package agent

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/fieldlabs/hydrosync/internal/client/client"
	"github.com/fieldlabs/hydrosync/internal/client/repositories/metadata"
	"github.com/fieldlabs/hydrosync/internal/client/repositories/notifications"
	"github.com/fieldlabs/hydrosync/internal/client/repositories/records"
	"github.com/fieldlabs/hydrosync/internal/client/transport"
	"github.com/fieldlabs/hydrosync/internal/logging"
	"github.com/fieldlabs/hydrosync/internal/server/audittrail"
	"github.com/fieldlabs/hydrosync/internal/server/auth"
	"github.com/fieldlabs/hydrosync/internal/server/guard"
	"github.com/fieldlabs/hydrosync/internal/server/httpapi"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/repomanager"
	"github.com/fieldlabs/hydrosync/internal/server/resolve"
	"github.com/fieldlabs/hydrosync/internal/server/syncsvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

const e2eSecret = "e2e-secret"

func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	rm := repomanager.NewMemoryRepositoryManager()
	trail := audittrail.NewManager(rm, nil, 0, log)
	coord := syncsvc.NewCoordinator(nil, rm, guard.New(), resolve.New(log), trail, log)

	api := httpapi.NewHTTPServer(":0", log, coord, e2eSecret)
	srv := httptest.NewServer(api.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func newDevice(t *testing.T, serverURL, deviceID, userID string) *Agent {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, client.RunMigrations(context.Background(), db))

	token, err := auth.GenerateToken(auth.Scope{UserID: userID, LabID: "lab-1"}, []byte(e2eSecret), time.Hour)
	require.NoError(t, err)

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	a := New(records.NewSQLiteRepository(db), metadata.NewSQLiteRepository(db),
		notifications.NewSQLiteRepository(db),
		transport.NewHTTPCaller(serverURL, token), deviceID, log)
	a.baseBackoff = time.Millisecond
	return a
}

// Two devices edit the same sample offline; the slower one loses, gets the
// winning state and a notification, and both converge on the same token.
func TestEndToEnd_TwoDevicesConverge(t *testing.T) {
	srv := startServer(t)
	ctx := context.Background()

	devA := newDevice(t, srv.URL, "dev-a", "user-a")
	devB := newDevice(t, srv.URL, "dev-b", "user-b")

	// Device A creates the sample and syncs; device B pulls it.
	require.NoError(t, devA.RecordEdit(ctx, "sample", "s-1", []byte(`{"location":"well-7","status":"collected"}`)))
	_, err := devA.Sync(ctx)
	require.NoError(t, err)
	_, err = devB.Sync(ctx)
	require.NoError(t, err)

	recB, err := devB.Get(ctx, "sample", "s-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), recB.Token)

	// Both edit offline.
	require.NoError(t, devA.RecordEdit(ctx, "sample", "s-1", []byte(`{"location":"well-7","status":"in_transit"}`)))
	require.NoError(t, devB.RecordEdit(ctx, "sample", "s-1", []byte(`{"location":"well-7","status":"received"}`)))

	// A syncs first and wins.
	_, err = devA.Sync(ctx)
	require.NoError(t, err)

	// B syncs second and loses.
	resB, err := devB.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, resB.Conflicts, 1)

	finalA, err := devA.Get(ctx, "sample", "s-1")
	require.NoError(t, err)
	finalB, err := devB.Get(ctx, "sample", "s-1")
	require.NoError(t, err)

	assert.Equal(t, finalA.Token, finalB.Token, "devices converge on one token")
	assert.JSONEq(t, string(finalA.Payload), string(finalB.Payload))
	assert.JSONEq(t, `{"location":"well-7","status":"in_transit"}`, string(finalB.Payload))

	notes, err := devB.Notifications(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.NotEmpty(t, notes[0].BackupID)

	// A quiet follow-up round changes nothing.
	res, err := devB.Sync(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Conflicts)
	assert.Empty(t, res.Applied)
}
