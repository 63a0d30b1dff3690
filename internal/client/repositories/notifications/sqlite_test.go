package notifications

import (
	"context"
	"database/sql"
	"testing"

	"github.com/fieldlabs/hydrosync/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE notifications (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  entity_type TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  message TEXT NOT NULL,
  backup_id TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP NOT NULL,
  read INTEGER NOT NULL DEFAULT 0
);
`)
	require.NoError(t, err)

	return db
}

func TestAddListMarkRead(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	n1 := &models.Notification{EntityType: "sample", EntityID: "s-1", Message: "local edit overwritten", BackupID: "b-1"}
	n2 := &models.Notification{EntityType: "sample", EntityID: "s-2", Message: "local edit overwritten", BackupID: "b-2"}
	require.NoError(t, r.Add(ctx, n1))
	require.NoError(t, r.Add(ctx, n2))
	assert.NotZero(t, n1.ID)

	unread, err := r.ListUnread(ctx)
	require.NoError(t, err)
	require.Len(t, unread, 2)
	assert.Equal(t, "s-1", unread[0].EntityID)
	assert.Equal(t, "b-1", unread[0].BackupID)

	require.NoError(t, r.MarkRead(ctx, n1.ID))

	unread, err = r.ListUnread(ctx)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "s-2", unread[0].EntityID)

	// marking twice is an error: zero rows affected
	require.Error(t, r.MarkRead(ctx, n1.ID))
}
