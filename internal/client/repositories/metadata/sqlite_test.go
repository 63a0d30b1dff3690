package metadata

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB);`)
	require.NoError(t, err)

	return db
}

func TestSetGetDelete(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	// missing key is nil, not an error
	v, err := r.Get(ctx, "watermark")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, r.Set(ctx, "watermark", []byte("42")))

	v, err = r.Get(ctx, "watermark")
	require.NoError(t, err)
	assert.Equal(t, []byte("42"), v)

	// set overwrites
	require.NoError(t, r.Set(ctx, "watermark", []byte("43")))
	v, err = r.Get(ctx, "watermark")
	require.NoError(t, err)
	assert.Equal(t, []byte("43"), v)

	require.NoError(t, r.Delete(ctx, "watermark"))
	v, err = r.Get(ctx, "watermark")
	require.NoError(t, err)
	assert.Nil(t, v)
}
