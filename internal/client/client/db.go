// Package client initializes the agent's local SQLite database and vends the
// repositories built on it.
package client

import (
	"context"
	"database/sql"
	"log"

	"github.com/fieldlabs/hydrosync/internal/client/migrations"
	"github.com/fieldlabs/hydrosync/internal/client/repositories/metadata"
	"github.com/fieldlabs/hydrosync/internal/client/repositories/notifications"
	"github.com/fieldlabs/hydrosync/internal/client/repositories/records"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

type Repositories struct {
	Records       records.Repository
	Metadata      metadata.Repository
	Notifications notifications.Repository
	DB            *sql.DB
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	// Set the database dialect
	if err := goose.SetDialect("sqlite3"); err != nil {
		log.Fatal("failed to set goose dialect:", err)
	}

	return goose.UpContext(ctx, db, ".")
}

func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		return nil, err
	}

	repos := &Repositories{
		Records:       records.NewSQLiteRepository(db),
		Metadata:      metadata.NewSQLiteRepository(db),
		Notifications: notifications.NewSQLiteRepository(db),
		DB:            db,
	}
	return repos, nil
}
