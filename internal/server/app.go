// Package server initializes and runs the sync server: it opens the
// database, runs migrations, wires the coordinator pipeline, and starts the
// HTTP endpoint alongside the background audit archival job.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/fieldlabs/hydrosync/internal/logging"
	"github.com/fieldlabs/hydrosync/internal/server/archiver"
	"github.com/fieldlabs/hydrosync/internal/server/audittrail"
	"github.com/fieldlabs/hydrosync/internal/server/config"
	"github.com/fieldlabs/hydrosync/internal/server/guard"
	"github.com/fieldlabs/hydrosync/internal/server/httpapi"
	"github.com/fieldlabs/hydrosync/internal/server/models"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/repomanager"
	"github.com/fieldlabs/hydrosync/internal/server/resolve"
	"github.com/fieldlabs/hydrosync/internal/server/syncsvc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	coord    *syncsvc.Coordinator
	archiver *archiver.Archiver
}

func NewApp(c *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	overflow := audittrail.NewS3OverflowStore(audittrail.S3Options{
		Region:       c.S3Region,
		RootUser:     c.S3RootUser,
		RootPassword: c.S3RootPassword,
		Bucket:       c.S3Bucket,
		BaseEndpoint: c.S3BaseEndpoint,
	})

	trail := audittrail.NewManager(rm, overflow, c.AuditMaxPayloadBytes, logger)
	trail.Subscribe(func(e *models.AuditEntry) {
		logger.Debug(context.Background(), "mutation recorded",
			"entity_type", e.EntityType, "entity_id", e.EntityID, "action", e.Action)
	})
	coord := syncsvc.NewCoordinator(db, rm, guard.New(), resolve.New(logger), trail, logger)

	arch := archiver.New(db, rm, archiver.Options{
		Retention: c.AuditRetention,
		BatchSize: c.ArchiveBatchSize,
		Interval:  c.ArchiveInterval,
	}, &archiver.LogSink{Log: logger}, logger)

	return &App{config: c, logger: logger, db: db, coord: coord, archiver: arch}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.coord, app.config.SecretKey)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.archiver.Run(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
}
