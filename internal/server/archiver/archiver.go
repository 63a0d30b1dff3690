// Package archiver moves aged audit entries from the hot table to the cold
// archive in small bounded batches. Each batch is copy-then-delete inside one
// transaction, so an interrupted run never leaves a partial move; re-running
// with the same cutoff simply re-selects whatever is still eligible.
package archiver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fieldlabs/hydrosync/internal/dbx"
	"github.com/fieldlabs/hydrosync/internal/logging"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/repomanager"
)

// Sink receives per-batch completion metrics for the observability backend.
type Sink interface {
	RecordBatch(copied, deleted int64, took time.Duration)
}

// LogSink reports batch metrics through the structured logger.
type LogSink struct {
	Log logging.Logger
}

func (s *LogSink) RecordBatch(copied, deleted int64, took time.Duration) {
	s.Log.Info(context.Background(), "audit archive batch completed",
		"copied", copied, "deleted", deleted, "took", took)
}

// Options tune the job. Zero values fall back to the 90-day retention window
// with nightly runs and batches of 1000 rows.
type Options struct {
	Retention time.Duration
	BatchSize int
	Interval  time.Duration
}

func (o *Options) withDefaults() {
	if o.Retention == 0 {
		o.Retention = 90 * 24 * time.Hour
	}
	if o.BatchSize == 0 {
		o.BatchSize = 1000
	}
	if o.Interval == 0 {
		o.Interval = 24 * time.Hour
	}
}

type Archiver struct {
	rm   repomanager.RepositoryManager
	opts Options
	sink Sink
	log  logging.Logger
	now  func() time.Time

	runTx func(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error
}

// New builds an Archiver over db. A nil db runs batches without a wrapping
// transaction, which in-memory repository managers rely on in tests.
func New(db *sql.DB, rm repomanager.RepositoryManager, opts Options, sink Sink, log logging.Logger) *Archiver {
	opts.withDefaults()

	runTx := func(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
		return fn(ctx, nil)
	}
	if db != nil {
		runTx = func(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
			return dbx.WithTx(ctx, db, nil, fn)
		}
	}

	return &Archiver{
		rm:    rm,
		opts:  opts,
		sink:  sink,
		log:   log.With("module", "audit_archiver"),
		now:   time.Now,
		runTx: runTx,
	}
}

// RunOnce drains every eligible batch for the current cutoff and returns the
// number of batches moved. A failed batch rolls back whole and stops the run;
// the next scheduled run retries the same cutoff.
func (a *Archiver) RunOnce(ctx context.Context) (int, error) {
	cutoff := a.now().UTC().Add(-a.opts.Retention)

	batches := 0
	for {
		var moved int
		err := a.runTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			repo := a.rm.Audit(tx)

			start := time.Now()
			ids, err := repo.SelectArchivableIDs(ctx, cutoff, a.opts.BatchSize)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return nil
			}

			copied, err := repo.CopyToArchive(ctx, ids)
			if err != nil {
				return err
			}
			deleted, err := repo.DeleteByIDs(ctx, ids)
			if err != nil {
				return err
			}
			if deleted != int64(len(ids)) {
				return fmt.Errorf("archive batch mismatch: selected %d, deleted %d", len(ids), deleted)
			}

			moved = len(ids)
			if a.sink != nil {
				a.sink.RecordBatch(copied, deleted, time.Since(start))
			}
			return nil
		})
		if err != nil {
			return batches, fmt.Errorf("archive batch failed: %w", err)
		}
		if moved == 0 {
			return batches, nil
		}
		batches++
	}
}

// Run drives RunOnce on a ticker until ctx is cancelled. Failures are logged
// and retried on the next tick; they never block live audit writes.
func (a *Archiver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.opts.Interval)
	defer ticker.Stop()

	a.log.Info(ctx, "audit archiver started",
		"retention", a.opts.Retention, "batch_size", a.opts.BatchSize, "interval", a.opts.Interval)

	for {
		select {
		case <-ctx.Done():
			a.log.Info(ctx, "audit archiver stopped")
			return
		case <-ticker.C:
			if batches, err := a.RunOnce(ctx); err != nil {
				a.log.Error(ctx, "audit archive run failed", "error", err.Error(), "batches", batches)
			} else if batches > 0 {
				a.log.Info(ctx, "audit archive run completed", "batches", batches)
			}
		}
	}
}
