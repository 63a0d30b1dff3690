package repomanager

import (
	"context"
	"database/sql"

	"github.com/fieldlabs/hydrosync/internal/dbx"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/audit"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/conflicts"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/ledger"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/parameters"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/results"
	"github.com/fieldlabs/hydrosync/internal/server/repositories/samples"
)

// RepositoryManager vends repositories bound to a DBTX, so the same
// constructor works against the pooled *sql.DB and against a transaction
// handle inside dbx.WithTx.
type RepositoryManager interface {
	Samples(db dbx.DBTX) samples.Repository
	Results(db dbx.DBTX) results.Repository
	Parameters(db dbx.DBTX) parameters.Repository
	Conflicts(db dbx.DBTX) conflicts.Repository
	Audit(db dbx.DBTX) audit.Repository
	Ledger(db dbx.DBTX) ledger.Repository

	RunMigrations(ctx context.Context, db *sql.DB) error
}
