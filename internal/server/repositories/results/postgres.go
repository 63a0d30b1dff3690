// Package results provides the PostgreSQL-backed store for test results.
// Unlike samples and parameters, a result row that reached submitted status
// is immutable in place: the compare-and-set excludes it at the SQL level and
// the record view flags it so the resolver can reject conflicting writes
// outright.
package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fieldlabs/hydrosync/internal/common"
	"github.com/fieldlabs/hydrosync/internal/dbx"
	"github.com/fieldlabs/hydrosync/internal/server/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func toRecord(tr *models.TestResult) (*models.VersionedRecord, error) {
	payload, err := json.Marshal(tr)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal test result: %w", err)
	}
	return &models.VersionedRecord{
		EntityType: models.EntityTestResult,
		EntityID:   tr.ID,
		LabID:      tr.LabID,
		Payload:    payload,
		Token:      tr.Version,
		ServerSeq:  tr.ServerSeq,
		Deleted:    tr.Deleted,
		Immutable:  tr.Status == models.ResultSubmitted,
		UpdatedAt:  tr.UpdatedAt,
		UpdatedBy:  tr.UpdatedBy,
	}, nil
}

const selectColumns = `id, lab_id, sample_id, parameter_id, value, unit, tested_at,
	technician, compliant, status, superseded_by, version, server_seq, updated_at, updated_by, deleted`

func scanResult(row interface{ Scan(dest ...any) error }) (*models.TestResult, error) {
	var tr models.TestResult
	err := row.Scan(&tr.ID, &tr.LabID, &tr.SampleID, &tr.ParameterID, &tr.Value, &tr.Unit,
		&tr.TestedAt, &tr.Technician, &tr.Compliant, &tr.Status, &tr.SupersededBy,
		&tr.Version, &tr.ServerSeq, &tr.UpdatedAt, &tr.UpdatedBy, &tr.Deleted)
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

// Get returns the current state of one test result.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.VersionedRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM test_results WHERE id=$1`
	tr, err := scanResult(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select test result: %w", err)
	}
	return toRecord(tr)
}

// Insert creates a fresh result at token 1.
func (r *PostgresRepository) Insert(ctx context.Context, rec *models.VersionedRecord) (*models.VersionedRecord, error) {
	var tr models.TestResult
	if err := json.Unmarshal(rec.Payload, &tr); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	tr.ID = rec.EntityID
	tr.LabID = rec.LabID

	query := `INSERT INTO test_results (id, lab_id, sample_id, parameter_id, value, unit,
			tested_at, technician, compliant, status, superseded_by, version, server_seq, updated_at, updated_by, synced_at, deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, nextval('sync_seq'), now(), $12, now(), $13)
		RETURNING version, server_seq, updated_at`

	row := r.db.QueryRowContext(ctx, query,
		tr.ID, tr.LabID, tr.SampleID, tr.ParameterID, tr.Value, tr.Unit,
		tr.TestedAt, tr.Technician, tr.Compliant, tr.Status, tr.SupersededBy,
		rec.UpdatedBy, rec.Deleted)

	tr.UpdatedBy = rec.UpdatedBy
	tr.Deleted = rec.Deleted
	if err := row.Scan(&tr.Version, &tr.ServerSeq, &tr.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert test result: %w", err)
	}
	return toRecord(&tr)
}

// CompareAndSwap applies rec atomically if the persisted token still equals
// presented and the row has not been submitted. Zero rows updated is reported
// as common.ErrVersionConflict; the guard re-reads to tell a stale token from
// an immutable row.
func (r *PostgresRepository) CompareAndSwap(ctx context.Context, rec *models.VersionedRecord, presented int64) (*models.VersionedRecord, error) {
	var tr models.TestResult
	if err := json.Unmarshal(rec.Payload, &tr); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	tr.ID = rec.EntityID
	tr.LabID = rec.LabID

	query := `UPDATE test_results SET sample_id=$1, parameter_id=$2, value=$3, unit=$4,
			tested_at=$5, technician=$6, compliant=$7, status=$8, superseded_by=$9,
			version=version+1, server_seq=nextval('sync_seq'), updated_at=now(), updated_by=$10, synced_at=now(), deleted=$11
		WHERE id=$12 AND version=$13 AND status<>'submitted'
		RETURNING version, server_seq, updated_at`

	row := r.db.QueryRowContext(ctx, query,
		tr.SampleID, tr.ParameterID, tr.Value, tr.Unit, tr.TestedAt, tr.Technician,
		tr.Compliant, tr.Status, tr.SupersededBy, rec.UpdatedBy, rec.Deleted,
		tr.ID, presented)

	tr.UpdatedBy = rec.UpdatedBy
	tr.Deleted = rec.Deleted
	err := row.Scan(&tr.Version, &tr.ServerSeq, &tr.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrVersionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update test result: %w", err)
	}
	return toRecord(&tr)
}

// ChangedSince returns all results of a lab with server_seq > afterSeq in
// accepted-write order.
func (r *PostgresRepository) ChangedSince(ctx context.Context, labID string, afterSeq int64) ([]*models.VersionedRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM test_results WHERE lab_id=$1 AND server_seq>$2 ORDER BY server_seq`
	rows, err := r.db.QueryContext(ctx, query, labID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to select test results: %w", err)
	}
	defer rows.Close()

	var result []*models.VersionedRecord
	for rows.Next() {
		tr, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		rec, err := toRecord(tr)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Void transitions a submitted result to voided, recording the replacement
// reference. Rows in any other status do not match the WHERE clause and are
// reported as not found.
func (r *PostgresRepository) Void(ctx context.Context, id, replacementID, actor string) (*models.VersionedRecord, error) {
	query := `UPDATE test_results SET status='voided', superseded_by=$1,
			version=version+1, server_seq=nextval('sync_seq'), updated_at=now(), updated_by=$2
		WHERE id=$3 AND status='submitted'
		RETURNING ` + selectColumns

	tr, err := scanResult(r.db.QueryRowContext(ctx, query, replacementID, actor, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to void test result: %w", err)
	}
	return toRecord(tr)
}
