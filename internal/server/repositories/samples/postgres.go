// Package samples provides the PostgreSQL-backed store for field samples.
// The repository translates between the typed samples table and the
// entity-agnostic VersionedRecord view used by the guard and the sync
// coordinator.
package samples

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

func toRecord(s *models.Sample) (*models.VersionedRecord, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sample: %w", err)
	}
	return &models.VersionedRecord{
		EntityType: models.EntitySample,
		EntityID:   s.ID,
		LabID:      s.LabID,
		Payload:    payload,
		Token:      s.Version,
		ServerSeq:  s.ServerSeq,
		Deleted:    s.Deleted,
		UpdatedAt:  s.UpdatedAt,
		UpdatedBy:  s.UpdatedBy,
	}, nil
}

// Get returns the current state of one sample, deleted or not.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.VersionedRecord, error) {
	query := `SELECT id, lab_id, sample_type, latitude, longitude, location_note, site_path,
		collected_at, collected_by, status, version, server_seq, updated_at, updated_by, deleted
		FROM samples WHERE id=$1`
	row := r.db.QueryRowContext(ctx, query, id)

	var s models.Sample
	err := row.Scan(&s.ID, &s.LabID, &s.SampleType, &s.Latitude, &s.Longitude, &s.LocationNote,
		&s.SitePath, &s.CollectedAt, &s.CollectedBy, &s.Status,
		&s.Version, &s.ServerSeq, &s.UpdatedAt, &s.UpdatedBy, &s.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select sample: %w", err)
	}
	return toRecord(&s)
}

// Insert creates a fresh sample at token 1, stamping the caller's lab and
// actor over whatever the payload claims.
func (r *PostgresRepository) Insert(ctx context.Context, rec *models.VersionedRecord) (*models.VersionedRecord, error) {
	var s models.Sample
	if err := json.Unmarshal(rec.Payload, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	s.ID = rec.EntityID
	s.LabID = rec.LabID

	query := `INSERT INTO samples (id, lab_id, sample_type, latitude, longitude, location_note,
			site_path, collected_at, collected_by, status, version, server_seq, updated_at, updated_by, synced_at, deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, nextval('sync_seq'), now(), $11, now(), $12)
		RETURNING version, server_seq, updated_at`

	row := r.db.QueryRowContext(ctx, query,
		s.ID, s.LabID, s.SampleType, s.Latitude, s.Longitude, s.LocationNote,
		s.SitePath, s.CollectedAt, s.CollectedBy, s.Status, rec.UpdatedBy, rec.Deleted)

	s.UpdatedBy = rec.UpdatedBy
	s.Deleted = rec.Deleted
	if err := row.Scan(&s.Version, &s.ServerSeq, &s.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert sample: %w", err)
	}
	return toRecord(&s)
}

// CompareAndSwap applies rec atomically if the persisted token still equals
// presented. Zero rows updated is reported as common.ErrVersionConflict; the
// caller classifies it further.
func (r *PostgresRepository) CompareAndSwap(ctx context.Context, rec *models.VersionedRecord, presented int64) (*models.VersionedRecord, error) {
	var s models.Sample
	if err := json.Unmarshal(rec.Payload, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	s.ID = rec.EntityID
	s.LabID = rec.LabID

	query := `UPDATE samples SET sample_type=$1, latitude=$2, longitude=$3, location_note=$4,
			site_path=$5, collected_at=$6, collected_by=$7, status=$8,
			version=version+1, server_seq=nextval('sync_seq'), updated_at=now(), updated_by=$9, synced_at=now(), deleted=$10
		WHERE id=$11 AND version=$12
		RETURNING version, server_seq, updated_at`

	row := r.db.QueryRowContext(ctx, query,
		s.SampleType, s.Latitude, s.Longitude, s.LocationNote, s.SitePath,
		s.CollectedAt, s.CollectedBy, s.Status, rec.UpdatedBy, rec.Deleted,
		s.ID, presented)

	s.UpdatedBy = rec.UpdatedBy
	s.Deleted = rec.Deleted
	err := row.Scan(&s.Version, &s.ServerSeq, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrVersionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update sample: %w", err)
	}
	return toRecord(&s)
}

// ChangedSince returns all samples of a lab with server_seq > afterSeq in
// accepted-write order. Soft-deleted rows are included so devices learn
// about deletions.
func (r *PostgresRepository) ChangedSince(ctx context.Context, labID string, afterSeq int64) ([]*models.VersionedRecord, error) {
	query := `SELECT id, lab_id, sample_type, latitude, longitude, location_note, site_path,
		collected_at, collected_by, status, version, server_seq, updated_at, updated_by, deleted
		FROM samples WHERE lab_id=$1 AND server_seq>$2 ORDER BY server_seq`
	rows, err := r.db.QueryContext(ctx, query, labID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to select samples: %w", err)
	}
	defer rows.Close()

	var result []*models.VersionedRecord
	for rows.Next() {
		var s models.Sample
		if err := rows.Scan(&s.ID, &s.LabID, &s.SampleType, &s.Latitude, &s.Longitude,
			&s.LocationNote, &s.SitePath, &s.CollectedAt, &s.CollectedBy, &s.Status,
			&s.Version, &s.ServerSeq, &s.UpdatedAt, &s.UpdatedBy, &s.Deleted); err != nil {
			return nil, err
		}
		rec, err := toRecord(&s)
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
