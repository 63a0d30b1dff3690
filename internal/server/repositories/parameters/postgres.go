// Package parameters provides the PostgreSQL-backed store for analyte
// parameter definitions. Parameters are centrally managed and rarely
// conflict-prone, but they participate in sync like any other entity.
package parameters

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

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func toRecord(p *models.Parameter) (*models.VersionedRecord, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parameter: %w", err)
	}
	return &models.VersionedRecord{
		EntityType: models.EntityParameter,
		EntityID:   p.ID,
		LabID:      p.LabID,
		Payload:    payload,
		Token:      p.Version,
		ServerSeq:  p.ServerSeq,
		Deleted:    p.Deleted,
		UpdatedAt:  p.UpdatedAt,
		UpdatedBy:  p.UpdatedBy,
	}, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.VersionedRecord, error) {
	query := `SELECT id, lab_id, name, unit, min_threshold, max_threshold,
		version, server_seq, updated_at, updated_by, deleted
		FROM parameters WHERE id=$1`
	row := r.db.QueryRowContext(ctx, query, id)

	var p models.Parameter
	err := row.Scan(&p.ID, &p.LabID, &p.Name, &p.Unit, &p.MinThreshold, &p.MaxThreshold,
		&p.Version, &p.ServerSeq, &p.UpdatedAt, &p.UpdatedBy, &p.Deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select parameter: %w", err)
	}
	return toRecord(&p)
}

func (r *PostgresRepository) Insert(ctx context.Context, rec *models.VersionedRecord) (*models.VersionedRecord, error) {
	var p models.Parameter
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	p.ID = rec.EntityID
	p.LabID = rec.LabID

	query := `INSERT INTO parameters (id, lab_id, name, unit, min_threshold, max_threshold,
			version, server_seq, updated_at, updated_by, synced_at, deleted)
		VALUES ($1, $2, $3, $4, $5, $6, 1, nextval('sync_seq'), now(), $7, now(), $8)
		RETURNING version, server_seq, updated_at`

	row := r.db.QueryRowContext(ctx, query,
		p.ID, p.LabID, p.Name, p.Unit, p.MinThreshold, p.MaxThreshold, rec.UpdatedBy, rec.Deleted)

	p.UpdatedBy = rec.UpdatedBy
	p.Deleted = rec.Deleted
	if err := row.Scan(&p.Version, &p.ServerSeq, &p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert parameter: %w", err)
	}
	return toRecord(&p)
}

func (r *PostgresRepository) CompareAndSwap(ctx context.Context, rec *models.VersionedRecord, presented int64) (*models.VersionedRecord, error) {
	var p models.Parameter
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	p.ID = rec.EntityID
	p.LabID = rec.LabID

	query := `UPDATE parameters SET name=$1, unit=$2, min_threshold=$3, max_threshold=$4,
			version=version+1, server_seq=nextval('sync_seq'), updated_at=now(), updated_by=$5, synced_at=now(), deleted=$6
		WHERE id=$7 AND version=$8
		RETURNING version, server_seq, updated_at`

	row := r.db.QueryRowContext(ctx, query,
		p.Name, p.Unit, p.MinThreshold, p.MaxThreshold, rec.UpdatedBy, rec.Deleted,
		p.ID, presented)

	p.UpdatedBy = rec.UpdatedBy
	p.Deleted = rec.Deleted
	err := row.Scan(&p.Version, &p.ServerSeq, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrVersionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update parameter: %w", err)
	}
	return toRecord(&p)
}

func (r *PostgresRepository) ChangedSince(ctx context.Context, labID string, afterSeq int64) ([]*models.VersionedRecord, error) {
	query := `SELECT id, lab_id, name, unit, min_threshold, max_threshold,
		version, server_seq, updated_at, updated_by, deleted
		FROM parameters WHERE lab_id=$1 AND server_seq>$2 ORDER BY server_seq`
	rows, err := r.db.QueryContext(ctx, query, labID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to select parameters: %w", err)
	}
	defer rows.Close()

	var result []*models.VersionedRecord
	for rows.Next() {
		var p models.Parameter
		if err := rows.Scan(&p.ID, &p.LabID, &p.Name, &p.Unit, &p.MinThreshold, &p.MaxThreshold,
			&p.Version, &p.ServerSeq, &p.UpdatedAt, &p.UpdatedBy, &p.Deleted); err != nil {
			return nil, err
		}
		rec, err := toRecord(&p)
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
