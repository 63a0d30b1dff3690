// Package models defines server-side persistence models: syncable domain
// entities (samples, test results, parameters), their uniform sync metadata
// trailer, and the bookkeeping records produced by sync (conflict backups,
// audit entries, ledger rows).
package models

import (
	"encoding/json"
	"time"
)

// EntityType identifies a syncable entity kind on the wire and in audit rows.
type EntityType string

const (
	EntitySample     EntityType = "sample"
	EntityTestResult EntityType = "test_result"
	EntityParameter  EntityType = "parameter"
)

// Action classifies an accepted mutation for the audit trail.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// SyncMeta is the uniform metadata trailer carried by every syncable entity.
// Version is the opaque token presented by clients for compare-and-set;
// ServerSeq orders accepted writes globally for watermark-based pulls.
type SyncMeta struct {
	Version   int64
	ServerSeq int64
	UpdatedAt time.Time
	UpdatedBy string
	SyncedAt  *time.Time
	Deleted   bool
}

// VersionedRecord is the entity-agnostic view the guard and the sync
// coordinator operate on. Payload holds the domain fields serialized as JSON;
// the typed repositories translate it to and from table columns.
type VersionedRecord struct {
	EntityType EntityType      `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	LabID      string          `json:"lab_id"`
	Payload    json.RawMessage `json:"payload"`
	Token      int64           `json:"token"`
	ServerSeq  int64           `json:"server_seq"`
	Deleted    bool            `json:"deleted"`
	// Immutable reports that the persisted row reached a terminal status
	// (a submitted test result) and may never be edited in place.
	Immutable bool      `json:"immutable"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}
