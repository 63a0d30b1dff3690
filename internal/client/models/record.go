// Package models defines client-side data models used by the HydroSync
// field agent.
package models

import (
	"encoding/json"
	"time"
)

// LocalRecord is a versioned envelope persisted locally and synced with the
// server. Payload holds the domain fields serialized as JSON; the agent never
// interprets them beyond display.
type LocalRecord struct {
	// EntityType is "sample", "test_result" or "parameter".
	EntityType string

	// EntityID is a globally unique identifier for the record.
	EntityID string

	// Payload is the domain document as last edited or pulled.
	Payload json.RawMessage

	// Token is the server-assigned version presented on the next push.
	// Zero means the record was created locally and never accepted.
	Token int64

	// Deleted marks the record as a tombstone (kept for conflict-free sync).
	Deleted bool

	// Dirty flags a local edit not yet accepted by the server.
	Dirty bool

	// UpdatedAt is the last local modification time in UTC.
	UpdatedAt time.Time
}

// Notification informs the field user that a local edit lost a sync conflict
// and was overwritten by the server state.
type Notification struct {
	ID         int64
	EntityType string
	EntityID   string
	Message    string
	BackupID   string
	CreatedAt  time.Time
	Read       bool
}
