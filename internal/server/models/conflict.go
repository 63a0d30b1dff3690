package models

import (
	"encoding/json"
	"time"
)

// ResolutionStrategy names the policy applied to a rejected write.
type ResolutionStrategy string

const (
	StrategyLastWriterWins    ResolutionStrategy = "last-writer-wins"
	StrategyImmutableRejected ResolutionStrategy = "immutable-rejected"
)

// ConflictBackup preserves both sides of a rejected write. The client
// snapshot is stored verbatim so the losing payload can be recovered
// byte-for-byte.
type ConflictBackup struct {
	ID             string             `json:"id"`
	LabID          string             `json:"lab_id"`
	DeviceID       string             `json:"device_id"`
	EntityType     EntityType         `json:"entity_type"`
	EntityID       string             `json:"entity_id"`
	ClientSnapshot json.RawMessage    `json:"client_snapshot"`
	ServerSnapshot json.RawMessage    `json:"server_snapshot"`
	Strategy       ResolutionStrategy `json:"strategy"`
	DetectedAt     time.Time          `json:"detected_at"`
	ResolvedAt     *time.Time         `json:"resolved_at,omitempty"`
	ResolvedBy     string             `json:"resolved_by"`
	Notes          string             `json:"notes,omitempty"`
}

// AuditEntry records one accepted mutation. Rows are immutable once written;
// AuditArchiveEntry shares the same shape in the cold table.
type AuditEntry struct {
	ID               string          `json:"id"`
	Actor            string          `json:"actor"`
	EntityType       EntityType      `json:"entity_type"`
	EntityID         string          `json:"entity_id"`
	Action           Action          `json:"action"`
	OldValue         json.RawMessage `json:"old_value,omitempty"`
	NewValue         json.RawMessage `json:"new_value,omitempty"`
	ChangedFields    string          `json:"changed_fields,omitempty"`
	Truncated        bool            `json:"truncated,omitempty"`
	OverflowKey      string          `json:"overflow_key,omitempty"`
	ConflictBackupID string          `json:"conflict_backup_id,omitempty"`
	OriginAddr       string          `json:"origin_addr,omitempty"`
	RecordedAt       time.Time       `json:"recorded_at"`
}

// SyncLedgerEntry tracks the last sync outcome per (device, user).
type SyncLedgerEntry struct {
	DeviceID      string    `json:"device_id"`
	UserID        string    `json:"user_id"`
	Watermark     int64     `json:"watermark"`
	Status        string    `json:"status"`
	AppliedCount  int       `json:"applied_count"`
	ConflictCount int       `json:"conflict_count"`
	ResolvedCount int       `json:"resolved_count"`
	LastError     string    `json:"last_error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
