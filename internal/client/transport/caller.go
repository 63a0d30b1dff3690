// Package transport carries sync rounds between the agent and the server.
// The wire shapes mirror the server's sync API; the agent stays agnostic of
// how they travel.
package transport

import (
	"context"
	"encoding/json"
)

// PushRecord is one local edit presented for application.
type PushRecord struct {
	EntityType     string          `json:"entity_type"`
	EntityID       string          `json:"entity_id"`
	Payload        json.RawMessage `json:"payload"`
	PresentedToken int64           `json:"presented_token"`
	Deleted        bool            `json:"deleted"`
}

// SyncRequest is one push/pull round.
type SyncRequest struct {
	LastWatermark int64        `json:"last_watermark"`
	Records       []PushRecord `json:"records"`
}

// AppliedRecord confirms an accepted record with its regenerated token.
type AppliedRecord struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	NewToken   int64  `json:"new_token"`
}

// ConflictReport is the per-record outcome of a rejected write.
type ConflictReport struct {
	EntityType       string          `json:"entity_type"`
	EntityID         string          `json:"entity_id"`
	ServerPayload    json.RawMessage `json:"server_payload"`
	ServerToken      int64           `json:"server_token"`
	ServerDeleted    bool            `json:"server_deleted"`
	ConflictBackupID string          `json:"conflict_backup_id"`
	Reason           string          `json:"reason"`
}

// ServerChange is one record pulled from the server.
type ServerChange struct {
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
	Token      int64           `json:"token"`
	ServerSeq  int64           `json:"server_seq"`
	Deleted    bool            `json:"deleted"`
}

// RejectedRecord reports a pushed record the server refused outright,
// e.g. an unknown entity type or a cross-lab write.
type RejectedRecord struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Reason     string `json:"reason"`
}

// SyncResult is the server's per-round response.
type SyncResult struct {
	NewWatermark  int64            `json:"new_watermark"`
	Applied       []AppliedRecord  `json:"applied"`
	Conflicts     []ConflictReport `json:"conflicts"`
	Rejected      []RejectedRecord `json:"rejected,omitempty"`
	ServerChanges []ServerChange   `json:"server_changes"`
}

// Caller performs one sync round against the server. Connectivity failures
// are reported as common.ErrNetwork so the agent can retry with backoff.
type Caller interface {
	Sync(ctx context.Context, deviceID string, req *SyncRequest) (*SyncResult, error)
}
