package models

import "time"

// SampleStatus is the lifecycle state of a collected water sample.
type SampleStatus string

const (
	SampleCollected SampleStatus = "collected"
	SampleInTransit SampleStatus = "in_transit"
	SampleReceived  SampleStatus = "received"
	SampleAnalyzed  SampleStatus = "analyzed"
	SampleDisposed  SampleStatus = "disposed"
)

// Sample is a physical water sample collected in the field. Samples are
// owned by exactly one lab and are only ever soft-deleted.
type Sample struct {
	ID           string       `json:"id"`
	LabID        string       `json:"lab_id"`
	SampleType   string       `json:"sample_type"`
	Latitude     float64      `json:"latitude"`
	Longitude    float64      `json:"longitude"`
	LocationNote string       `json:"location_note,omitempty"`
	SitePath     string       `json:"site_path,omitempty"`
	CollectedAt  time.Time    `json:"collected_at"`
	CollectedBy  string       `json:"collected_by"`
	Status       SampleStatus `json:"status"`

	SyncMeta `json:"-"`
}
