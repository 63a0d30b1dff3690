package models

import "time"

// ResultStatus is the lifecycle state of a test result.
// A submitted result is immutable in place: corrections are new records
// linked through SupersededBy on the voided row.
type ResultStatus string

const (
	ResultDraft     ResultStatus = "draft"
	ResultSubmitted ResultStatus = "submitted"
	ResultVoided    ResultStatus = "voided"
)

// TestResult is a measurement of one parameter against one sample.
type TestResult struct {
	ID           string       `json:"id"`
	LabID        string       `json:"lab_id"`
	SampleID     string       `json:"sample_id"`
	ParameterID  string       `json:"parameter_id"`
	Value        float64      `json:"value"`
	Unit         string       `json:"unit"`
	TestedAt     time.Time    `json:"tested_at"`
	Technician   string       `json:"technician"`
	Compliant    bool         `json:"compliant"`
	Status       ResultStatus `json:"status"`
	SupersededBy string       `json:"superseded_by,omitempty"`

	SyncMeta `json:"-"`
}

// Parameter is a centrally managed analyte definition with the thresholds
// used for compliance computation.
type Parameter struct {
	ID           string  `json:"id"`
	LabID        string  `json:"lab_id"`
	Name         string  `json:"name"`
	Unit         string  `json:"unit"`
	MinThreshold float64 `json:"min_threshold"`
	MaxThreshold float64 `json:"max_threshold"`

	SyncMeta `json:"-"`
}
