package model

import (
	"time"

	"gorm.io/datatypes"
)

// JobStatus is the slice job state machine:
//
//	queued -> running -> completed
//	                  -> failed
//
// completed and failed are terminal, no state is skipped or revisited.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is final and immutable.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// OutputOptions selects which artifacts a slice job should produce.
type OutputOptions struct {
	Gcode      bool `json:"gcode"`
	Project3MF bool `json:"project_3mf"`
	Metadata   bool `json:"metadata"`
}

// DefaultOutputOptions requests G-code and metadata only.
func DefaultOutputOptions() OutputOptions {
	return OutputOptions{Gcode: true, Metadata: true}
}

// SliceJob is one request to run the slicer against a model with a
// profile plus overrides. ID, ModelID and ProfileID are fixed at
// creation; the record is mutated only by the orchestrator worker
// owning the job.
type SliceJob struct {
	ID            string            `gorm:"primaryKey" json:"id"`
	ModelID       string            `gorm:"not null" json:"model_id"`
	ProfileID     string            `gorm:"not null" json:"profile_id"`
	Status        JobStatus         `gorm:"not null" json:"status"`
	Overrides     datatypes.JSONMap `json:"overrides,omitempty"`
	OutputOptions OutputOptions     `gorm:"serializer:json" json:"output_options"`
	JobMetadata   datatypes.JSONMap `json:"metadata,omitempty"`

	// Snapshots taken at creation: the job runs against these, so
	// deleting the referenced model or profile later cannot fail it.
	ModelStoragePath string            `json:"-"`
	ProfileName      string            `json:"-"`
	ProfileSettings  datatypes.JSONMap `json:"-"`

	QueuedAt   time.Time  `json:"queued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	ProgressPercent int `json:"progress_percent"`

	GcodePath      string         `gorm:"column:gcode_path" json:"-"`
	Project3MFPath string         `gorm:"column:project_3mf_path" json:"-"`
	OutputMetadata *SliceMetadata `gorm:"serializer:json" json:"-"`

	ErrorCode    string            `json:"error_code,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ErrorDetails datatypes.JSONMap `json:"error_details,omitempty"`
}
