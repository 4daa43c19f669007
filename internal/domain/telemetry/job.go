package telemetry

import "time"

// ID tipe untuk AnalysisJob
type JobID string

// JobStatus enum
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
)

// AnalysisJob tracks one analysis lifecycle per Upload (1:1, upload_id unique).
// Rows are never deleted; attempts + error_message stay as the audit trail.
type AnalysisJob struct {
	ID           JobID     `json:"id"`
	UploadID     UploadID  `json:"upload_id"`
	Status       JobStatus `json:"status"`
	Attempts     int       `json:"attempts"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ResultStatus enum untuk hasil orchestration
type ResultStatus string

const (
	ResultIdle       ResultStatus = "idle"
	ResultProcessing ResultStatus = "processing"
	ResultProcessed  ResultStatus = "processed"
	ResultError      ResultStatus = "error"
)

// JobResult is what both entry points report back to their caller.
type JobResult struct {
	Status   ResultStatus `json:"status"`
	UploadID UploadID     `json:"upload_id,omitempty"`
	Message  string       `json:"message,omitempty"`
}
