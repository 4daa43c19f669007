package telemetry

import (
	"context"
	"io"
	"time"
)

// UploadRepository port (interface untuk persistence)
type UploadRepository interface {
	Save(ctx context.Context, u *Upload) error
	// Get looks an upload up regardless of tenant; nil when absent.
	Get(ctx context.Context, id UploadID) (*Upload, error)
	// GetOwned scopes the lookup to a tenant; nil when absent or foreign.
	GetOwned(ctx context.Context, tenant string, id UploadID) (*Upload, error)
	Latest(ctx context.Context, tenant string, limit int) ([]*Upload, error)
	UpdateStatus(ctx context.Context, id UploadID, status UploadStatus) error
	MarkError(ctx context.Context, id UploadID, message string) error
}

// JobRepository port. The job row is the single coordination point per upload.
type JobRepository interface {
	Create(ctx context.Context, j *AnalysisJob) error
	// Enqueue upserts the row back to pending with attempts reset.
	Enqueue(ctx context.Context, j *AnalysisJob) error
	// GetByUpload returns nil when no job exists yet.
	GetByUpload(ctx context.Context, uploadID UploadID) (*AnalysisJob, error)
	// ClaimForProcessing is a conditional pending/failed→processing transition
	// (stale processing rows, updated_at < staleBefore, count as claimable).
	// Exactly one of two racing callers sees claimed=true.
	ClaimForProcessing(ctx context.Context, id JobID, staleBefore, now time.Time) (bool, error)
	MarkSucceeded(ctx context.Context, id JobID, now time.Time) error
	MarkFailed(ctx context.Context, id JobID, message string, now time.Time) error
	// NextEligible picks the oldest pending/failed/stale-processing row by
	// created_at ascending; nil when the table has no eligible work.
	NextEligible(ctx context.Context, staleBefore time.Time) (*AnalysisJob, error)
}

// ReportRepository port. Reports are derived artifacts, upserted by upload id.
type ReportRepository interface {
	Upsert(ctx context.Context, r *Report) error
	// GetByUpload returns nil when no report exists.
	GetByUpload(ctx context.Context, uploadID UploadID) (*Report, error)
}

// ArtifactStore port (interface untuk penyimpanan file telemetry)
type ArtifactStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Download(ctx context.Context, key string) (string, error)
}
