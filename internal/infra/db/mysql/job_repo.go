package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/bryanwahyu/telemetry-insight/internal/domain/telemetry"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, upload_id, status, attempts, error_message, created_at, updated_at`

func (r *JobRepository) Create(ctx context.Context, j *domain.AnalysisJob) error {
	const q = `
INSERT INTO analysis_jobs (id, upload_id, status, attempts, error_message, created_at, updated_at)
VALUES (?,?,?,?,NULL,?,?);
`
	_, err := r.db.ExecContext(ctx, q, j.ID, j.UploadID, string(j.Status), j.Attempts, j.CreatedAt, j.UpdatedAt)
	return err
}

// Enqueue upsert ke pending; upload_id unique jadi row lama dipakai ulang
func (r *JobRepository) Enqueue(ctx context.Context, j *domain.AnalysisJob) error {
	const q = `
INSERT INTO analysis_jobs (id, upload_id, status, attempts, error_message, created_at, updated_at)
VALUES (?,?,?,0,NULL,?,?)
ON DUPLICATE KEY UPDATE
 status=VALUES(status),
 attempts=0,
 error_message=NULL,
 updated_at=VALUES(updated_at);
`
	_, err := r.db.ExecContext(ctx, q, j.ID, j.UploadID, string(domain.JobStatusPending), j.CreatedAt, j.UpdatedAt)
	return err
}

func (r *JobRepository) GetByUpload(ctx context.Context, uploadID domain.UploadID) (*domain.AnalysisJob, error) {
	const q = `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE upload_id=? LIMIT 1;`
	j, err := scanJob(r.db.QueryRowContext(ctx, q, uploadID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

// ClaimForProcessing: transisi kondisional, hanya satu caller yang menang.
// The WHERE clause is the compare-and-swap: pending/failed rows, or processing
// rows whose heartbeat is older than staleBefore.
func (r *JobRepository) ClaimForProcessing(ctx context.Context, id domain.JobID, staleBefore, now time.Time) (bool, error) {
	const q = `
UPDATE analysis_jobs
SET status='processing', attempts=attempts+1, error_message=NULL, updated_at=?
WHERE id=? AND (status IN ('pending','failed') OR (status='processing' AND updated_at < ?));
`
	res, err := r.db.ExecContext(ctx, q, now, id, staleBefore)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *JobRepository) MarkSucceeded(ctx context.Context, id domain.JobID, now time.Time) error {
	const q = `UPDATE analysis_jobs SET status='succeeded', error_message=NULL, updated_at=? WHERE id=?;`
	_, err := r.db.ExecContext(ctx, q, now, id)
	return err
}

func (r *JobRepository) MarkFailed(ctx context.Context, id domain.JobID, message string, now time.Time) error {
	const q = `UPDATE analysis_jobs SET status='failed', error_message=?, updated_at=? WHERE id=?;`
	_, err := r.db.ExecContext(ctx, q, message, now, id)
	return err
}

// NextEligible: oldest first biar job lama tidak starved
func (r *JobRepository) NextEligible(ctx context.Context, staleBefore time.Time) (*domain.AnalysisJob, error) {
	const q = `
SELECT ` + jobColumns + `
FROM analysis_jobs
WHERE status IN ('pending','failed') OR (status='processing' AND updated_at < ?)
ORDER BY created_at ASC
LIMIT 1;
`
	j, err := scanJob(r.db.QueryRowContext(ctx, q, staleBefore))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return j, nil
}

func scanJob(row rowScanner) (*domain.AnalysisJob, error) {
	var j domain.AnalysisJob
	var errMsg sql.NullString
	if err := row.Scan(&j.ID, &j.UploadID, &j.Status, &j.Attempts, &errMsg, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.ErrorMessage = errMsg.String
	return &j, nil
}
