package telemetry

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/telemetry-insight/internal/application"
	"github.com/bryanwahyu/telemetry-insight/internal/domain/ai"
	domain "github.com/bryanwahyu/telemetry-insight/internal/domain/telemetry"
)

const (
	defaultStaleAfter   = 60 * time.Second
	defaultInferTimeout = 60 * time.Second
)

// Service implements use-cases untuk telemetry analysis.
// Service is designed to be used concurrently and is thread-safe: all shared
// state lives in the job row, guarded by ClaimForProcessing.
type Service struct {
	Uploads   domain.UploadRepository
	Jobs      domain.JobRepository
	Reports   domain.ReportRepository
	Artifacts domain.ArtifactStore
	AI        ai.Client
	Clock     application.Clock

	// Model is recorded on every report row.
	Model string
	// StaleAfter is the heartbeat window after which a processing job is
	// presumed crashed. Zero means the 60s default.
	StaleAfter time.Duration
	// InferTimeout bounds the inference call. Zero means the 60s default.
	InferTimeout time.Duration
}

func (s *Service) staleAfter() time.Duration {
	if s.StaleAfter > 0 {
		return s.StaleAfter
	}
	return defaultStaleAfter
}

func (s *Service) inferTimeout() time.Duration {
	if s.InferTimeout > 0 {
		return s.InferTimeout
	}
	return defaultInferTimeout
}

//
// ==== USE CASES ====
//

// Command untuk ingest upload baru
type CreateUploadCommand struct {
	TenantID    string
	Filename    string
	SizeBytes   int64
	Sim         string
	Track       string
	Car         string
	SessionDate string
	ContentType string
}

// CreateUpload streams the file into the artifact store and records the row.
func (s *Service) CreateUpload(ctx context.Context, cmd CreateUploadCommand, body io.Reader) (*domain.Upload, error) {
	now := s.Clock.Now()
	id := domain.UploadID(uuid.New().String())

	key := fmt.Sprintf("%s/%s/%s", cmd.TenantID, id, cmd.Filename)
	if _, err := s.Artifacts.Upload(ctx, key, body, cmd.SizeBytes, cmd.ContentType); err != nil {
		return nil, fmt.Errorf("upload artifact: %w", err)
	}

	up := &domain.Upload{
		ID:          id,
		TenantID:    cmd.TenantID,
		Filename:    cmd.Filename,
		StoragePath: key,
		SizeBytes:   cmd.SizeBytes,
		Sim:         domain.SimTitle(cmd.Sim),
		Track:       cmd.Track,
		Car:         cmd.Car,
		SessionDate: cmd.SessionDate,
		Status:      domain.UploadStatusUploaded,
		CreatedAt:   now,
	}
	if err := s.Uploads.Save(ctx, up); err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	return up, nil
}

// EnqueueAnalysis upserts the job back to pending and flips the upload to
// processing; the actual run happens on the next pickup.
func (s *Service) EnqueueAnalysis(ctx context.Context, tenant string, uploadID domain.UploadID) error {
	up, err := s.Uploads.GetOwned(ctx, tenant, uploadID)
	if err != nil {
		return err
	}
	if up == nil {
		return fmt.Errorf("upload not found: %s", uploadID)
	}

	now := s.Clock.Now()
	job := &domain.AnalysisJob{
		ID:        domain.JobID(uuid.New().String()),
		UploadID:  up.ID,
		Status:    domain.JobStatusPending,
		Attempts:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Jobs.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return s.Uploads.UpdateStatus(ctx, up.ID, domain.UploadStatusProcessing)
}

// RequestAnalysis is the idempotent user-triggered entry point. Ownership of
// the upload is the caller's concern; the id is trusted here.
func (s *Service) RequestAnalysis(ctx context.Context, uploadID domain.UploadID) domain.JobResult {
	job, err := s.Jobs.GetByUpload(ctx, uploadID)
	if err != nil {
		return domain.JobResult{Status: domain.ResultError, Message: "unable to fetch analysis job"}
	}

	if job == nil {
		now := s.Clock.Now()
		job = &domain.AnalysisJob{
			ID:        domain.JobID(uuid.New().String()),
			UploadID:  uploadID,
			Status:    domain.JobStatusPending,
			Attempts:  0,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.Jobs.Create(ctx, job); err != nil {
			return domain.JobResult{Status: domain.ResultError, Message: "unable to create analysis job"}
		}
		return s.execute(ctx, job)
	}

	if job.Status == domain.JobStatusProcessing {
		// fresh heartbeat → someone else is on it, back off
		if s.Clock.Now().Sub(job.UpdatedAt) < s.staleAfter() {
			return domain.JobResult{Status: domain.ResultProcessing, UploadID: uploadID}
		}
		log.Printf("restarting stale job %s (last updated %s)", job.ID, job.UpdatedAt.Format(time.RFC3339))
	}

	if job.Status == domain.JobStatusSucceeded {
		return domain.JobResult{Status: domain.ResultProcessed, UploadID: uploadID}
	}

	return s.execute(ctx, job)
}

// ProcessNext is the sweep entry point: oldest pending/failed/stale job first,
// so older work is never starved.
func (s *Service) ProcessNext(ctx context.Context) domain.JobResult {
	staleBefore := s.Clock.Now().Add(-s.staleAfter())
	job, err := s.Jobs.NextEligible(ctx, staleBefore)
	if err != nil {
		return domain.JobResult{Status: domain.ResultError, Message: "unable to read job status"}
	}
	if job == nil {
		return domain.JobResult{Status: domain.ResultIdle}
	}
	return s.execute(ctx, job)
}

// execute is the single code path both entry points converge on. Re-running it
// for the same upload is harmless: the report is an upsert and the status
// writes are absolute.
func (s *Service) execute(ctx context.Context, job *domain.AnalysisJob) domain.JobResult {
	now := s.Clock.Now()

	// The claim doubles as the staleness heartbeat: attempts+1, error cleared,
	// updated_at advanced. Losing the race means another caller holds the job.
	claimed, err := s.Jobs.ClaimForProcessing(ctx, job.ID, now.Add(-s.staleAfter()), now)
	if err != nil {
		return domain.JobResult{Status: domain.ResultError, Message: fmt.Sprintf("unable to claim job: %v", err)}
	}
	if !claimed {
		return domain.JobResult{Status: domain.ResultProcessing, UploadID: job.UploadID}
	}

	up, err := s.Uploads.Get(ctx, job.UploadID)
	if err != nil {
		return s.fail(ctx, job, fmt.Errorf("load upload: %w", err))
	}
	if up == nil {
		return s.fail(ctx, job, fmt.Errorf("upload not found for job"))
	}

	fileText, err := s.Artifacts.Download(ctx, up.StoragePath)
	if err != nil {
		return s.fail(ctx, job, fmt.Errorf("download telemetry file: %w", err))
	}

	preview := domain.ParsePreview(fileText)

	// Inference errors degrade into a failed-mode report, they never escape.
	var raw *ai.RawInsights
	inferCtx, cancel := context.WithTimeout(ctx, s.inferTimeout())
	raw, err = s.AI.GenerateInsights(inferCtx, ai.InsightRequest{
		UploadID:    string(up.ID),
		Filename:    up.Filename,
		Sim:         string(up.Sim),
		Track:       up.Track,
		Car:         up.Car,
		SessionDate: up.SessionDate,
		RawSample:   preview.RawSample,
		FileText:    fileText,
	})
	cancel()
	failed := err != nil || raw.Unusable()
	if failed {
		log.Printf("inference failed for upload %s: %v", up.ID, err)
		raw = nil
	}

	body := domain.Normalize(raw, preview, failed)

	report := &domain.Report{
		ID:        uuid.New().String(),
		UploadID:  up.ID,
		Model:     s.Model,
		Body:      body,
		CreatedAt: now,
	}
	if raw != nil {
		if raw.Model != "" {
			report.Model = raw.Model
		}
		report.PromptTokens = raw.PromptTokens
		report.CompletionTokens = raw.CompletionTokens
	}
	if err := s.Reports.Upsert(ctx, report); err != nil {
		return s.fail(ctx, job, fmt.Errorf("upsert report: %w", err))
	}

	// Even a failed-degradation report is a renderable result: the upload is
	// done, not stuck.
	if err := s.Uploads.UpdateStatus(ctx, up.ID, domain.UploadStatusReported); err != nil {
		return s.fail(ctx, job, fmt.Errorf("update upload status: %w", err))
	}

	if err := s.Jobs.MarkSucceeded(ctx, job.ID, s.Clock.Now()); err != nil {
		return s.fail(ctx, job, fmt.Errorf("mark job succeeded: %w", err))
	}

	return domain.JobResult{Status: domain.ResultProcessed, UploadID: up.ID}
}

// fail records the failure on job and upload; the next pickup retries.
func (s *Service) fail(ctx context.Context, job *domain.AnalysisJob, cause error) domain.JobResult {
	log.Printf("analysis job %s failed: %v", job.ID, cause)
	now := s.Clock.Now()
	_ = s.Jobs.MarkFailed(ctx, job.ID, cause.Error(), now)
	_ = s.Uploads.MarkError(ctx, job.UploadID, cause.Error())
	return domain.JobResult{Status: domain.ResultError, UploadID: job.UploadID, Message: cause.Error()}
}

//
// ==== QUERIES ====
//

// StatusResult pairs the upload state with the report body when present.
type StatusResult struct {
	Status domain.UploadStatus `json:"status"`
	Report *domain.ReportBody  `json:"report"`
}

// Status answers a poll. When the upload is not reported yet it kicks the job
// inline first ("lazy worker") so polling converges even without a sweep
// running; the claim keeps the kick safe against a concurrent sweep.
func (s *Service) Status(ctx context.Context, tenant string, uploadID domain.UploadID) (*StatusResult, error) {
	up, err := s.Uploads.GetOwned(ctx, tenant, uploadID)
	if err != nil {
		return nil, err
	}
	if up == nil {
		return nil, nil
	}

	if up.Status == domain.UploadStatusUploaded || up.Status == domain.UploadStatusProcessing {
		_ = s.RequestAnalysis(ctx, up.ID)
		if refreshed, err := s.Uploads.GetOwned(ctx, tenant, uploadID); err == nil && refreshed != nil {
			up = refreshed
		}
	}

	res := &StatusResult{Status: up.Status}
	report, err := s.Reports.GetByUpload(ctx, up.ID)
	if err != nil {
		return nil, err
	}
	if report != nil {
		res.Report = &report.Body
	}
	return res, nil
}

// Preview downloads the artifact and parses it without touching job state.
func (s *Service) Preview(ctx context.Context, tenant string, uploadID domain.UploadID) (*domain.Upload, *domain.Preview, error) {
	up, err := s.Uploads.GetOwned(ctx, tenant, uploadID)
	if err != nil {
		return nil, nil, err
	}
	if up == nil {
		return nil, nil, nil
	}
	text, err := s.Artifacts.Download(ctx, up.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("read file contents: %w", err)
	}
	preview := domain.ParsePreview(text)
	return up, &preview, nil
}

// Latest ambil N upload terakhir
func (s *Service) Latest(ctx context.Context, tenant string, limit int) ([]*domain.Upload, error) {
	return s.Uploads.Latest(ctx, tenant, limit)
}

// Get ambil 1 upload by id (tenant scoped)
func (s *Service) Get(ctx context.Context, tenant string, id domain.UploadID) (*domain.Upload, error) {
	return s.Uploads.GetOwned(ctx, tenant, id)
}
