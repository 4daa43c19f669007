package telemetry

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/telemetry-insight/internal/domain/ai"
	domain "github.com/bryanwahyu/telemetry-insight/internal/domain/telemetry"
)

//
// ==== in-memory fakes over the domain ports ====
//

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeUploads struct {
	mu    sync.Mutex
	items map[domain.UploadID]*domain.Upload
}

func newFakeUploads() *fakeUploads {
	return &fakeUploads{items: map[domain.UploadID]*domain.Upload{}}
}

func (f *fakeUploads) Save(_ context.Context, u *domain.Upload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.items[u.ID] = &cp
	return nil
}

func (f *fakeUploads) Get(_ context.Context, id domain.UploadID) (*domain.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.items[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeUploads) GetOwned(ctx context.Context, tenant string, id domain.UploadID) (*domain.Upload, error) {
	u, err := f.Get(ctx, id)
	if err != nil || u == nil || u.TenantID != tenant {
		return nil, err
	}
	return u, nil
}

func (f *fakeUploads) Latest(_ context.Context, tenant string, limit int) ([]*domain.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Upload
	for _, u := range f.items {
		if u.TenantID == tenant {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeUploads) UpdateStatus(_ context.Context, id domain.UploadID, status domain.UploadStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.items[id]; ok {
		u.Status = status
	}
	return nil
}

func (f *fakeUploads) MarkError(_ context.Context, id domain.UploadID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.items[id]; ok {
		u.Status = domain.UploadStatusError
		u.ErrorMessage = message
	}
	return nil
}

func (f *fakeUploads) status(id domain.UploadID) domain.UploadStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id].Status
}

type fakeJobs struct {
	mu    sync.Mutex
	items map[domain.JobID]*domain.AnalysisJob
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{items: map[domain.JobID]*domain.AnalysisJob{}}
}

func (f *fakeJobs) Create(_ context.Context, j *domain.AnalysisJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *j
	f.items[j.ID] = &cp
	return nil
}

func (f *fakeJobs) Enqueue(_ context.Context, j *domain.AnalysisJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.UploadID == j.UploadID {
			existing.Status = domain.JobStatusPending
			existing.Attempts = 0
			existing.ErrorMessage = ""
			existing.UpdatedAt = j.UpdatedAt
			return nil
		}
	}
	cp := *j
	f.items[j.ID] = &cp
	return nil
}

func (f *fakeJobs) GetByUpload(_ context.Context, uploadID domain.UploadID) (*domain.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.items {
		if j.UploadID == uploadID {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

// ClaimForProcessing mirrors the conditional UPDATE of the SQL repos.
func (f *fakeJobs) ClaimForProcessing(_ context.Context, id domain.JobID, staleBefore, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.items[id]
	if !ok {
		return false, nil
	}
	eligible := j.Status == domain.JobStatusPending ||
		j.Status == domain.JobStatusFailed ||
		(j.Status == domain.JobStatusProcessing && j.UpdatedAt.Before(staleBefore))
	if !eligible {
		return false, nil
	}
	j.Status = domain.JobStatusProcessing
	j.Attempts++
	j.ErrorMessage = ""
	j.UpdatedAt = now
	return true, nil
}

func (f *fakeJobs) MarkSucceeded(_ context.Context, id domain.JobID, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.items[id]; ok {
		j.Status = domain.JobStatusSucceeded
		j.ErrorMessage = ""
		j.UpdatedAt = now
	}
	return nil
}

func (f *fakeJobs) MarkFailed(_ context.Context, id domain.JobID, message string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.items[id]; ok {
		j.Status = domain.JobStatusFailed
		j.ErrorMessage = message
		j.UpdatedAt = now
	}
	return nil
}

func (f *fakeJobs) NextEligible(_ context.Context, staleBefore time.Time) (*domain.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var oldest *domain.AnalysisJob
	for _, j := range f.items {
		eligible := j.Status == domain.JobStatusPending ||
			j.Status == domain.JobStatusFailed ||
			(j.Status == domain.JobStatusProcessing && j.UpdatedAt.Before(staleBefore))
		if !eligible {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}
	cp := *oldest
	return &cp, nil
}

func (f *fakeJobs) byUpload(uploadID domain.UploadID) *domain.AnalysisJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.items {
		if j.UploadID == uploadID {
			cp := *j
			return &cp
		}
	}
	return nil
}

type fakeReports struct {
	mu      sync.Mutex
	items   map[domain.UploadID]*domain.Report
	upserts int
}

func newFakeReports() *fakeReports {
	return &fakeReports{items: map[domain.UploadID]*domain.Report{}}
}

func (f *fakeReports) Upsert(_ context.Context, r *domain.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.items[r.UploadID] = &cp
	f.upserts++
	return nil
}

func (f *fakeReports) GetByUpload(_ context.Context, uploadID domain.UploadID) (*domain.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.items[uploadID]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

type fakeStore struct {
	files       map[string]string
	downloadErr error
}

func (f *fakeStore) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if f.files == nil {
		f.files = map[string]string{}
	}
	f.files[key] = string(data)
	return "http://store/" + key, nil
}

func (f *fakeStore) Download(_ context.Context, key string) (string, error) {
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	return f.files[key], nil
}

type fakeAI struct {
	mu      sync.Mutex
	resp    *ai.RawInsights
	err     error
	calls   int
	started chan struct{} // closed on first call when set
	release chan struct{} // blocks the call until closed when set
}

func (f *fakeAI) GenerateInsights(ctx context.Context, _ ai.InsightRequest) (*ai.RawInsights, error) {
	f.mu.Lock()
	f.calls++
	started := f.started
	release := f.release
	f.started = nil
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.resp == nil {
		return nil, ai.ErrEmptyResponse
	}
	cp := *f.resp
	return &cp, nil
}

func (f *fakeAI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

//
// ==== harness ====
//

func goodInsights() *ai.RawInsights {
	return &ai.RawInsights{
		Summary: "Solid session.",
		Recommendations: []ai.RawRecommendation{
			{Title: "Brake later", Detail: "10m deeper into T1."},
		},
		Sections: ai.RawSections{
			Pace:        "p",
			Braking:     "b",
			Throttle:    "t",
			Corners:     "c",
			SessionPlan: "s",
		},
		Segments: []ai.RawSegment{
			{Name: "T1", Issue: "early apex", Improvement: "delay 2m"},
		},
	}
}

type harness struct {
	svc     *Service
	uploads *fakeUploads
	jobs    *fakeJobs
	reports *fakeReports
	store   *fakeStore
	ai      *fakeAI
	clock   *fakeClock
}

func newHarness() *harness {
	h := &harness{
		uploads: newFakeUploads(),
		jobs:    newFakeJobs(),
		reports: newFakeReports(),
		store:   &fakeStore{files: map[string]string{}},
		ai:      &fakeAI{resp: goodInsights()},
		clock:   &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	h.svc = &Service{
		Uploads:   h.uploads,
		Jobs:      h.jobs,
		Reports:   h.reports,
		Artifacts: h.store,
		AI:        h.ai,
		Clock:     h.clock,
		Model:     "gpt-4o-mini",
	}
	return h
}

func (h *harness) seedUpload(id domain.UploadID) *domain.Upload {
	up := &domain.Upload{
		ID:          id,
		TenantID:    "team-a",
		Filename:    "lap.csv",
		StoragePath: "team-a/" + string(id) + "/lap.csv",
		Status:      domain.UploadStatusUploaded,
		CreatedAt:   h.clock.Now(),
	}
	h.uploads.items[id] = up
	h.store.files[up.StoragePath] = "lap,speed\n1,210\n2,208"
	return up
}

func (h *harness) seedJob(uploadID domain.UploadID, status domain.JobStatus, createdAgo time.Duration, updatedAgo time.Duration) *domain.AnalysisJob {
	now := h.clock.Now()
	j := &domain.AnalysisJob{
		ID:        domain.JobID("job-" + string(uploadID)),
		UploadID:  uploadID,
		Status:    status,
		CreatedAt: now.Add(-createdAgo),
		UpdatedAt: now.Add(-updatedAgo),
	}
	h.jobs.items[j.ID] = j
	return j
}

//
// ==== tests ====
//

func TestRequestAnalysisFirstRun(t *testing.T) {
	h := newHarness()
	up := h.seedUpload("u1")

	res := h.svc.RequestAnalysis(context.Background(), up.ID)

	require.Equal(t, domain.ResultProcessed, res.Status)
	assert.Equal(t, up.ID, res.UploadID)
	assert.Equal(t, 1, h.ai.callCount())

	job := h.jobs.byUpload(up.ID)
	require.NotNil(t, job)
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Empty(t, job.ErrorMessage)

	assert.Equal(t, domain.UploadStatusReported, h.uploads.status(up.ID))

	report, err := h.reports.GetByUpload(context.Background(), up.ID)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, domain.ReportStatusOK, report.Body.Status)
	assert.Equal(t, "gpt-4o-mini", report.Model)
	assert.Equal(t, []string{"lap", "speed"}, report.Body.Preview.Headers)
}

func TestRequestAnalysisBacksOffWhileProcessingFresh(t *testing.T) {
	h := newHarness()
	up := h.seedUpload("u1")
	h.seedJob(up.ID, domain.JobStatusProcessing, time.Minute, 10*time.Second)

	res := h.svc.RequestAnalysis(context.Background(), up.ID)

	assert.Equal(t, domain.ResultProcessing, res.Status)
	assert.Equal(t, 0, h.ai.callCount())
	assert.Equal(t, 0, h.jobs.byUpload(up.ID).Attempts)
}

func TestRequestAnalysisRecoversStaleProcessing(t *testing.T) {
	h := newHarness()
	up := h.seedUpload("u1")
	h.seedJob(up.ID, domain.JobStatusProcessing, 5*time.Minute, 2*time.Minute)

	res := h.svc.RequestAnalysis(context.Background(), up.ID)

	assert.Equal(t, domain.ResultProcessed, res.Status)
	assert.Equal(t, 1, h.ai.callCount())
	assert.Equal(t, domain.JobStatusSucceeded, h.jobs.byUpload(up.ID).Status)
}

func TestRequestAnalysisSucceededShortCircuits(t *testing.T) {
	h := newHarness()
	up := h.seedUpload("u1")
	h.seedJob(up.ID, domain.JobStatusSucceeded, time.Minute, time.Minute)

	res := h.svc.RequestAnalysis(context.Background(), up.ID)

	assert.Equal(t, domain.ResultProcessed, res.Status)
	assert.Equal(t, 0, h.ai.callCount())
}

func TestRequestAnalysisRetriesFailedJob(t *testing.T) {
	h := newHarness()
	up := h.seedUpload("u1")
	j := h.seedJob(up.ID, domain.JobStatusFailed, time.Minute, time.Minute)
	h.jobs.items[j.ID].ErrorMessage = "previous failure"

	res := h.svc.RequestAnalysis(context.Background(), up.ID)

	assert.Equal(t, domain.ResultProcessed, res.Status)
	job := h.jobs.byUpload(up.ID)
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Empty(t, job.ErrorMessage)
}

// Two near-simultaneous callers: the second must observe the fresh heartbeat
// and back off while the first still holds the job.
func TestRequestAnalysisConcurrentCallersSingleExecution(t *testing.T) {
	h := newHarness()
	up := h.seedUpload("u1")

	started := make(chan struct{})
	release := make(chan struct{})
	h.ai.started = started
	h.ai.release = release

	done := make(chan domain.JobResult, 1)
	go func() {
		done <- h.svc.RequestAnalysis(context.Background(), up.ID)
	}()

	<-started // first caller is inside the inference call, job claimed

	second := h.svc.RequestAnalysis(context.Background(), up.ID)
	assert.Equal(t, domain.ResultProcessing, second.Status)

	close(release)
	first := <-done
	assert.Equal(t, domain.ResultProcessed, first.Status)
	assert.Equal(t, 1, h.ai.callCount())
	assert.Equal(t, 1, h.jobs.byUpload(up.ID).Attempts)
}

func TestExecuteIdempotentOnDuplicateRun(t *testing.T) {
	h := newHarness()
	up := h.seedUpload("u1")

	first := h.svc.RequestAnalysis(context.Background(), up.ID)
	require.Equal(t, domain.ResultProcessed, first.Status)

	// false-positive staleness: force the job back to an eligible state and
	// run it again
	j := h.jobs.byUpload(up.ID)
	h.jobs.items[j.ID].Status = domain.JobStatusFailed

	second := h.svc.RequestAnalysis(context.Background(), up.ID)
	require.Equal(t, domain.ResultProcessed, second.Status)

	// one report row, overwritten, upload still reported
	assert.Equal(t, 2, h.reports.upserts)
	report, _ := h.reports.GetByUpload(context.Background(), up.ID)
	require.NotNil(t, report)
	assert.Equal(t, domain.UploadStatusReported, h.uploads.status(up.ID))
	assert.Equal(t, 2, h.jobs.byUpload(up.ID).Attempts)
}

func TestInferenceFailureStillProducesReport(t *testing.T) {
	h := newHarness()
	up := h.seedUpload("u1")
	h.ai.resp = nil
	h.ai.err = errors.New("inference exploded")

	res := h.svc.RequestAnalysis(context.Background(), up.ID)

	// the job succeeded: it successfully recorded a failed analysis
	require.Equal(t, domain.ResultProcessed, res.Status)
	assert.Equal(t, domain.JobStatusSucceeded, h.jobs.byUpload(up.ID).Status)
	assert.Equal(t, domain.UploadStatusReported, h.uploads.status(up.ID))

	report, _ := h.reports.GetByUpload(context.Background(), up.ID)
	require.NotNil(t, report)
	assert.Equal(t, domain.ReportStatusFailed, report.Body.Status)
	assert.Equal(t, "Analysis failed for this section.", report.Body.Sections.Pace)
}

func TestEmptyInferenceResponseDegrades(t *testing.T) {
	h := newHarness()
	up := h.seedUpload("u1")
	h.ai.resp = &ai.RawInsights{} // completed but unusable

	res := h.svc.RequestAnalysis(context.Background(), up.ID)

	require.Equal(t, domain.ResultProcessed, res.Status)
	report, _ := h.reports.GetByUpload(context.Background(), up.ID)
	require.NotNil(t, report)
	assert.Equal(t, domain.ReportStatusFailed, report.Body.Status)
}

func TestDownloadFailureFailsJob(t *testing.T) {
	h := newHarness()
	up := h.seedUpload("u1")
	h.store.downloadErr = errors.New("bucket unreachable")

	res := h.svc.RequestAnalysis(context.Background(), up.ID)

	require.Equal(t, domain.ResultError, res.Status)
	assert.Contains(t, res.Message, "bucket unreachable")

	job := h.jobs.byUpload(up.ID)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "bucket unreachable")
	assert.Equal(t, domain.UploadStatusError, h.uploads.status(up.ID))
	assert.Equal(t, 0, h.ai.callCount())
}

func TestMissingUploadFailsJob(t *testing.T) {
	h := newHarness()
	h.seedJob("ghost", domain.JobStatusPending, 0, 0)

	res := h.svc.ProcessNext(context.Background())

	require.Equal(t, domain.ResultError, res.Status)
	assert.Contains(t, res.Message, "upload not found")
	assert.Equal(t, domain.JobStatusFailed, h.jobs.byUpload("ghost").Status)
}

func TestProcessNextIdle(t *testing.T) {
	h := newHarness()

	res := h.svc.ProcessNext(context.Background())

	assert.Equal(t, domain.ResultIdle, res.Status)
	assert.Equal(t, 0, h.ai.callCount())
	assert.Equal(t, 0, h.reports.upserts)
}

func TestProcessNextPicksOldestFirst(t *testing.T) {
	h := newHarness()
	upOld := h.seedUpload("old")
	upNew := h.seedUpload("new")
	h.seedJob(upOld.ID, domain.JobStatusFailed, 10*time.Minute, 10*time.Minute)
	h.seedJob(upNew.ID, domain.JobStatusPending, time.Minute, time.Minute)

	res := h.svc.ProcessNext(context.Background())

	require.Equal(t, domain.ResultProcessed, res.Status)
	assert.Equal(t, upOld.ID, res.UploadID)
	assert.Equal(t, domain.JobStatusSucceeded, h.jobs.byUpload(upOld.ID).Status)
	assert.Equal(t, domain.JobStatusPending, h.jobs.byUpload(upNew.ID).Status)
}

func TestProcessNextRecoversStaleProcessing(t *testing.T) {
	h := newHarness()
	up := h.seedUpload("u1")
	h.seedJob(up.ID, domain.JobStatusProcessing, 5*time.Minute, 3*time.Minute)

	res := h.svc.ProcessNext(context.Background())

	require.Equal(t, domain.ResultProcessed, res.Status)
	assert.Equal(t, domain.JobStatusSucceeded, h.jobs.byUpload(up.ID).Status)
}

func TestProcessNextSkipsFreshProcessing(t *testing.T) {
	h := newHarness()
	up := h.seedUpload("u1")
	h.seedJob(up.ID, domain.JobStatusProcessing, time.Minute, 5*time.Second)

	res := h.svc.ProcessNext(context.Background())

	assert.Equal(t, domain.ResultIdle, res.Status)
	assert.Equal(t, 0, h.ai.callCount())
}

func TestEnqueueAnalysis(t *testing.T) {
	h := newHarness()
	up := h.seedUpload("u1")

	err := h.svc.EnqueueAnalysis(context.Background(), "team-a", up.ID)

	require.NoError(t, err)
	job := h.jobs.byUpload(up.ID)
	require.NotNil(t, job)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.Attempts)
	assert.Equal(t, domain.UploadStatusProcessing, h.uploads.status(up.ID))
}

func TestEnqueueAnalysisForeignTenant(t *testing.T) {
	h := newHarness()
	up := h.seedUpload("u1")

	err := h.svc.EnqueueAnalysis(context.Background(), "team-b", up.ID)

	require.Error(t, err)
	assert.Nil(t, h.jobs.byUpload(up.ID))
}

func TestStatusLazyKick(t *testing.T) {
	h := newHarness()
	up := h.seedUpload("u1")

	res, err := h.svc.Status(context.Background(), "team-a", up.ID)

	require.NoError(t, err)
	require.NotNil(t, res)
	// the poll itself drove the job to completion
	assert.Equal(t, domain.UploadStatusReported, res.Status)
	require.NotNil(t, res.Report)
	assert.Equal(t, domain.ReportStatusOK, res.Report.Status)
	assert.Equal(t, 1, h.ai.callCount())
}

func TestStatusReportedDoesNotKick(t *testing.T) {
	h := newHarness()
	up := h.seedUpload("u1")
	require.Equal(t, domain.ResultProcessed, h.svc.RequestAnalysis(context.Background(), up.ID).Status)
	require.Equal(t, 1, h.ai.callCount())

	res, err := h.svc.Status(context.Background(), "team-a", up.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.UploadStatusReported, res.Status)
	assert.Equal(t, 1, h.ai.callCount())
}

func TestStatusUnknownUpload(t *testing.T) {
	h := newHarness()

	res, err := h.svc.Status(context.Background(), "team-a", "nope")

	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestCreateUpload(t *testing.T) {
	h := newHarness()

	up, err := h.svc.CreateUpload(context.Background(), CreateUploadCommand{
		TenantID: "team-a",
		Filename: "quali.csv",
		Sim:      "iRacing",
		Track:    "Silverstone",
	}, strings.NewReader("lap,speed\n1,200"))

	require.NoError(t, err)
	require.NotNil(t, up)
	assert.Equal(t, domain.UploadStatusUploaded, up.Status)
	assert.Contains(t, up.StoragePath, "team-a/")
	assert.Equal(t, "lap,speed\n1,200", h.store.files[up.StoragePath])
}
