package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/bryanwahyu/telemetry-insight/internal/domain/telemetry"
)

type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Upsert keyed by upload_id (unique): re-running an analysis overwrites the
// previous report instead of duplicating it.
func (r *ReportRepository) Upsert(ctx context.Context, rep *domain.Report) error {
	body, err := json.Marshal(rep.Body)
	if err != nil {
		return fmt.Errorf("marshal report body: %w", err)
	}
	const q = `
INSERT INTO reports (id, upload_id, model, prompt_tokens, completion_tokens, report_json, created_at)
VALUES (?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 model=VALUES(model),
 prompt_tokens=VALUES(prompt_tokens),
 completion_tokens=VALUES(completion_tokens),
 report_json=VALUES(report_json);
`
	_, err = r.db.ExecContext(ctx, q,
		rep.ID, rep.UploadID, nullString(rep.Model),
		rep.PromptTokens, rep.CompletionTokens, body, rep.CreatedAt,
	)
	return err
}

func (r *ReportRepository) GetByUpload(ctx context.Context, uploadID domain.UploadID) (*domain.Report, error) {
	const q = `
SELECT id, upload_id, model, prompt_tokens, completion_tokens, report_json, created_at
FROM reports WHERE upload_id=? LIMIT 1;
`
	var rep domain.Report
	var model sql.NullString
	var body []byte
	err := r.db.QueryRowContext(ctx, q, uploadID).Scan(
		&rep.ID, &rep.UploadID, &model, &rep.PromptTokens, &rep.CompletionTokens, &body, &rep.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rep.Model = model.String
	if err := json.Unmarshal(body, &rep.Body); err != nil {
		return nil, fmt.Errorf("decode report body: %w", err)
	}
	return &rep, nil
}
