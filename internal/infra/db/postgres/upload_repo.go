package postgres

import (
    "context"
    "database/sql"
    "errors"
    "time"

    domain "github.com/bryanwahyu/telemetry-insight/internal/domain/telemetry"
)

type UploadRepository struct { db *sql.DB }

func NewUploadRepository(db *sql.DB) *UploadRepository { return &UploadRepository{db: db} }

const uploadColumns = `id, tenant_id, filename, storage_path, size_bytes, sim, track, car, session_date, status, error_message, created_at`

// Save insert/update Upload record
func (r *UploadRepository) Save(ctx context.Context, u *domain.Upload) error {
    const q = `
INSERT INTO uploads
(id, tenant_id, filename, storage_path, size_bytes, sim, track, car, session_date, status, error_message, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
 status = EXCLUDED.status,
 error_message = EXCLUDED.error_message;`

    created := u.CreatedAt
    if created.IsZero() { created = time.Now() }

    _, err := r.db.ExecContext(ctx, q,
        u.ID, u.TenantID, u.Filename, u.StoragePath, u.SizeBytes,
        string(u.Sim), nullString(u.Track), nullString(u.Car), nullString(u.SessionDate),
        string(u.Status), nullString(u.ErrorMessage), created,
    )
    return err
}

func (r *UploadRepository) Get(ctx context.Context, id domain.UploadID) (*domain.Upload, error) {
    const q = `SELECT ` + uploadColumns + ` FROM uploads WHERE id=$1 LIMIT 1;`
    return r.scanOne(r.db.QueryRowContext(ctx, q, id))
}

func (r *UploadRepository) GetOwned(ctx context.Context, tenant string, id domain.UploadID) (*domain.Upload, error) {
    const q = `SELECT ` + uploadColumns + ` FROM uploads WHERE tenant_id=$1 AND id=$2 LIMIT 1;`
    return r.scanOne(r.db.QueryRowContext(ctx, q, tenant, id))
}

func (r *UploadRepository) Latest(ctx context.Context, tenant string, limit int) ([]*domain.Upload, error) {
    if limit <= 0 { limit = 20 }
    const q = `SELECT ` + uploadColumns + ` FROM uploads WHERE tenant_id=$1 ORDER BY created_at DESC LIMIT $2;`
    rows, err := r.db.QueryContext(ctx, q, tenant, limit)
    if err != nil { return nil, err }
    defer rows.Close()

    var out []*domain.Upload
    for rows.Next() {
        u, err := scanUpload(rows)
        if err != nil { return nil, err }
        out = append(out, u)
    }
    return out, rows.Err()
}

func (r *UploadRepository) UpdateStatus(ctx context.Context, id domain.UploadID, status domain.UploadStatus) error {
    const q = `UPDATE uploads SET status=$1 WHERE id=$2;`
    _, err := r.db.ExecContext(ctx, q, string(status), id)
    return err
}

func (r *UploadRepository) MarkError(ctx context.Context, id domain.UploadID, message string) error {
    const q = `UPDATE uploads SET status=$1, error_message=$2 WHERE id=$3;`
    _, err := r.db.ExecContext(ctx, q, string(domain.UploadStatusError), message, id)
    return err
}

type rowScanner interface { Scan(dest ...any) error }

func (r *UploadRepository) scanOne(row *sql.Row) (*domain.Upload, error) {
    u, err := scanUpload(row)
    if errors.Is(err, sql.ErrNoRows) { return nil, nil }
    if err != nil { return nil, err }
    return u, nil
}

func scanUpload(row rowScanner) (*domain.Upload, error) {
    var u domain.Upload
    var track, car, sessionDate, errMsg sql.NullString
    if err := row.Scan(
        &u.ID, &u.TenantID, &u.Filename, &u.StoragePath, &u.SizeBytes,
        &u.Sim, &track, &car, &sessionDate, &u.Status, &errMsg, &u.CreatedAt,
    ); err != nil {
        return nil, err
    }
    u.Track = track.String
    u.Car = car.String
    u.SessionDate = sessionDate.String
    u.ErrorMessage = errMsg.String
    return &u, nil
}
