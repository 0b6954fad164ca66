package export

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentra-proctor/backend/internal/models"
)

const pgUniqueViolation = "23505"

// ErrDuplicateIdempotencyKey is returned by Insert when the unique index
// rejects a concurrent duplicate.
var ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

// Repository persists export records. Rows are append-only.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an export record repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends an export record with a caller-assigned id (the bundle file
// keys embed it, so it is known before the write).
func (r *Repository) Insert(ctx context.Context, rec *models.ExportRecord) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO export_records (id, session_id, mode, files, summary, reason, idempotency_key, exported_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING exported_at`,
		rec.ID, rec.SessionID, rec.Mode, rec.Files, rec.Summary, rec.Reason, rec.IdempotencyKey, rec.ExportedBy,
	).Scan(&rec.ExportedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateIdempotencyKey
		}
		return err
	}
	return nil
}

// FindByIdempotencyKey scans the bounded recent window for a matching key.
func (r *Repository) FindByIdempotencyKey(ctx context.Context, sessionID uuid.UUID, key string, window int) (*models.ExportRecord, error) {
	return r.queryOne(ctx,
		`SELECT id, session_id, mode, files, summary, reason, idempotency_key, exported_at, exported_by
		 FROM (SELECT * FROM export_records WHERE session_id = $1 ORDER BY exported_at DESC LIMIT $2) AS w
		 WHERE idempotency_key = $3
		 ORDER BY exported_at DESC LIMIT 1`,
		sessionID, window, key)
}

// GetByID returns an export record by id, or nil when not found.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.ExportRecord, error) {
	return r.queryOne(ctx,
		`SELECT id, session_id, mode, files, summary, reason, idempotency_key, exported_at, exported_by
		 FROM export_records WHERE id = $1`,
		id)
}

// ListBySession returns export records for a session, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.ExportRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, mode, files, summary, reason, idempotency_key, exported_at, exported_by
		 FROM export_records WHERE session_id = $1 ORDER BY exported_at DESC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []models.ExportRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (r *Repository) queryOne(ctx context.Context, query string, args ...interface{}) (*models.ExportRecord, error) {
	row := r.pool.QueryRow(ctx, query, args...)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (*models.ExportRecord, error) {
	var rec models.ExportRecord
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.Mode, &rec.Files, &rec.Summary, &rec.Reason, &rec.IdempotencyKey, &rec.ExportedAt, &rec.ExportedBy)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
