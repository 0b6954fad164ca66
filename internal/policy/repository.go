package policy

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

// Repository persists policy versions. Rows are append-only; see the unique
// partial index on (scope, scope_id, idempotency_key).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a policy version repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Latest returns the newest version for a scope, or nil when none exists.
func (r *Repository) Latest(ctx context.Context, scope string, scopeID uuid.UUID) (*models.PolicyVersion, error) {
	return r.queryOne(ctx,
		`SELECT id, scope, scope_id, policy, source, rollback_from, reason, idempotency_key, created_at, created_by
		 FROM policy_versions WHERE scope = $1 AND scope_id = $2
		 ORDER BY created_at DESC LIMIT 1`,
		scope, scopeID)
}

// GetByID returns a version by id, or nil when not found.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.PolicyVersion, error) {
	return r.queryOne(ctx,
		`SELECT id, scope, scope_id, policy, source, rollback_from, reason, idempotency_key, created_at, created_by
		 FROM policy_versions WHERE id = $1`,
		id)
}

// History returns versions for a scope, newest first.
func (r *Repository) History(ctx context.Context, scope string, scopeID uuid.UUID, limit int) ([]models.PolicyVersion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, scope, scope_id, policy, source, rollback_from, reason, idempotency_key, created_at, created_by
		 FROM policy_versions WHERE scope = $1 AND scope_id = $2
		 ORDER BY created_at DESC LIMIT $3`,
		scope, scopeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var versions []models.PolicyVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	return versions, rows.Err()
}

// FindByIdempotencyKey scans the bounded recent window for a matching key.
func (r *Repository) FindByIdempotencyKey(ctx context.Context, scope string, scopeID uuid.UUID, key string, window int) (*models.PolicyVersion, error) {
	return r.queryOne(ctx,
		`SELECT id, scope, scope_id, policy, source, rollback_from, reason, idempotency_key, created_at, created_by
		 FROM (SELECT * FROM policy_versions WHERE scope = $1 AND scope_id = $2 ORDER BY created_at DESC LIMIT $3) AS w
		 WHERE idempotency_key = $4
		 ORDER BY created_at DESC LIMIT 1`,
		scope, scopeID, window, key)
}

// Insert appends a new version. Returns ErrDuplicateIdempotencyKey when the
// unique index rejects it.
func (r *Repository) Insert(ctx context.Context, v *models.PolicyVersion) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO policy_versions (scope, scope_id, policy, source, rollback_from, reason, idempotency_key, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		v.Scope, v.ScopeID, v.Fields, v.Source, v.RollbackFrom, v.Reason, v.IdempotencyKey, v.CreatedBy,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateIdempotencyKey
		}
		return err
	}
	return nil
}

func (r *Repository) queryOne(ctx context.Context, query string, args ...interface{}) (*models.PolicyVersion, error) {
	row := r.pool.QueryRow(ctx, query, args...)
	v, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func scanVersion(row pgx.Row) (*models.PolicyVersion, error) {
	var v models.PolicyVersion
	err := row.Scan(&v.ID, &v.Scope, &v.ScopeID, &v.Fields, &v.Source, &v.RollbackFrom, &v.Reason, &v.IdempotencyKey, &v.CreatedAt, &v.CreatedBy)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
