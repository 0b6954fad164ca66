package integrity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentra-proctor/backend/internal/models"
)

// Query pagination bounds.
const (
	MaxQueryLimit     = 200
	DefaultQueryLimit = 50
)

// Filter narrows the evidence timeline projection.
type Filter struct {
	Category string // exact match
	Severity string // exact match
	Action   string // substring
	Reason   string // substring
	Limit    int
	Offset   int
}

// Repository persists integrity events. Rows are append-only.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an integrity event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends an integrity event row.
func (r *Repository) Insert(ctx context.Context, ev *models.IntegrityEvent) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO integrity_events (session_id, category, severity, action, reason, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		ev.SessionID, ev.Category, ev.Severity, ev.Action, ev.Reason, ev.Metadata,
	).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert integrity event: %w", err)
	}
	return nil
}

// List returns a filtered, paginated timeline for a session, newest first.
func (r *Repository) List(ctx context.Context, sessionID uuid.UUID, f Filter) ([]models.IntegrityEvent, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	conds := []string{"session_id = $1"}
	args := []interface{}{sessionID}
	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Severity != "" {
		args = append(args, f.Severity)
		conds = append(conds, fmt.Sprintf("severity = $%d", len(args)))
	}
	if f.Action != "" {
		args = append(args, "%"+f.Action+"%")
		conds = append(conds, fmt.Sprintf("action ILIKE $%d", len(args)))
	}
	if f.Reason != "" {
		args = append(args, "%"+f.Reason+"%")
		conds = append(conds, fmt.Sprintf("reason ILIKE $%d", len(args)))
	}
	args = append(args, limit, offset)

	query := fmt.Sprintf(
		`SELECT id, session_id, category, severity, action, reason, metadata, created_at
		 FROM integrity_events WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		strings.Join(conds, " AND "), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []models.IntegrityEvent
	for rows.Next() {
		var ev models.IntegrityEvent
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Category, &ev.Severity, &ev.Action, &ev.Reason, &ev.Metadata, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ListAll returns the full timeline for a session in chronological order,
// for export bundle assembly.
func (r *Repository) ListAll(ctx context.Context, sessionID uuid.UUID) ([]models.IntegrityEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, category, severity, action, reason, metadata, created_at
		 FROM integrity_events WHERE session_id = $1 ORDER BY created_at ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []models.IntegrityEvent
	for rows.Next() {
		var ev models.IntegrityEvent
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Category, &ev.Severity, &ev.Action, &ev.Reason, &ev.Metadata, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
