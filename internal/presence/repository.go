package presence

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentra-proctor/backend/internal/models"
)

// Repository handles presence_logs, the join/leave audit rows backing the
// room snapshot section of export bundles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a presence log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LogJoin inserts a row when a connection joins a session.
func (r *Repository) LogJoin(ctx context.Context, sessionID, userID uuid.UUID, role string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO presence_logs (session_id, user_id, role, joined_at) VALUES ($1, $2, $3, NOW())`,
		sessionID, userID, role)
	return err
}

// LogLeave closes the most recent open row for this user in this session.
func (r *Repository) LogLeave(ctx context.Context, sessionID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE presence_logs p SET left_at = NOW()
		 FROM (SELECT id FROM presence_logs WHERE session_id = $1 AND user_id = $2 AND left_at IS NULL ORDER BY joined_at DESC LIMIT 1) AS sub
		 WHERE p.id = sub.id`,
		sessionID, userID)
	return err
}

// ListBySession returns all presence rows for a session, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.PresenceLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, user_id, role, joined_at, left_at
		 FROM presence_logs WHERE session_id = $1 ORDER BY joined_at DESC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.PresenceLog
	for rows.Next() {
		var row models.PresenceLog
		if err := rows.Scan(&row.ID, &row.SessionID, &row.UserID, &row.Role, &row.JoinedAt, &row.LeftAt); err != nil {
			return nil, err
		}
		list = append(list, row)
	}
	return list, rows.Err()
}
