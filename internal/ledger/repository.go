package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentra-proctor/backend/internal/models"
)

const pgUniqueViolation = "23505"

// Repository persists ledger entries. Append is the only mutation; entries
// are never edited or deleted.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a ledger repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Append assigns the next seq for the session and inserts the entry in one
// transaction. The previous entry row is locked so concurrent appends for
// the same session serialize on seq allocation. An append from another
// instance can still win the race after the head lock releases; the unique
// (session_id, seq) index catches that and the allocation is retried once
// against the new head.
func (r *Repository) Append(ctx context.Context, sessionID uuid.UUID, canonical string) (*models.LedgerEntry, error) {
	entry, err := r.appendOnce(ctx, sessionID, canonical)
	if err != nil && isSeqConflict(err) {
		entry, err = r.appendOnce(ctx, sessionID, canonical)
	}
	return entry, err
}

func isSeqConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (r *Repository) appendOnce(ctx context.Context, sessionID uuid.UUID, canonical string) (*models.LedgerEntry, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var prevSeq int64
	var prevDigest string
	err = tx.QueryRow(ctx,
		`SELECT seq, payload_digest FROM ledger_entries
		 WHERE session_id = $1 ORDER BY seq DESC LIMIT 1 FOR UPDATE`,
		sessionID).Scan(&prevSeq, &prevDigest)

	entry := models.LedgerEntry{SessionID: sessionID, Payload: canonical}
	switch err {
	case nil:
		entry.Seq = prevSeq + 1
		entry.PrevDigest = prevDigest
	case pgx.ErrNoRows:
		entry.Seq = 0
		entry.PrevDigest = GenesisDigest
	default:
		return nil, fmt.Errorf("read chain head: %w", err)
	}
	entry.PayloadDigest = ComputeDigest(canonical, entry.PrevDigest)

	err = tx.QueryRow(ctx,
		`INSERT INTO ledger_entries (session_id, seq, payload, payload_digest, prev_digest)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		sessionID, entry.Seq, entry.Payload, entry.PayloadDigest, entry.PrevDigest,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &entry, nil
}

// Recent returns the most recent limit entries for a session in ascending
// seq order, read in a single query so verification sees a consistent
// snapshot.
func (r *Repository) Recent(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, seq, payload, payload_digest, prev_digest, created_at
		 FROM (SELECT * FROM ledger_entries WHERE session_id = $1 ORDER BY seq DESC LIMIT $2) AS w
		 ORDER BY seq ASC`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Seq, &e.Payload, &e.PayloadDigest, &e.PrevDigest, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
