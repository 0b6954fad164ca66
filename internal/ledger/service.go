package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentra-proctor/backend/internal/models"
)

// Verify scan window bounds.
const (
	MinVerifyLimit     = 1
	MaxVerifyLimit     = 500
	DefaultVerifyLimit = 500
)

// Store is the persistence contract the service needs. Implemented by
// Repository; tests substitute an in-memory store.
type Store interface {
	Append(ctx context.Context, sessionID uuid.UUID, canonical string) (*models.LedgerEntry, error)
	Recent(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.LedgerEntry, error)
}

// Service is the evidence hash-chain ledger. Appends for a session are
// serialized through a per-session mutex on top of the store's transactional
// seq allocation; verification reads are lock-free.
type Service struct {
	store  Store
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*sync.Mutex
}

// NewService creates a ledger service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		logger:   logger,
		sessions: make(map[uuid.UUID]*sync.Mutex),
	}
}

// Append links a payload into the session's chain and persists the entry.
func (s *Service) Append(ctx context.Context, sessionID uuid.UUID, payload ChainPayload) (*models.LedgerEntry, error) {
	canonical, err := payload.Canonical()
	if err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	entry, err := s.store.Append(ctx, sessionID, canonical)
	if err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}
	s.logger.Debug("ledger entry appended",
		zap.String("session_id", sessionID.String()),
		zap.Int64("seq", entry.Seq),
		zap.String("kind", payload.Kind))
	return entry, nil
}

// Verify scans the most recent limit entries (clamped to 1..500, default 500)
// and re-derives digests. A broken or partial result is a reported fact, not
// an error.
func (s *Service) Verify(ctx context.Context, sessionID uuid.UUID, limit int) (models.ChainVerification, error) {
	limit = ClampVerifyLimit(limit)
	entries, err := s.store.Recent(ctx, sessionID, limit)
	if err != nil {
		return models.ChainVerification{}, fmt.Errorf("load chain window: %w", err)
	}
	return VerifyWindow(entries), nil
}

// ClampVerifyLimit bounds a requested scan window; non-positive means default.
func ClampVerifyLimit(limit int) int {
	if limit <= 0 {
		return DefaultVerifyLimit
	}
	if limit < MinVerifyLimit {
		return MinVerifyLimit
	}
	if limit > MaxVerifyLimit {
		return MaxVerifyLimit
	}
	return limit
}

func (s *Service) sessionLock(sessionID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.sessions[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.sessions[sessionID] = lock
	}
	return lock
}
