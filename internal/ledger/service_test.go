package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/sentra-proctor/backend/internal/models"
)

// memStore mirrors the repository's append semantics in memory.
type memStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID][]models.LedgerEntry
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[uuid.UUID][]models.LedgerEntry)}
}

func (s *memStore) Append(ctx context.Context, sessionID uuid.UUID, canonical string) (*models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.entries[sessionID]
	seq := int64(0)
	prev := GenesisDigest
	if len(chain) > 0 {
		last := chain[len(chain)-1]
		seq = last.Seq + 1
		prev = last.PayloadDigest
	}
	entry := models.LedgerEntry{
		ID:            uuid.New(),
		SessionID:     sessionID,
		Seq:           seq,
		Payload:       canonical,
		PayloadDigest: ComputeDigest(canonical, prev),
		PrevDigest:    prev,
	}
	s.entries[sessionID] = append(chain, entry)
	return &entry, nil
}

func (s *memStore) Recent(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chain := s.entries[sessionID]
	if len(chain) > limit {
		chain = chain[len(chain)-limit:]
	}
	out := make([]models.LedgerEntry, len(chain))
	copy(out, chain)
	return out, nil
}

func TestServiceAppendLinksEntries(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	sessionID := uuid.New()
	ctx := context.Background()

	var prev string
	for i := 0; i < 3; i++ {
		entry, err := svc.Append(ctx, sessionID, ChainPayload{
			Kind:       PayloadKindIntegrityEvent,
			RefID:      uuid.New().String(),
			Category:   models.CategoryFocusLoss,
			Severity:   models.SeverityInfo,
			OccurredAt: "2026-08-30T12:00:00Z",
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if entry.Seq != int64(i) {
			t.Fatalf("expected seq %d, got %d", i, entry.Seq)
		}
		if i == 0 && entry.PrevDigest != GenesisDigest {
			t.Fatalf("expected genesis prev digest, got %s", entry.PrevDigest)
		}
		if i > 0 && entry.PrevDigest != prev {
			t.Fatalf("entry %d not linked to predecessor", i)
		}
		prev = entry.PayloadDigest
	}
}

func TestServiceVerifyCleanChain(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	sessionID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Append(ctx, sessionID, ChainPayload{
			Kind:       PayloadKindIntegrityEvent,
			RefID:      uuid.New().String(),
			OccurredAt: "2026-08-30T12:00:00Z",
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	result, err := svc.Verify(ctx, sessionID, 0)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Status != models.ChainValid {
		t.Fatalf("expected valid, got %s", result.Status)
	}
	if result.LinkedEvents != 5 {
		t.Fatalf("expected 5 linked, got %d", result.LinkedEvents)
	}
}

func TestServiceVerifyTruncatedWindow(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	sessionID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := svc.Append(ctx, sessionID, ChainPayload{
			Kind:       PayloadKindIntegrityEvent,
			RefID:      uuid.New().String(),
			OccurredAt: "2026-08-30T12:00:00Z",
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	result, err := svc.Verify(ctx, sessionID, 4)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Status != models.ChainPartial {
		t.Fatalf("expected partial, got %s", result.Status)
	}
	if result.CheckedEvents != 4 {
		t.Fatalf("expected 4 checked, got %d", result.CheckedEvents)
	}
	if result.LatestSeq == nil || *result.LatestSeq != 9 {
		t.Fatalf("expected latest seq 9, got %v", result.LatestSeq)
	}
}

func TestServiceVerifyUnknownSession(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	result, err := svc.Verify(context.Background(), uuid.New(), 0)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Status != models.ChainNotInitialized {
		t.Fatalf("expected not_initialized, got %s", result.Status)
	}
}

func TestServiceConcurrentAppends(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, nil)
	sessionID := uuid.New()
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Append(ctx, sessionID, ChainPayload{
				Kind:       PayloadKindIntegrityEvent,
				RefID:      uuid.New().String(),
				OccurredAt: "2026-08-30T12:00:00Z",
			})
		}()
	}
	wg.Wait()

	result, err := svc.Verify(ctx, sessionID, 0)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.Status != models.ChainValid {
		t.Fatalf("expected valid after concurrent appends, got %s", result.Status)
	}
	if result.LinkedEvents != n {
		t.Fatalf("expected %d linked, got %d", n, result.LinkedEvents)
	}
}
