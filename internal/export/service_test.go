package export

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sentra-proctor/backend/internal/ledger"
	"github.com/sentra-proctor/backend/internal/models"
	"github.com/sentra-proctor/backend/internal/policy"
	"github.com/sentra-proctor/backend/pkg/queue"
)

type memRecordStore struct {
	mu      sync.Mutex
	records []models.ExportRecord
}

func (s *memRecordStore) Insert(ctx context.Context, rec *models.ExportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.IdempotencyKey != nil {
		for i := range s.records {
			existing := s.records[i]
			if existing.SessionID == rec.SessionID &&
				existing.IdempotencyKey != nil && *existing.IdempotencyKey == *rec.IdempotencyKey {
				return ErrDuplicateIdempotencyKey
			}
		}
	}
	rec.ExportedAt = time.Now()
	s.records = append(s.records, *rec)
	return nil
}

func (s *memRecordStore) FindByIdempotencyKey(ctx context.Context, sessionID uuid.UUID, key string, window int) (*models.ExportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := 0
	for i := len(s.records) - 1; i >= 0 && seen < window; i-- {
		rec := s.records[i]
		if rec.SessionID != sessionID {
			continue
		}
		seen++
		if rec.IdempotencyKey != nil && *rec.IdempotencyKey == key {
			return &rec, nil
		}
	}
	return nil, nil
}

type fakeChain struct {
	mu       sync.Mutex
	appended []ledger.ChainPayload
	fail     bool
}

func (c *fakeChain) Append(ctx context.Context, sessionID uuid.UUID, payload ledger.ChainPayload) (*models.LedgerEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, errors.New("append failed")
	}
	c.appended = append(c.appended, payload)
	return &models.LedgerEntry{SessionID: sessionID}, nil
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []queue.ExportBundlePayload
}

func (e *fakeEnqueuer) EnqueueExportBundle(ctx context.Context, payload queue.ExportBundlePayload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, payload)
	return nil
}

type fakeCompanyNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeCompanyNotifier) SendToCompanyMonitors(companyID uuid.UUID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

type exportFixture struct {
	svc      *Service
	store    *memRecordStore
	chain    *fakeChain
	jobs     *fakeEnqueuer
	notifier *fakeCompanyNotifier
}

func newExportFixture(status string, fields models.PolicyFields) *exportFixture {
	store := &memRecordStore{}
	chain := &fakeChain{}
	jobs := &fakeEnqueuer{}
	notifier := &fakeCompanyNotifier{}
	guard := NewGuardrail(stubVerifier{result: models.ChainVerification{Status: status, LinkedEvents: 3, CheckedEvents: 3}}, stubResolver{fields: fields})
	return &exportFixture{
		svc:      NewService(store, guard, chain, jobs, notifier, nil),
		store:    store,
		chain:    chain,
		jobs:     jobs,
		notifier: notifier,
	}
}

func TestRequestAllowedExport(t *testing.T) {
	f := newExportFixture(models.ChainValid, models.DefaultPolicyFields())
	sessionID := uuid.New()

	rec, blockReason, err := f.svc.Request(context.Background(), sessionID, RequestOptions{
		ActorID:   uuid.New(),
		CompanyID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if blockReason != "" {
		t.Fatalf("unexpected block: %q", blockReason)
	}
	if rec.Mode != models.ExportModeFull {
		t.Fatalf("expected full mode default, got %s", rec.Mode)
	}
	if rec.Reason != "manual export" {
		t.Fatalf("expected fallback reason, got %q", rec.Reason)
	}
	if len(rec.Files) != 3 {
		t.Fatalf("expected 3 bundle files, got %v", rec.Files)
	}
	for _, key := range rec.Files {
		if !strings.Contains(key, sessionID.String()) || !strings.Contains(key, rec.ID.String()) {
			t.Fatalf("file key missing session or export id: %s", key)
		}
	}
	if len(f.chain.appended) != 1 {
		t.Fatalf("expected 1 chain append, got %d", len(f.chain.appended))
	}
	if f.chain.appended[0].Kind != ledger.PayloadKindEvidenceExport {
		t.Fatalf("expected evidence_export payload, got %s", f.chain.appended[0].Kind)
	}
	if len(f.jobs.jobs) != 1 || f.jobs.jobs[0].ExportID != rec.ID {
		t.Fatalf("bundle job not enqueued: %+v", f.jobs.jobs)
	}
	if len(f.notifier.events) != 1 || f.notifier.events[0] != EventExportLogged {
		t.Fatalf("export not announced: %v", f.notifier.events)
	}
}

func TestRequestBlockedByBrokenChain(t *testing.T) {
	f := newExportFixture(models.ChainBroken, models.DefaultPolicyFields())

	rec, blockReason, err := f.svc.Request(context.Background(), uuid.New(), RequestOptions{
		ActorID:   uuid.New(),
		CompanyID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if rec != nil {
		t.Fatal("blocked export must not produce a record")
	}
	if blockReason == "" {
		t.Fatal("expected a block reason")
	}
	if len(f.store.records) != 0 || len(f.chain.appended) != 0 || len(f.jobs.jobs) != 0 {
		t.Fatal("blocked export must leave no side effects")
	}
}

func TestRequestChainAppendFailureFailsRequest(t *testing.T) {
	f := newExportFixture(models.ChainValid, models.DefaultPolicyFields())
	f.chain.fail = true

	rec, blockReason, err := f.svc.Request(context.Background(), uuid.New(), RequestOptions{
		ActorID:   uuid.New(),
		CompanyID: uuid.New(),
	})
	if err == nil {
		t.Fatal("expected error when chain append fails")
	}
	if rec != nil || blockReason != "" {
		t.Fatalf("failed request must not hand back a record, got %v / %q", rec, blockReason)
	}
	if len(f.jobs.jobs) != 0 {
		t.Fatal("failed request must not enqueue a bundle job")
	}
	if len(f.notifier.events) != 0 {
		t.Fatal("failed request must not notify monitors")
	}
}

func TestRequestPartialChainPolicyFlag(t *testing.T) {
	fields := models.DefaultPolicyFields()
	fields.BlockExportOnPartialChain = true
	f := newExportFixture(models.ChainPartial, fields)

	rec, blockReason, err := f.svc.Request(context.Background(), uuid.New(), RequestOptions{
		ActorID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if rec != nil || blockReason == "" {
		t.Fatalf("expected block on partial chain, got rec=%v reason=%q", rec, blockReason)
	}
}

func TestRequestIdempotentRetry(t *testing.T) {
	f := newExportFixture(models.ChainValid, models.DefaultPolicyFields())
	sessionID := uuid.New()
	opts := RequestOptions{
		Mode:           models.ExportModeTimeline,
		IdempotencyKey: "export-retry-1",
		ActorID:        uuid.New(),
	}

	first, _, err := f.svc.Request(context.Background(), sessionID, opts)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, blockReason, err := f.svc.Request(context.Background(), sessionID, opts)
	if err != nil {
		t.Fatalf("retried request: %v", err)
	}
	if blockReason != "" {
		t.Fatalf("retry blocked: %q", blockReason)
	}
	if second.ID != first.ID {
		t.Fatal("retry created a second export")
	}
	if len(f.store.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(f.store.records))
	}
	if len(f.jobs.jobs) != 1 {
		t.Fatalf("retry must not enqueue again, got %d jobs", len(f.jobs.jobs))
	}
	if len(f.chain.appended) != 1 {
		t.Fatalf("retry must not chain again, got %d", len(f.chain.appended))
	}
}

func TestRequestValidation(t *testing.T) {
	f := newExportFixture(models.ChainValid, models.DefaultPolicyFields())

	_, _, err := f.svc.Request(context.Background(), uuid.New(), RequestOptions{Mode: "partial"})
	if !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}

	_, _, err = f.svc.Request(context.Background(), uuid.New(), RequestOptions{Reason: "x"})
	if !errors.Is(err, policy.ErrInvalidReason) {
		t.Fatalf("expected ErrInvalidReason, got %v", err)
	}

	_, _, err = f.svc.Request(context.Background(), uuid.New(), RequestOptions{IdempotencyKey: "short"})
	if !errors.Is(err, policy.ErrInvalidIdempotencyKey) {
		t.Fatalf("expected ErrInvalidIdempotencyKey, got %v", err)
	}
}
