package ledger

import (
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/sentra-proctor/backend/internal/models"
)

// buildChain returns n linked entries starting at startSeq. When startSeq is
// not 0 the first entry's PrevDigest carries whatever the preceding entry
// would have produced, supplied by prevDigest.
func buildChain(t *testing.T, sessionID uuid.UUID, startSeq int64, n int, prevDigest string) []models.LedgerEntry {
	t.Helper()
	entries := make([]models.LedgerEntry, 0, n)
	prev := prevDigest
	for i := 0; i < n; i++ {
		seq := startSeq + int64(i)
		payload := ChainPayload{
			Kind:       PayloadKindIntegrityEvent,
			RefID:      uuid.New().String(),
			Category:   models.CategoryTabSwitch,
			Severity:   models.SeverityWarning,
			OccurredAt: fmt.Sprintf("2026-08-30T12:00:%02dZ", i),
		}
		canonical, err := payload.Canonical()
		if err != nil {
			t.Fatalf("canonicalize: %v", err)
		}
		digest := ComputeDigest(canonical, prev)
		entries = append(entries, models.LedgerEntry{
			ID:            uuid.New(),
			SessionID:     sessionID,
			Seq:           seq,
			Payload:       canonical,
			PayloadDigest: digest,
			PrevDigest:    prev,
		})
		prev = digest
	}
	return entries
}

func TestVerifyWindowEmpty(t *testing.T) {
	result := VerifyWindow(nil)
	if result.Status != models.ChainNotInitialized {
		t.Fatalf("expected not_initialized, got %s", result.Status)
	}
	if result.CheckedEvents != 0 || result.LinkedEvents != 0 {
		t.Fatalf("expected zero counts, got linked=%d checked=%d", result.LinkedEvents, result.CheckedEvents)
	}
}

func TestVerifyWindowValid(t *testing.T) {
	entries := buildChain(t, uuid.New(), 0, 5, GenesisDigest)
	result := VerifyWindow(entries)
	if result.Status != models.ChainValid {
		t.Fatalf("expected valid, got %s", result.Status)
	}
	if result.LinkedEvents != 5 || result.CheckedEvents != 5 {
		t.Fatalf("expected linked=5 checked=5, got linked=%d checked=%d", result.LinkedEvents, result.CheckedEvents)
	}
	if result.LatestHash != entries[4].PayloadDigest {
		t.Fatalf("latest hash mismatch")
	}
	if result.LatestSeq == nil || *result.LatestSeq != 4 {
		t.Fatalf("expected latest seq 4, got %v", result.LatestSeq)
	}
	if result.BrokenAt != nil {
		t.Fatalf("expected no broken seq, got %d", *result.BrokenAt)
	}
}

func TestVerifyWindowTamperedPayload(t *testing.T) {
	entries := buildChain(t, uuid.New(), 0, 5, GenesisDigest)
	entries[2].Payload = `{"kind":"integrity_event","ref_id":"forged","occurred_at":"2026-08-30T12:00:02Z"}`

	result := VerifyWindow(entries)
	if result.Status != models.ChainBroken {
		t.Fatalf("expected broken, got %s", result.Status)
	}
	if result.BrokenAt == nil || *result.BrokenAt != 2 {
		t.Fatalf("expected broken at seq 2, got %v", result.BrokenAt)
	}
	if result.LinkedEvents != 2 {
		t.Fatalf("expected 2 linked before the break, got %d", result.LinkedEvents)
	}
	if result.CheckedEvents != 5 {
		t.Fatalf("expected full window checked, got %d", result.CheckedEvents)
	}
}

func TestVerifyWindowBrokenLink(t *testing.T) {
	entries := buildChain(t, uuid.New(), 0, 4, GenesisDigest)
	entries[3].PrevDigest = ComputeDigest("something else", GenesisDigest)

	result := VerifyWindow(entries)
	if result.Status != models.ChainBroken {
		t.Fatalf("expected broken, got %s", result.Status)
	}
	if result.BrokenAt == nil || *result.BrokenAt != 3 {
		t.Fatalf("expected broken at seq 3, got %v", result.BrokenAt)
	}
}

func TestVerifyWindowPartial(t *testing.T) {
	sessionID := uuid.New()
	full := buildChain(t, sessionID, 0, 10, GenesisDigest)
	// A truncated window that never reaches seq 0.
	window := full[6:]

	result := VerifyWindow(window)
	if result.Status != models.ChainPartial {
		t.Fatalf("expected partial, got %s", result.Status)
	}
	if result.LinkedEvents != 4 || result.CheckedEvents != 4 {
		t.Fatalf("expected linked=4 checked=4, got linked=%d checked=%d", result.LinkedEvents, result.CheckedEvents)
	}
}

func TestVerifyWindowSingleGenesisEntry(t *testing.T) {
	entries := buildChain(t, uuid.New(), 0, 1, GenesisDigest)
	result := VerifyWindow(entries)
	if result.Status != models.ChainValid {
		t.Fatalf("expected valid, got %s", result.Status)
	}
	if result.LinkedEvents != 1 {
		t.Fatalf("expected 1 linked, got %d", result.LinkedEvents)
	}
}

func TestCanonicalIsDeterministic(t *testing.T) {
	payload := ChainPayload{
		Kind:       PayloadKindEvidenceExport,
		RefID:      "export-1",
		Action:     "full",
		Reason:     "manual export",
		OccurredAt: "2026-08-30T12:00:00Z",
	}
	first, err := payload.Canonical()
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	second, err := payload.Canonical()
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if first != second {
		t.Fatalf("canonical bytes differ:\n%s\n%s", first, second)
	}
}

func TestComputeDigestDependsOnPrev(t *testing.T) {
	a := ComputeDigest("payload", GenesisDigest)
	b := ComputeDigest("payload", a)
	if a == b {
		t.Fatal("digest must change when prev digest changes")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestClampVerifyLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "zero means default", limit: 0, want: DefaultVerifyLimit},
		{name: "negative means default", limit: -5, want: DefaultVerifyLimit},
		{name: "within range", limit: 42, want: 42},
		{name: "above max", limit: 10000, want: MaxVerifyLimit},
		{name: "at min", limit: 1, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClampVerifyLimit(tt.limit); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
