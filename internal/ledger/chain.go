package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/sentra-proctor/backend/internal/models"
)

// GenesisDigest is the prev_digest of every chain's seq-0 entry.
const GenesisDigest = "0000000000000000000000000000000000000000000000000000000000000000"

// Payload kinds appended to the chain.
const (
	PayloadKindIntegrityEvent = "integrity_event"
	PayloadKindEvidenceExport = "evidence_export"
)

// ChainPayload is the fixed-field structure serialized into each ledger
// entry. No maps: encoding/json field order over a struct is deterministic,
// so the canonical bytes are reproducible.
type ChainPayload struct {
	Kind       string `json:"kind"`
	RefID      string `json:"ref_id"`
	Category   string `json:"category,omitempty"`
	Severity   string `json:"severity,omitempty"`
	Action     string `json:"action,omitempty"`
	Reason     string `json:"reason,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

// Canonical returns the canonical serialization the digest is computed over.
func (p ChainPayload) Canonical() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// OccurredAtStamp formats a timestamp for ChainPayload.OccurredAt.
func OccurredAtStamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ComputeDigest derives an entry's payload digest:
// hex(sha256(canonicalPayload || prevDigest)).
func ComputeDigest(canonicalPayload, prevDigest string) string {
	sum := sha256.Sum256([]byte(canonicalPayload + prevDigest))
	return hex.EncodeToString(sum[:])
}

// VerifyWindow re-derives digests over a scan window of entries in ascending
// seq order (the most recent entries of the chain). It is a pure function of
// the entries: repeated calls with the same data return the same result.
//
//   - not_initialized: zero entries exist
//   - valid: every link checks out and the window reaches the genesis entry
//   - partial: consistent within the window, but the scan was truncated
//     before seq 0
//   - broken: first position where a recomputed digest disagrees with the
//     stored link; LinkedEvents stops counting there, CheckedEvents still
//     covers the full window
func VerifyWindow(entries []models.LedgerEntry) models.ChainVerification {
	if len(entries) == 0 {
		return models.ChainVerification{Status: models.ChainNotInitialized}
	}

	newest := entries[len(entries)-1]
	result := models.ChainVerification{
		CheckedEvents: len(entries),
		LatestHash:    newest.PayloadDigest,
		LatestSeq:     &newest.Seq,
	}

	prev := entries[0].PrevDigest
	if entries[0].Seq == 0 {
		prev = GenesisDigest
	}
	for i := range entries {
		e := entries[i]
		if e.PrevDigest != prev {
			seq := e.Seq
			result.Status = models.ChainBroken
			result.BrokenAt = &seq
			return result
		}
		recomputed := ComputeDigest(e.Payload, prev)
		if recomputed != e.PayloadDigest {
			seq := e.Seq
			result.Status = models.ChainBroken
			result.BrokenAt = &seq
			return result
		}
		result.LinkedEvents++
		prev = recomputed
	}

	if entries[0].Seq == 0 {
		result.Status = models.ChainValid
	} else {
		result.Status = models.ChainPartial
	}
	return result
}
