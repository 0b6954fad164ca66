package models

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEntry is one link in the tamper-evident chain for a session.
// Seq is strictly increasing per session starting at 0. PrevDigest of
// entry n equals PayloadDigest of entry n-1 (GenesisDigest at seq 0).
// Payload holds the canonical serialization the digest was computed over;
// it is stored as text so the bytes re-hashed on verify are the bytes hashed
// on append.
type LedgerEntry struct {
	ID            uuid.UUID `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	Seq           int64     `json:"seq"`
	Payload       string    `json:"payload"`
	PayloadDigest string    `json:"payload_digest"`
	PrevDigest    string    `json:"prev_digest"`
	CreatedAt     time.Time `json:"created_at"`
}

// Chain verification statuses.
const (
	ChainNotInitialized = "not_initialized"
	ChainValid          = "valid"
	ChainPartial        = "partial"
	ChainBroken         = "broken"
)

// ChainVerification is the result of re-deriving digests over a scan window.
type ChainVerification struct {
	Status        string `json:"status"`
	LinkedEvents  int    `json:"linked_events"`
	CheckedEvents int    `json:"checked_events"`
	LatestHash    string `json:"latest_hash,omitempty"`
	LatestSeq     *int64 `json:"latest_seq,omitempty"`
	BrokenAt      *int64 `json:"broken_at,omitempty"`
}
