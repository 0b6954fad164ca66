package models

import (
	"time"

	"github.com/google/uuid"
)

// Export modes.
const (
	ExportModeFull     = "full"
	ExportModeTimeline = "timeline"
)

// ExportRecord is the audit row written when an evidence export is allowed.
// Appended through the same idempotent mechanism as policy versions and never
// updated or deleted.
type ExportRecord struct {
	ID             uuid.UUID `json:"id"`
	SessionID      uuid.UUID `json:"session_id"`
	Mode           string    `json:"mode"`
	Files          []string  `json:"files"`
	Summary        string    `json:"summary"`
	Reason         string    `json:"reason"`
	IdempotencyKey *string   `json:"idempotency_key,omitempty"`
	ExportedAt     time.Time `json:"exported_at"`
	ExportedBy     uuid.UUID `json:"exported_by"`
}

// PresenceLog tracks join/leave per connection for the room snapshot section
// of the export bundle.
type PresenceLog struct {
	ID        uuid.UUID  `json:"id"`
	SessionID uuid.UUID  `json:"session_id"`
	UserID    uuid.UUID  `json:"user_id"`
	Role      string     `json:"role"`
	JoinedAt  time.Time  `json:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty"`
}
