package presence

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ScreenSurfaceUnknown is the surface value before a candidate ever shares.
const ScreenSurfaceUnknown = "unknown"

// Connection roles in a monitored room.
const (
	RoleCandidate = "candidate"
	RoleMonitor   = "monitor"
)

// Message is the WebSocket message envelope.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn is one live duplex connection in a monitored room. Implementations
// must make Send non-blocking; a false return means the message was dropped
// (full buffer or closed peer) and the consumer is expected to re-fetch state
// on reconnect.
type Conn interface {
	ID() string
	UserID() uuid.UUID
	Role() string
	CompanyID() uuid.UUID // uuid.Nil when the connection is not company-scoped
	Send(msg Message) bool
}

// RoomState is the derived aggregate state of a monitored room. It is never
// stored independently; counts always equal the live connection set at
// computation time.
type RoomState struct {
	SessionID         uuid.UUID  `json:"session_id"`
	ParticipantCount  int        `json:"participant_count"`
	CandidateCount    int        `json:"candidate_count"`
	MonitorCount      int        `json:"monitor_count"`
	CandidateOnline   bool       `json:"candidate_online"`
	MonitorOnline     bool       `json:"monitor_online"`
	ScreenShareActive bool       `json:"screen_share_active"`
	ScreenSurface     string     `json:"screen_surface"`
	ScreenMuted       bool       `json:"screen_muted"`
	LastScreenShareAt *time.Time `json:"last_screen_share_at,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ScreenShareUpdate merges into the room's screen-share state. Active is taken
// verbatim; Surface/Muted fall back to the previous value when nil;
// LastScreenShareAt is stamped from Timestamp or server time.
type ScreenShareUpdate struct {
	Active    bool       `json:"active"`
	Surface   *string    `json:"surface,omitempty"`
	Muted     *bool      `json:"muted,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}
