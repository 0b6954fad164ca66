package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Known integrity event categories. Unknown values are normalized to
// CategoryUnknown rather than rejected so newer clients keep working.
const (
	CategoryFocusLoss          = "focus_loss"
	CategoryTabSwitch          = "tab_switch"
	CategoryMultiFace          = "multi_face"
	CategoryNoFace             = "no_face"
	CategoryLivenessFailed     = "liveness_failed"
	CategoryHeartbeatMissed    = "heartbeat_missed"
	CategoryScreenShare        = "screen_share"
	CategoryCodeChange         = "code_change"
	CategoryManualIntervention = "manual_intervention"
	CategoryExportAction       = "export_action"
	CategoryUnknown            = "unknown"
)

// Known severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
	SeverityUnknown  = "unknown"
)

var knownCategories = map[string]struct{}{
	CategoryFocusLoss:          {},
	CategoryTabSwitch:          {},
	CategoryMultiFace:          {},
	CategoryNoFace:             {},
	CategoryLivenessFailed:     {},
	CategoryHeartbeatMissed:    {},
	CategoryScreenShare:        {},
	CategoryCodeChange:         {},
	CategoryManualIntervention: {},
	CategoryExportAction:       {},
}

var knownSeverities = map[string]struct{}{
	SeverityInfo:     {},
	SeverityWarning:  {},
	SeverityCritical: {},
}

// NormalizeCategory maps values outside the known set to CategoryUnknown.
func NormalizeCategory(c string) string {
	if _, ok := knownCategories[c]; ok {
		return c
	}
	return CategoryUnknown
}

// NormalizeSeverity maps values outside the known set to SeverityUnknown.
func NormalizeSeverity(s string) string {
	if _, ok := knownSeverities[s]; ok {
		return s
	}
	return SeverityUnknown
}

// IntegrityEvent is one anti-cheat observation on a session's timeline.
// Immutable once recorded.
type IntegrityEvent struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	Category  string          `json:"category"`
	Severity  string          `json:"severity"`
	Action    string          `json:"action,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
