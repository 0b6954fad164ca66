package models

import (
	"time"

	"github.com/google/uuid"
)

// Policy scopes.
const (
	ScopeCompany   = "company"
	ScopeInterview = "interview"
)

// Policy version sources.
const (
	SourceSaved    = "saved"
	SourceRollback = "rollback"
)

// PolicyFields are the monitor-policy knobs captured by every version.
type PolicyFields struct {
	AutoTerminateEnabled           bool `json:"auto_terminate_enabled"`
	MaxAutoReshareAttempts         int  `json:"max_auto_reshare_attempts"`
	HeartbeatTerminateThresholdSec int  `json:"heartbeat_terminate_threshold_sec"`
	BlockExportOnBrokenChain       bool `json:"block_export_on_broken_chain"`
	BlockExportOnPartialChain      bool `json:"block_export_on_partial_chain"`
}

// DefaultPolicyFields is the documented default applied when a scope has no
// saved version.
func DefaultPolicyFields() PolicyFields {
	return PolicyFields{
		AutoTerminateEnabled:           false,
		MaxAutoReshareAttempts:         3,
		HeartbeatTerminateThresholdSec: 45,
		BlockExportOnBrokenChain:       true,
		BlockExportOnPartialChain:      false,
	}
}

// PolicyVersion is an immutable snapshot of policy fields for a scope.
// Versions are linearly ordered by creation time and form the audit history;
// corrections are always a new version (rollback, re-mutation).
type PolicyVersion struct {
	ID             uuid.UUID    `json:"id"`
	Scope          string       `json:"scope"`
	ScopeID        uuid.UUID    `json:"scope_id"`
	Fields         PolicyFields `json:"policy"`
	Source         string       `json:"source"`
	RollbackFrom   *uuid.UUID   `json:"rollback_from,omitempty"`
	Reason         string       `json:"reason"`
	IdempotencyKey *string      `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time    `json:"updated_at"`
	CreatedBy      uuid.UUID    `json:"updated_by"`
}
