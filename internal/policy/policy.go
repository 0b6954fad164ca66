package policy

import (
	"errors"
	"fmt"

	"github.com/sentra-proctor/backend/internal/models"
)

// Validation bounds.
const (
	MinReasonLen          = 2
	MaxReasonLen          = 240
	MinIdempotencyKeyLen  = 8
	MaxIdempotencyKeyLen  = 120
	MinReshareAttempts    = 0
	MaxReshareAttempts    = 10
	MinHeartbeatThreshold = 10
	MaxHeartbeatThreshold = 600

	// IdempotencyScanWindow bounds the recent-version scan; the storage
	// unique index is the authoritative guard beyond it.
	IdempotencyScanWindow = 120

	MinHistoryLimit     = 1
	MaxHistoryLimit     = 100
	DefaultHistoryLimit = 20
)

var (
	ErrInvalidScope          = errors.New("scope must be company or interview")
	ErrInvalidFields         = errors.New("invalid policy fields")
	ErrInvalidReason         = fmt.Errorf("reason must be %d-%d characters", MinReasonLen, MaxReasonLen)
	ErrInvalidIdempotencyKey = fmt.Errorf("idempotency key must be %d-%d characters", MinIdempotencyKeyLen, MaxIdempotencyKeyLen)
	ErrVersionNotFound       = errors.New("policy version not found")
)

// FieldPatch is a partial update to policy fields; nil fields keep the
// current value.
type FieldPatch struct {
	AutoTerminateEnabled           *bool `json:"auto_terminate_enabled"`
	MaxAutoReshareAttempts         *int  `json:"max_auto_reshare_attempts"`
	HeartbeatTerminateThresholdSec *int  `json:"heartbeat_terminate_threshold_sec"`
	BlockExportOnBrokenChain       *bool `json:"block_export_on_broken_chain"`
	BlockExportOnPartialChain      *bool `json:"block_export_on_partial_chain"`
}

// Apply merges the patch onto a base field set.
func (p FieldPatch) Apply(base models.PolicyFields) models.PolicyFields {
	next := base
	if p.AutoTerminateEnabled != nil {
		next.AutoTerminateEnabled = *p.AutoTerminateEnabled
	}
	if p.MaxAutoReshareAttempts != nil {
		next.MaxAutoReshareAttempts = *p.MaxAutoReshareAttempts
	}
	if p.HeartbeatTerminateThresholdSec != nil {
		next.HeartbeatTerminateThresholdSec = *p.HeartbeatTerminateThresholdSec
	}
	if p.BlockExportOnBrokenChain != nil {
		next.BlockExportOnBrokenChain = *p.BlockExportOnBrokenChain
	}
	if p.BlockExportOnPartialChain != nil {
		next.BlockExportOnPartialChain = *p.BlockExportOnPartialChain
	}
	return next
}

// ValidateScope checks the scope discriminator.
func ValidateScope(scope string) error {
	if scope != models.ScopeCompany && scope != models.ScopeInterview {
		return ErrInvalidScope
	}
	return nil
}

// ValidateFields range-checks a full field set before any write.
func ValidateFields(f models.PolicyFields) error {
	if f.MaxAutoReshareAttempts < MinReshareAttempts || f.MaxAutoReshareAttempts > MaxReshareAttempts {
		return fmt.Errorf("%w: max_auto_reshare_attempts must be %d-%d", ErrInvalidFields, MinReshareAttempts, MaxReshareAttempts)
	}
	if f.HeartbeatTerminateThresholdSec < MinHeartbeatThreshold || f.HeartbeatTerminateThresholdSec > MaxHeartbeatThreshold {
		return fmt.Errorf("%w: heartbeat_terminate_threshold_sec must be %d-%d", ErrInvalidFields, MinHeartbeatThreshold, MaxHeartbeatThreshold)
	}
	return nil
}

// ValidateReason checks an optional free-text reason.
func ValidateReason(reason string) error {
	if reason == "" {
		return nil
	}
	if len(reason) < MinReasonLen || len(reason) > MaxReasonLen {
		return ErrInvalidReason
	}
	return nil
}

// ValidateIdempotencyKey checks an optional client-supplied dedup token.
func ValidateIdempotencyKey(key string) error {
	if key == "" {
		return nil
	}
	if len(key) < MinIdempotencyKeyLen || len(key) > MaxIdempotencyKeyLen {
		return ErrInvalidIdempotencyKey
	}
	return nil
}

// ClampHistoryLimit bounds a history query; non-positive means default.
func ClampHistoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit < MinHistoryLimit {
		return MinHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// FieldChange is one changed field in a diff, for audit trails.
type FieldChange struct {
	Field string      `json:"field"`
	From  interface{} `json:"from"`
	To    interface{} `json:"to"`
}

// Diff compares two field sets field-by-field and reports changed fields
// only. Pure: independent of storage.
func Diff(a, b models.PolicyFields) []FieldChange {
	var changes []FieldChange
	if a.AutoTerminateEnabled != b.AutoTerminateEnabled {
		changes = append(changes, FieldChange{"auto_terminate_enabled", a.AutoTerminateEnabled, b.AutoTerminateEnabled})
	}
	if a.MaxAutoReshareAttempts != b.MaxAutoReshareAttempts {
		changes = append(changes, FieldChange{"max_auto_reshare_attempts", a.MaxAutoReshareAttempts, b.MaxAutoReshareAttempts})
	}
	if a.HeartbeatTerminateThresholdSec != b.HeartbeatTerminateThresholdSec {
		changes = append(changes, FieldChange{"heartbeat_terminate_threshold_sec", a.HeartbeatTerminateThresholdSec, b.HeartbeatTerminateThresholdSec})
	}
	if a.BlockExportOnBrokenChain != b.BlockExportOnBrokenChain {
		changes = append(changes, FieldChange{"block_export_on_broken_chain", a.BlockExportOnBrokenChain, b.BlockExportOnBrokenChain})
	}
	if a.BlockExportOnPartialChain != b.BlockExportOnPartialChain {
		changes = append(changes, FieldChange{"block_export_on_partial_chain", a.BlockExportOnPartialChain, b.BlockExportOnPartialChain})
	}
	return changes
}
