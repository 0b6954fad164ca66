package integrity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentra-proctor/backend/internal/ledger"
	"github.com/sentra-proctor/backend/internal/models"
	"github.com/sentra-proctor/backend/internal/presence"
)

// Push events emitted to monitor connections.
const (
	EventIntegrityEvent = "integrity_event"
	EventIntegrityAlert = "integrity_alert"
)

// EventStore is the persistence contract the recorder needs.
type EventStore interface {
	Insert(ctx context.Context, ev *models.IntegrityEvent) error
}

// Broadcaster pushes real-time updates to monitor connections.
type Broadcaster interface {
	SendToRole(sessionID uuid.UUID, role string, event string, payload interface{})
}

// EventInput is one anti-cheat signal to record. Category and severity
// outside the known sets pass through as "unknown" rather than being
// rejected.
type EventInput struct {
	Category string          `json:"category"`
	Severity string          `json:"severity"`
	Action   string          `json:"action,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Recorder timestamps anti-cheat signals per session and feeds every one
// into the evidence hash-chain so each observable integrity signal is
// chain-protected.
type Recorder struct {
	store    EventStore
	chain    *ledger.Service
	notifier Broadcaster
	logger   *zap.Logger
}

// NewRecorder creates an integrity event recorder.
func NewRecorder(store EventStore, chain *ledger.Service, notifier Broadcaster, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, chain: chain, notifier: notifier, logger: logger}
}

// Record appends an integrity event, links it into the session's hash chain,
// and pushes it to monitor connections.
func (r *Recorder) Record(ctx context.Context, sessionID uuid.UUID, in EventInput) (*models.IntegrityEvent, error) {
	ev := &models.IntegrityEvent{
		SessionID: sessionID,
		Category:  models.NormalizeCategory(in.Category),
		Severity:  models.NormalizeSeverity(in.Severity),
		Action:    in.Action,
		Reason:    in.Reason,
		Metadata:  in.Metadata,
	}
	if err := r.store.Insert(ctx, ev); err != nil {
		return nil, fmt.Errorf("record integrity event: %w", err)
	}

	_, err := r.chain.Append(ctx, sessionID, ledger.ChainPayload{
		Kind:       ledger.PayloadKindIntegrityEvent,
		RefID:      ev.ID.String(),
		Category:   ev.Category,
		Severity:   ev.Severity,
		Action:     ev.Action,
		Reason:     ev.Reason,
		OccurredAt: ledger.OccurredAtStamp(ev.CreatedAt),
	})
	if err != nil {
		// Verify only scans ledger_entries, so an event row without its
		// link would pass as valid. Fail the operation so the caller
		// retries and the chain stays complete.
		r.logger.Error("chain append failed for integrity event",
			zap.String("event_id", ev.ID.String()), zap.Error(err))
		return nil, fmt.Errorf("chain integrity event: %w", err)
	}

	if r.notifier != nil {
		r.notifier.SendToRole(sessionID, presence.RoleMonitor, EventIntegrityEvent, ev)
		if ev.Severity == models.SeverityCritical {
			r.notifier.SendToRole(sessionID, presence.RoleMonitor, EventIntegrityAlert, ev)
		}
	}
	return ev, nil
}

// RecordSignal implements presence.SignalSink for signals arriving over
// WebSocket connections. Transport-side failures are logged, not propagated.
func (r *Recorder) RecordSignal(ctx context.Context, sessionID, userID uuid.UUID, sig presence.ClientSignal) {
	_, err := r.Record(ctx, sessionID, EventInput{
		Category: sig.Category,
		Severity: sig.Severity,
		Action:   sig.Action,
		Reason:   sig.Reason,
		Metadata: sig.Metadata,
	})
	if err != nil {
		r.logger.Warn("failed to record client signal",
			zap.String("session_id", sessionID.String()),
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}
}
