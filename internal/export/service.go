package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentra-proctor/backend/internal/ledger"
	"github.com/sentra-proctor/backend/internal/models"
	"github.com/sentra-proctor/backend/internal/policy"
	"github.com/sentra-proctor/backend/pkg/queue"
	"github.com/sentra-proctor/backend/pkg/storage"
)

// EventExportLogged is pushed to company monitors when an export is accepted.
const EventExportLogged = "evidence_export_logged"

// Bundle file names within an export's S3 prefix.
const (
	FileBundle      = "evidence_bundle.json"
	FileTimeline    = "timeline.csv"
	FileCodeChanges = "code_changes.csv"
)

// ErrInvalidMode rejects unknown export modes.
var ErrInvalidMode = errors.New("mode must be full or timeline")

// RecordStore is the persistence contract for export records.
type RecordStore interface {
	Insert(ctx context.Context, rec *models.ExportRecord) error
	FindByIdempotencyKey(ctx context.Context, sessionID uuid.UUID, key string, window int) (*models.ExportRecord, error)
}

// ChainAppender links export actions into the evidence chain.
type ChainAppender interface {
	Append(ctx context.Context, sessionID uuid.UUID, payload ledger.ChainPayload) (*models.LedgerEntry, error)
}

// Enqueuer schedules bundle assembly jobs.
type Enqueuer interface {
	EnqueueExportBundle(ctx context.Context, payload queue.ExportBundlePayload) error
}

// Notifier pushes export events to company monitors.
type Notifier interface {
	SendToCompanyMonitors(companyID uuid.UUID, event string, payload interface{})
}

// Service accepts export requests: guardrail check, idempotent audit record,
// chain entry, bundle job. The export action is itself part of the auditable
// history.
type Service struct {
	store    RecordStore
	guard    *Guardrail
	chain    ChainAppender
	jobs     Enqueuer
	notifier Notifier
	logger   *zap.Logger
}

// NewService creates an export service.
func NewService(store RecordStore, guard *Guardrail, chain ChainAppender, jobs Enqueuer, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, guard: guard, chain: chain, jobs: jobs, notifier: notifier, logger: logger}
}

// RequestOptions carry the audit metadata of an export request.
type RequestOptions struct {
	Mode           string
	Reason         string
	IdempotencyKey string
	ActorID        uuid.UUID
	CompanyID      uuid.UUID
}

// Request runs the guardrail and, when allowed, appends the export record and
// schedules bundle assembly. A non-empty blockReason with a nil record means
// the guardrail refused; that is a reported fact, not an error.
func (s *Service) Request(ctx context.Context, sessionID uuid.UUID, opts RequestOptions) (*models.ExportRecord, string, error) {
	mode := opts.Mode
	if mode == "" {
		mode = models.ExportModeFull
	}
	if mode != models.ExportModeFull && mode != models.ExportModeTimeline {
		return nil, "", ErrInvalidMode
	}
	if err := policy.ValidateReason(opts.Reason); err != nil {
		return nil, "", err
	}
	if err := policy.ValidateIdempotencyKey(opts.IdempotencyKey); err != nil {
		return nil, "", err
	}

	if opts.IdempotencyKey != "" {
		prior, err := s.store.FindByIdempotencyKey(ctx, sessionID, opts.IdempotencyKey, policy.IdempotencyScanWindow)
		if err != nil {
			return nil, "", fmt.Errorf("idempotency lookup: %w", err)
		}
		if prior != nil {
			return prior, "", nil
		}
	}

	blockReason, verification, err := s.guard.CanExport(ctx, sessionID, opts.CompanyID)
	if err != nil {
		return nil, "", err
	}
	if blockReason != "" {
		return nil, blockReason, nil
	}

	exportID := uuid.New()
	rec := &models.ExportRecord{
		ID:        exportID,
		SessionID: sessionID,
		Mode:      mode,
		Files: []string{
			storage.ExportKey(sessionID.String(), exportID.String(), FileBundle),
			storage.ExportKey(sessionID.String(), exportID.String(), FileTimeline),
			storage.ExportKey(sessionID.String(), exportID.String(), FileCodeChanges),
		},
		Summary:    fmt.Sprintf("%s export; chain status %s (%d of %d entries linked)", mode, verification.Status, verification.LinkedEvents, verification.CheckedEvents),
		Reason:     fallbackReason(opts.Reason),
		ExportedBy: opts.ActorID,
	}
	if opts.IdempotencyKey != "" {
		key := opts.IdempotencyKey
		rec.IdempotencyKey = &key
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) && rec.IdempotencyKey != nil {
			prior, lookupErr := s.store.FindByIdempotencyKey(ctx, sessionID, *rec.IdempotencyKey, policy.IdempotencyScanWindow)
			if lookupErr == nil && prior != nil {
				return prior, "", nil
			}
		}
		return nil, "", fmt.Errorf("insert export record: %w", err)
	}

	if _, err := s.chain.Append(ctx, sessionID, ledger.ChainPayload{
		Kind:       ledger.PayloadKindEvidenceExport,
		RefID:      rec.ID.String(),
		Category:   models.CategoryExportAction,
		Severity:   models.SeverityInfo,
		Action:     mode,
		Reason:     rec.Reason,
		OccurredAt: ledger.OccurredAtStamp(rec.ExportedAt),
	}); err != nil {
		// An export record outside the chain would be invisible to verify.
		// Surface the failure instead of handing back an unprotected record.
		s.logger.Error("chain append failed for export",
			zap.String("export_id", rec.ID.String()), zap.Error(err))
		return nil, "", fmt.Errorf("chain export record: %w", err)
	}

	if err := s.jobs.EnqueueExportBundle(ctx, queue.ExportBundlePayload{
		ExportID:  rec.ID,
		SessionID: sessionID,
		Mode:      mode,
	}); err != nil {
		s.logger.Error("enqueue export bundle failed",
			zap.String("export_id", rec.ID.String()), zap.Error(err))
	}

	if s.notifier != nil && opts.CompanyID != uuid.Nil {
		s.notifier.SendToCompanyMonitors(opts.CompanyID, EventExportLogged, rec)
	}
	return rec, "", nil
}

func fallbackReason(reason string) string {
	if reason == "" {
		return "manual export"
	}
	return reason
}
