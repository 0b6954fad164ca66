package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentra-proctor/backend/internal/export"
	"github.com/sentra-proctor/backend/internal/integrity"
	"github.com/sentra-proctor/backend/internal/ledger"
	"github.com/sentra-proctor/backend/internal/models"
	"github.com/sentra-proctor/backend/internal/policy"
	"github.com/sentra-proctor/backend/internal/presence"
	"github.com/sentra-proctor/backend/pkg/queue"
	"github.com/sentra-proctor/backend/pkg/storage"
)

// ExportProcessor assembles evidence bundles: collect the session's events,
// ledger entries and verification result, render the bundle files, upload
// them to S3 under the export's prefix.
type ExportProcessor struct {
	exports  *export.Repository
	events   *integrity.Repository
	entries  *ledger.Repository
	chain    *ledger.Service
	policies *policy.Service
	rooms    *presence.Repository
	s3       *storage.S3
	queue    *queue.Queue
	logger   *zap.Logger
}

// NewExportProcessor creates an evidence bundle processor.
func NewExportProcessor(exports *export.Repository, events *integrity.Repository, entries *ledger.Repository, chain *ledger.Service, policies *policy.Service, rooms *presence.Repository, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *ExportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportProcessor{
		exports:  exports,
		events:   events,
		entries:  entries,
		chain:    chain,
		policies: policies,
		rooms:    rooms,
		s3:       s3,
		queue:    q,
		logger:   logger,
	}
}

// Process executes one evidence bundle job.
func (p *ExportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeExportBundle {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ExportBundlePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	rec, err := p.exports.GetByID(ctx, payload.ExportID)
	if err != nil {
		return fmt.Errorf("load export: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("export not found: %s", payload.ExportID)
	}

	events, err := p.events.ListAll(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	entries, err := p.entries.Recent(ctx, payload.SessionID, ledger.MaxVerifyLimit)
	if err != nil {
		return fmt.Errorf("load ledger entries: %w", err)
	}
	verification, err := p.chain.Verify(ctx, payload.SessionID, 0)
	if err != nil {
		return fmt.Errorf("verify chain: %w", err)
	}
	// Company scope is not resolvable from the worker; interview scope and
	// defaults still apply.
	fields, err := p.policies.Effective(ctx, payload.SessionID, uuid.Nil)
	if err != nil {
		return fmt.Errorf("resolve policy: %w", err)
	}
	presenceLog, err := p.rooms.ListBySession(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("load presence log: %w", err)
	}

	if payload.Mode == models.ExportModeTimeline {
		entries = nil
	}
	bundleJSON, err := export.BuildBundleJSON(export.BundleData{
		Record:       *rec,
		Verification: verification,
		Policy:       fields,
		Events:       events,
		Entries:      entries,
		Presence:     presenceLog,
		GeneratedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("build bundle: %w", err)
	}
	timelineCSV, err := export.TimelineCSV(events)
	if err != nil {
		return fmt.Errorf("build timeline: %w", err)
	}
	codeCSV, err := export.CodeChangesCSV(events)
	if err != nil {
		return fmt.Errorf("build code changes: %w", err)
	}

	sessionID := payload.SessionID.String()
	exportID := payload.ExportID.String()
	files := []struct {
		name        string
		contentType string
		body        []byte
	}{
		{export.FileBundle, "application/json", bundleJSON},
		{export.FileTimeline, "text/csv", timelineCSV},
		{export.FileCodeChanges, "text/csv", codeCSV},
	}
	for _, f := range files {
		key := storage.ExportKey(sessionID, exportID, f.name)
		if err := p.s3.UploadExportFile(ctx, key, f.contentType, f.body); err != nil {
			return fmt.Errorf("upload %s: %w", f.name, err)
		}
	}

	p.logger.Info("evidence bundle assembled",
		zap.String("export_id", exportID),
		zap.String("session_id", sessionID),
		zap.Int("events", len(events)),
		zap.String("chain_status", verification.Status))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ExportProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("export worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
