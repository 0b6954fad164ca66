package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sentra-proctor/backend/internal/models"
	"github.com/sentra-proctor/backend/internal/presence"
)

// Fallback reasons synthesized when the caller supplies none.
const (
	ReasonManualUpdate   = "manual update"
	ReasonManualRollback = "manual rollback"
)

// ErrDuplicateIdempotencyKey is returned by Store.Insert when the unique
// index rejects a concurrent duplicate.
var ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

// Store is the persistence contract for policy versions. Implemented by
// Repository; tests substitute an in-memory store.
type Store interface {
	Latest(ctx context.Context, scope string, scopeID uuid.UUID) (*models.PolicyVersion, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.PolicyVersion, error)
	History(ctx context.Context, scope string, scopeID uuid.UUID, limit int) ([]models.PolicyVersion, error)
	FindByIdempotencyKey(ctx context.Context, scope string, scopeID uuid.UUID, key string, window int) (*models.PolicyVersion, error)
	Insert(ctx context.Context, v *models.PolicyVersion) error
}

// Notifier pushes policy change events to monitors.
type Notifier interface {
	SendToRole(sessionID uuid.UUID, role string, event string, payload interface{})
	SendToCompanyMonitors(companyID uuid.UUID, event string, payload interface{})
}

// MutateOptions carry the audit metadata of a mutation or rollback.
type MutateOptions struct {
	Reason         string
	IdempotencyKey string
	ActorID        uuid.UUID
}

// Service is the policy engine: versioned, idempotently mutated
// configuration at company and interview scope, with full history and
// rollback. Versions are immutable; every change is a new version.
type Service struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
}

// NewService creates a policy service.
func NewService(store Store, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, notifier: notifier, logger: logger}
}

// Current returns the latest version for a scope, or nil with the documented
// defaults when no version was ever saved.
func (s *Service) Current(ctx context.Context, scope string, scopeID uuid.UUID) (models.PolicyFields, *models.PolicyVersion, error) {
	if err := ValidateScope(scope); err != nil {
		return models.PolicyFields{}, nil, err
	}
	latest, err := s.store.Latest(ctx, scope, scopeID)
	if err != nil {
		return models.PolicyFields{}, nil, fmt.Errorf("load current policy: %w", err)
	}
	if latest == nil {
		return models.DefaultPolicyFields(), nil, nil
	}
	return latest.Fields, latest, nil
}

// Effective resolves the policy governing a session: interview scope first,
// then company scope, then the documented defaults.
func (s *Service) Effective(ctx context.Context, sessionID, companyID uuid.UUID) (models.PolicyFields, error) {
	latest, err := s.store.Latest(ctx, models.ScopeInterview, sessionID)
	if err != nil {
		return models.PolicyFields{}, fmt.Errorf("load interview policy: %w", err)
	}
	if latest != nil {
		return latest.Fields, nil
	}
	if companyID != uuid.Nil {
		latest, err = s.store.Latest(ctx, models.ScopeCompany, companyID)
		if err != nil {
			return models.PolicyFields{}, fmt.Errorf("load company policy: %w", err)
		}
		if latest != nil {
			return latest.Fields, nil
		}
	}
	return models.DefaultPolicyFields(), nil
}

// Mutate validates and applies a field patch as a new version. A supplied
// idempotency key makes retries safe: a matching recent version is returned
// unchanged instead of writing a duplicate.
func (s *Service) Mutate(ctx context.Context, scope string, scopeID uuid.UUID, patch FieldPatch, opts MutateOptions) (*models.PolicyVersion, []FieldChange, error) {
	if err := ValidateScope(scope); err != nil {
		return nil, nil, err
	}
	if err := ValidateReason(opts.Reason); err != nil {
		return nil, nil, err
	}
	if err := ValidateIdempotencyKey(opts.IdempotencyKey); err != nil {
		return nil, nil, err
	}

	if prior, err := s.findPrior(ctx, scope, scopeID, opts.IdempotencyKey); err != nil {
		return nil, nil, err
	} else if prior != nil {
		return prior, nil, nil
	}

	base, _, err := s.Current(ctx, scope, scopeID)
	if err != nil {
		return nil, nil, err
	}
	next := patch.Apply(base)
	if err := ValidateFields(next); err != nil {
		return nil, nil, err
	}

	version := &models.PolicyVersion{
		Scope:     scope,
		ScopeID:   scopeID,
		Fields:    next,
		Source:    models.SourceSaved,
		Reason:    fallbackReason(opts.Reason, ReasonManualUpdate),
		CreatedBy: opts.ActorID,
	}
	if opts.IdempotencyKey != "" {
		key := opts.IdempotencyKey
		version.IdempotencyKey = &key
	}
	prior, err := s.insert(ctx, version)
	if err != nil {
		return nil, nil, err
	}
	if prior != nil {
		return prior, nil, nil
	}

	s.notifyUpdated(scope, scopeID, version)
	return version, Diff(base, next), nil
}

// Rollback writes the target version's field snapshot as a new version with
// source=rollback. The target is never mutated or removed.
func (s *Service) Rollback(ctx context.Context, scope string, scopeID, targetID uuid.UUID, opts MutateOptions) (*models.PolicyVersion, error) {
	if err := ValidateScope(scope); err != nil {
		return nil, err
	}
	if err := ValidateReason(opts.Reason); err != nil {
		return nil, err
	}
	if err := ValidateIdempotencyKey(opts.IdempotencyKey); err != nil {
		return nil, err
	}

	if prior, err := s.findPrior(ctx, scope, scopeID, opts.IdempotencyKey); err != nil {
		return nil, err
	} else if prior != nil {
		return prior, nil
	}

	target, err := s.store.GetByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("load rollback target: %w", err)
	}
	if target == nil || target.Scope != scope || target.ScopeID != scopeID {
		return nil, ErrVersionNotFound
	}

	version := &models.PolicyVersion{
		Scope:        scope,
		ScopeID:      scopeID,
		Fields:       target.Fields,
		Source:       models.SourceRollback,
		RollbackFrom: &target.ID,
		Reason:       fallbackReason(opts.Reason, ReasonManualRollback),
		CreatedBy:    opts.ActorID,
	}
	if opts.IdempotencyKey != "" {
		key := opts.IdempotencyKey
		version.IdempotencyKey = &key
	}
	prior, err := s.insert(ctx, version)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		return prior, nil
	}

	s.notifyUpdated(scope, scopeID, version)
	return version, nil
}

// History returns ordered-desc snapshots for a scope (limit clamped 1..100,
// default 20).
func (s *Service) History(ctx context.Context, scope string, scopeID uuid.UUID, limit int) ([]models.PolicyVersion, error) {
	if err := ValidateScope(scope); err != nil {
		return nil, err
	}
	versions, err := s.store.History(ctx, scope, scopeID, ClampHistoryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("load policy history: %w", err)
	}
	return versions, nil
}

// findPrior resolves a retried request via the bounded recent-window scan.
func (s *Service) findPrior(ctx context.Context, scope string, scopeID uuid.UUID, key string) (*models.PolicyVersion, error) {
	if key == "" {
		return nil, nil
	}
	prior, err := s.store.FindByIdempotencyKey(ctx, scope, scopeID, key, IdempotencyScanWindow)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	return prior, nil
}

// insert writes the version. When the unique index rejects a concurrent
// duplicate the previously accepted version is returned instead.
func (s *Service) insert(ctx context.Context, version *models.PolicyVersion) (*models.PolicyVersion, error) {
	err := s.store.Insert(ctx, version)
	if err == nil {
		return nil, nil
	}
	if errors.Is(err, ErrDuplicateIdempotencyKey) && version.IdempotencyKey != nil {
		prior, lookupErr := s.store.FindByIdempotencyKey(ctx, version.Scope, version.ScopeID, *version.IdempotencyKey, IdempotencyScanWindow)
		if lookupErr == nil && prior != nil {
			return prior, nil
		}
	}
	return nil, fmt.Errorf("insert policy version: %w", err)
}

func (s *Service) notifyUpdated(scope string, scopeID uuid.UUID, version *models.PolicyVersion) {
	if s.notifier == nil {
		return
	}
	event := scope + "_policy_updated"
	if scope == models.ScopeCompany {
		s.notifier.SendToCompanyMonitors(scopeID, event, version)
	} else {
		s.notifier.SendToRole(scopeID, presence.RoleMonitor, event, version)
	}
}

func fallbackReason(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}
