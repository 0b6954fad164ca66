package export

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sentra-proctor/backend/internal/models"
)

// ChainVerifier answers chain-integrity queries for a session.
type ChainVerifier interface {
	Verify(ctx context.Context, sessionID uuid.UUID, limit int) (models.ChainVerification, error)
}

// PolicyResolver resolves the policy governing a session (interview scope
// falling back to company scope, then defaults).
type PolicyResolver interface {
	Effective(ctx context.Context, sessionID, companyID uuid.UUID) (models.PolicyFields, error)
}

// Guardrail decides whether an evidence export may proceed, from the
// ledger's verification status and the effective policy.
type Guardrail struct {
	chain    ChainVerifier
	policies PolicyResolver
}

// NewGuardrail creates an export guardrail.
func NewGuardrail(chain ChainVerifier, policies PolicyResolver) *Guardrail {
	return &Guardrail{chain: chain, policies: policies}
}

// CanExport returns "" when the export is allowed, or a human-readable block
// reason. The verification result is returned either way so callers can
// include it in the export summary.
func (g *Guardrail) CanExport(ctx context.Context, sessionID, companyID uuid.UUID) (string, models.ChainVerification, error) {
	verification, err := g.chain.Verify(ctx, sessionID, 0)
	if err != nil {
		return "", models.ChainVerification{}, fmt.Errorf("verify chain: %w", err)
	}
	fields, err := g.policies.Effective(ctx, sessionID, companyID)
	if err != nil {
		return "", models.ChainVerification{}, fmt.Errorf("resolve policy: %w", err)
	}
	return BlockReason(verification.Status, fields), verification, nil
}

// BlockReason is the pure guardrail rule: export is blocked iff the chain is
// broken and policy blocks on broken, or the scan was partial and policy
// blocks on partial.
func BlockReason(status string, fields models.PolicyFields) string {
	switch {
	case status == models.ChainBroken && fields.BlockExportOnBrokenChain:
		return "evidence chain is broken and policy blocks export on a broken chain"
	case status == models.ChainPartial && fields.BlockExportOnPartialChain:
		return "evidence chain was only partially verifiable and policy blocks export on a partial chain"
	default:
		return ""
	}
}
