package export

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/sentra-proctor/backend/internal/models"
)

func TestBlockReason(t *testing.T) {
	tests := []struct {
		name        string
		status      string
		fields      models.PolicyFields
		wantBlocked bool
	}{
		{
			name:        "valid chain never blocks",
			status:      models.ChainValid,
			fields:      models.PolicyFields{BlockExportOnBrokenChain: true, BlockExportOnPartialChain: true},
			wantBlocked: false,
		},
		{
			name:        "not initialized never blocks",
			status:      models.ChainNotInitialized,
			fields:      models.PolicyFields{BlockExportOnBrokenChain: true, BlockExportOnPartialChain: true},
			wantBlocked: false,
		},
		{
			name:        "broken with block flag",
			status:      models.ChainBroken,
			fields:      models.PolicyFields{BlockExportOnBrokenChain: true},
			wantBlocked: true,
		},
		{
			name:        "broken without block flag",
			status:      models.ChainBroken,
			fields:      models.PolicyFields{},
			wantBlocked: false,
		},
		{
			name:        "partial with block flag",
			status:      models.ChainPartial,
			fields:      models.PolicyFields{BlockExportOnPartialChain: true},
			wantBlocked: true,
		},
		{
			name:        "partial without block flag",
			status:      models.ChainPartial,
			fields:      models.PolicyFields{BlockExportOnBrokenChain: true},
			wantBlocked: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := BlockReason(tt.status, tt.fields)
			if tt.wantBlocked && reason == "" {
				t.Fatal("expected a block reason")
			}
			if !tt.wantBlocked && reason != "" {
				t.Fatalf("expected no block, got %q", reason)
			}
		})
	}
}

type stubVerifier struct {
	result models.ChainVerification
}

func (v stubVerifier) Verify(ctx context.Context, sessionID uuid.UUID, limit int) (models.ChainVerification, error) {
	return v.result, nil
}

type stubResolver struct {
	fields models.PolicyFields
}

func (r stubResolver) Effective(ctx context.Context, sessionID, companyID uuid.UUID) (models.PolicyFields, error) {
	return r.fields, nil
}

func TestGuardrailCanExport(t *testing.T) {
	fields := models.DefaultPolicyFields()

	g := NewGuardrail(stubVerifier{result: models.ChainVerification{Status: models.ChainValid}}, stubResolver{fields: fields})
	reason, verification, err := g.CanExport(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("can export: %v", err)
	}
	if reason != "" {
		t.Fatalf("valid chain blocked: %q", reason)
	}
	if verification.Status != models.ChainValid {
		t.Fatalf("verification result not surfaced: %+v", verification)
	}

	// Defaults block on broken but not on partial.
	g = NewGuardrail(stubVerifier{result: models.ChainVerification{Status: models.ChainBroken}}, stubResolver{fields: fields})
	reason, _, err = g.CanExport(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("can export: %v", err)
	}
	if reason == "" {
		t.Fatal("broken chain must block under defaults")
	}

	g = NewGuardrail(stubVerifier{result: models.ChainVerification{Status: models.ChainPartial}}, stubResolver{fields: fields})
	reason, _, err = g.CanExport(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("can export: %v", err)
	}
	if reason != "" {
		t.Fatalf("partial chain blocked under defaults: %q", reason)
	}
}
