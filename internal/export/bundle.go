package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"time"

	"github.com/sentra-proctor/backend/internal/models"
)

// BundleData is everything that goes into one export bundle. The worker
// collects it from the stores and the projections below render the files.
type BundleData struct {
	Record       models.ExportRecord      `json:"export"`
	Verification models.ChainVerification `json:"chain_verification"`
	Policy       models.PolicyFields      `json:"effective_policy"`
	Events       []models.IntegrityEvent  `json:"events"`
	Entries      []models.LedgerEntry     `json:"ledger_entries"`
	Presence     []models.PresenceLog     `json:"presence_log"`
	GeneratedAt  time.Time                `json:"generated_at"`
}

// BuildBundleJSON renders the full machine-readable bundle.
func BuildBundleJSON(data BundleData) ([]byte, error) {
	return json.MarshalIndent(data, "", "  ")
}

// TimelineCSV projects every event into a chronological reviewer-facing CSV.
func TimelineCSV(events []models.IntegrityEvent) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"occurred_at", "category", "severity", "action", "reason"}); err != nil {
		return nil, err
	}
	for _, ev := range events {
		row := []string{
			ev.CreatedAt.UTC().Format(time.RFC3339Nano),
			ev.Category,
			ev.Severity,
			ev.Action,
			ev.Reason,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// CodeChangesCSV projects only the editor activity, the slice reviewers
// replay against the candidate's submission.
func CodeChangesCSV(events []models.IntegrityEvent) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"occurred_at", "action", "reason"}); err != nil {
		return nil, err
	}
	for _, ev := range events {
		if ev.Category != models.CategoryCodeChange {
			continue
		}
		row := []string{
			ev.CreatedAt.UTC().Format(time.RFC3339Nano),
			ev.Action,
			ev.Reason,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
