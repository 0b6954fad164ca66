package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestSeqConflictClassification(t *testing.T) {
	conflict := fmt.Errorf("insert ledger entry: %w", &pgconn.PgError{Code: pgUniqueViolation})
	if !isSeqConflict(conflict) {
		t.Fatal("unique violation on (session_id, seq) must be retried")
	}
	if isSeqConflict(errors.New("connection reset")) {
		t.Fatal("unrelated errors must not be retried")
	}
	if isSeqConflict(fmt.Errorf("insert ledger entry: %w", &pgconn.PgError{Code: "40001"})) {
		t.Fatal("other pg error codes must not be retried")
	}
}
