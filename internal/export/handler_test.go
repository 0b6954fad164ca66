package export

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sentra-proctor/backend/internal/models"
)

type fakeHistory struct {
	records map[uuid.UUID]*models.ExportRecord
}

func (h *fakeHistory) GetByID(ctx context.Context, id uuid.UUID) (*models.ExportRecord, error) {
	return h.records[id], nil
}

func (h *fakeHistory) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.ExportRecord, error) {
	var out []models.ExportRecord
	for _, rec := range h.records {
		if rec.SessionID == sessionID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

type stubPresigner struct{}

func (stubPresigner) GeneratePresignedDownloadURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "https://signed.example/" + key, nil
}

func (stubPresigner) PresignExpire() time.Duration { return 15 * time.Minute }

func downloadRequest(t *testing.T, h *Handler, exportID string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, fmt.Sprintf("/exports/%s/download-urls", exportID), nil)
	c.Params = gin.Params{{Key: "id", Value: exportID}}
	h.DownloadURLs(c)
	return w
}

func TestDownloadURLsWithoutStorage(t *testing.T) {
	h := NewHandler(nil, &fakeHistory{}, nil)

	w := downloadRequest(t, h, uuid.NewString())
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when storage is disabled, got %d", w.Code)
	}
}

func TestDownloadURLsPresignsEveryFile(t *testing.T) {
	rec := &models.ExportRecord{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		Files:     []string{"a/bundle.json", "a/timeline.csv"},
	}
	h := NewHandler(nil, &fakeHistory{records: map[uuid.UUID]*models.ExportRecord{rec.ID: rec}}, stubPresigner{})

	w := downloadRequest(t, h, rec.ID.String())
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	for _, key := range rec.Files {
		if !strings.Contains(w.Body.String(), "https://signed.example/"+key) {
			t.Fatalf("response missing url for %s: %s", key, w.Body.String())
		}
	}
}

func TestDownloadURLsUnknownExport(t *testing.T) {
	h := NewHandler(nil, &fakeHistory{}, stubPresigner{})

	w := downloadRequest(t, h, uuid.NewString())
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
