package export

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sentra-proctor/backend/internal/middleware"
	"github.com/sentra-proctor/backend/internal/models"
	"github.com/sentra-proctor/backend/internal/policy"
	"github.com/sentra-proctor/backend/pkg/response"
)

// Presigner mints download URLs for bundle files.
type Presigner interface {
	GeneratePresignedDownloadURL(ctx context.Context, key string, expires time.Duration) (string, error)
	PresignExpire() time.Duration
}

// HistoryStore reads back export audit records.
type HistoryStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExportRecord, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.ExportRecord, error)
}

// RequestBody is the body for POST /sessions/:id/export.
type RequestBody struct {
	Mode           string `json:"mode"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Handler handles export HTTP endpoints.
type Handler struct {
	service *Service
	history HistoryStore
	signer  Presigner
}

// NewHandler creates an export handler. A nil signer means object storage
// is disabled; download URL requests then answer 503.
func NewHandler(service *Service, history HistoryStore, signer Presigner) *Handler {
	return &Handler{service: service, history: history, signer: signer}
}

// Request handles POST /sessions/:id/export. A guardrail refusal is a 409
// with the block reason; the caller must resolve the chain or relax policy.
func (h *Handler) Request(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req RequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	actorID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	companyID, _ := c.Get(middleware.ContextCompanyID)

	rec, blockReason, err := h.service.Request(c.Request.Context(), sessionID, RequestOptions{
		Mode:           req.Mode,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		ActorID:        actorID,
		CompanyID:      companyUUID(companyID),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	if blockReason != "" {
		response.Conflict(c, blockReason)
		return
	}
	response.Created(c, rec)
}

// List handles GET /sessions/:id/exports.
func (h *Handler) List(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	records, err := h.history.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		response.Internal(c, "failed to list exports")
		return
	}
	response.OK(c, gin.H{"exports": records, "count": len(records)})
}

// DownloadURLs handles GET /exports/:id/download-urls, presigning every
// bundle file of the export.
func (h *Handler) DownloadURLs(c *gin.Context) {
	if h.signer == nil {
		response.Unavailable(c, "export downloads unavailable: object storage is not configured")
		return
	}
	exportID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid export id")
		return
	}
	rec, err := h.history.GetByID(c.Request.Context(), exportID)
	if err != nil {
		response.Internal(c, "failed to load export")
		return
	}
	if rec == nil {
		response.NotFound(c, "export not found")
		return
	}
	urls := make(map[string]string, len(rec.Files))
	for _, key := range rec.Files {
		url, err := h.signer.GeneratePresignedDownloadURL(c.Request.Context(), key, h.signer.PresignExpire())
		if err != nil {
			response.Internal(c, "failed to presign download url")
			return
		}
		urls[key] = url
	}
	response.OK(c, gin.H{
		"export_id":  rec.ID,
		"urls":       urls,
		"expires_in": int(h.signer.PresignExpire().Seconds()),
	})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidMode),
		errors.Is(err, policy.ErrInvalidReason),
		errors.Is(err, policy.ErrInvalidIdempotencyKey):
		response.BadRequest(c, err.Error())
	default:
		response.Internal(c, "export request failed")
	}
}

func companyUUID(v interface{}) uuid.UUID {
	if id, ok := v.(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}
