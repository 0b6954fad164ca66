package policy

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sentra-proctor/backend/internal/middleware"
	"github.com/sentra-proctor/backend/pkg/response"
)

// MutateRequest is the body for PUT /policies/:scope/:scopeId.
type MutateRequest struct {
	FieldPatch
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

// RollbackRequest is the body for POST /policies/:scope/:scopeId/rollback.
type RollbackRequest struct {
	TargetVersionID uuid.UUID `json:"target_version_id" binding:"required"`
	Reason          string    `json:"reason"`
	IdempotencyKey  string    `json:"idempotency_key"`
}

// Handler handles policy HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a policy handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Get handles GET /policies/:scope/:scopeId.
func (h *Handler) Get(c *gin.Context) {
	scope, scopeID, ok := h.scopeParams(c)
	if !ok {
		return
	}
	fields, version, err := h.service.Current(c.Request.Context(), scope, scopeID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"policy": fields, "version": version})
}

// Mutate handles PUT /policies/:scope/:scopeId.
func (h *Handler) Mutate(c *gin.Context) {
	scope, scopeID, ok := h.scopeParams(c)
	if !ok {
		return
	}
	var req MutateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	actorID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	version, changed, err := h.service.Mutate(c.Request.Context(), scope, scopeID, req.FieldPatch, MutateOptions{
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		ActorID:        actorID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"version": version, "changed": changed})
}

// Rollback handles POST /policies/:scope/:scopeId/rollback.
func (h *Handler) Rollback(c *gin.Context) {
	scope, scopeID, ok := h.scopeParams(c)
	if !ok {
		return
	}
	var req RollbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	actorID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	version, err := h.service.Rollback(c.Request.Context(), scope, scopeID, req.TargetVersionID, MutateOptions{
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		ActorID:        actorID,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"version": version})
}

// History handles GET /policies/:scope/:scopeId/history?limit=.
func (h *Handler) History(c *gin.Context) {
	scope, scopeID, ok := h.scopeParams(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	versions, err := h.service.History(c.Request.Context(), scope, scopeID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"versions": versions, "count": len(versions)})
}

func (h *Handler) scopeParams(c *gin.Context) (string, uuid.UUID, bool) {
	scope := c.Param("scope")
	if err := ValidateScope(scope); err != nil {
		response.BadRequest(c, err.Error())
		return "", uuid.Nil, false
	}
	scopeID, err := uuid.Parse(c.Param("scopeId"))
	if err != nil {
		response.BadRequest(c, "invalid scope id")
		return "", uuid.Nil, false
	}
	return scope, scopeID, true
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrVersionNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrInvalidScope),
		errors.Is(err, ErrInvalidFields),
		errors.Is(err, ErrInvalidReason),
		errors.Is(err, ErrInvalidIdempotencyKey):
		response.BadRequest(c, err.Error())
	default:
		response.Internal(c, "policy operation failed")
	}
}
