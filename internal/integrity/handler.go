package integrity

import (
	"encoding/json"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sentra-proctor/backend/pkg/response"
)

// RecordRequest is the body for POST /sessions/:id/events.
type RecordRequest struct {
	Category string          `json:"category" binding:"required"`
	Severity string          `json:"severity" binding:"required"`
	Action   string          `json:"action"`
	Reason   string          `json:"reason"`
	Metadata json.RawMessage `json:"metadata"`
}

// Handler handles integrity event HTTP endpoints.
type Handler struct {
	recorder *Recorder
	repo     *Repository
}

// NewHandler creates an integrity handler.
func NewHandler(recorder *Recorder, repo *Repository) *Handler {
	return &Handler{recorder: recorder, repo: repo}
}

// Record handles POST /sessions/:id/events (e.g. a monitor logging a manual
// intervention).
func (h *Handler) Record(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ev, err := h.recorder.Record(c.Request.Context(), sessionID, EventInput{
		Category: req.Category,
		Severity: req.Severity,
		Action:   req.Action,
		Reason:   req.Reason,
		Metadata: req.Metadata,
	})
	if err != nil {
		response.Internal(c, "failed to record event")
		return
	}
	response.Created(c, ev)
}

// List handles GET /sessions/:id/events with timeline filters.
func (h *Handler) List(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	events, err := h.repo.List(c.Request.Context(), sessionID, Filter{
		Category: c.Query("category"),
		Severity: c.Query("severity"),
		Action:   c.Query("action"),
		Reason:   c.Query("reason"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, gin.H{"events": events, "count": len(events)})
}
