package ledger

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sentra-proctor/backend/pkg/response"
)

// Handler exposes chain verification over HTTP.
type Handler struct {
	service *Service
}

// NewHandler creates a ledger handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Verify handles GET /sessions/:id/chain/verify?limit=.
func (h *Handler) Verify(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(c, "invalid limit")
			return
		}
	}
	result, err := h.service.Verify(c.Request.Context(), sessionID, limit)
	if err != nil {
		response.Internal(c, "failed to verify chain")
		return
	}
	response.OK(c, result)
}
