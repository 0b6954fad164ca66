package presence

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sentra-proctor/backend/pkg/response"
)

// Handler exposes the derived room state over HTTP.
type Handler struct {
	manager *Manager
}

// NewHandler creates a presence handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// GetRoomState handles GET /sessions/:id/room.
func (h *Handler) GetRoomState(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	response.OK(c, h.manager.RoomState(sessionID))
}
