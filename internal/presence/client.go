package presence

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sentra-proctor/backend/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// ClientSignal is an anti-cheat observation sent by a client over the socket.
type ClientSignal struct {
	Category string          `json:"category"`
	Severity string          `json:"severity"`
	Action   string          `json:"action,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// SignalSink receives integrity signals arriving over WebSocket connections.
type SignalSink interface {
	RecordSignal(ctx context.Context, sessionID, userID uuid.UUID, sig ClientSignal)
}

// Client is a single WebSocket connection in a monitored room.
type Client struct {
	id        string
	sessionID uuid.UUID
	userID    uuid.UUID
	role      string
	companyID uuid.UUID
	manager   *Manager
	signals   SignalSink
	conn      *websocket.Conn
	send      chan Message
	logger    *zap.Logger
}

// ID implements Conn.
func (c *Client) ID() string { return c.id }

// UserID implements Conn.
func (c *Client) UserID() uuid.UUID { return c.userID }

// Role implements Conn.
func (c *Client) Role() string { return c.role }

// CompanyID implements Conn.
func (c *Client) CompanyID() uuid.UUID { return c.companyID }

// Send implements Conn. Non-blocking; returns false when the buffer is full.
func (c *Client) Send(msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
// The session token (issued externally) carries role and company scope.
func ServeWs(manager *Manager, logger *zap.Logger, jwtService *auth.JWTService, signals SignalSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionIDStr := c.Query("session_id")
		token := c.Query("token")
		if sessionIDStr == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and token required"})
			return
		}
		sessionID, err := uuid.Parse(sessionIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		role := claims.Role
		if role != RoleCandidate && role != RoleMonitor {
			c.JSON(http.StatusForbidden, gin.H{"error": "role cannot join rooms"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		companyID := uuid.Nil
		if claims.CompanyID != nil {
			companyID = *claims.CompanyID
		}
		client := &Client{
			id:        uuid.New().String(),
			sessionID: sessionID,
			userID:    claims.UserID,
			role:      role,
			companyID: companyID,
			manager:   manager,
			signals:   signals,
			conn:      conn,
			send:      make(chan Message, 256),
			logger:    logger,
		}
		manager.Join(sessionID, client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.manager.Leave(c.sessionID, c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "integrity_signal":
			var sig ClientSignal
			if err := json.Unmarshal(msg.Data, &sig); err != nil {
				continue
			}
			if c.signals != nil {
				c.signals.RecordSignal(context.Background(), c.sessionID, c.userID, sig)
			}
		case "screen_share":
			// Only the candidate's share state drives the room.
			if c.role != RoleCandidate {
				continue
			}
			var update ScreenShareUpdate
			if err := json.Unmarshal(msg.Data, &update); err != nil {
				continue
			}
			c.manager.UpdateScreenShare(c.sessionID, update)
			if c.signals != nil {
				c.signals.RecordSignal(context.Background(), c.sessionID, c.userID, ClientSignal{
					Category: "screen_share",
					Severity: "info",
					Action:   screenShareAction(update.Active),
					Metadata: msg.Data,
				})
			}
		case "heartbeat":
			// read deadline already refreshed above
		default:
			// ignore
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func screenShareAction(active bool) string {
	if active {
		return "share_started"
	}
	return "share_stopped"
}
