package presence

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// EventRoomState is pushed to every connection in a session on each presence
// or screen-share mutation.
const EventRoomState = "room_state"

// SessionHook is called on join/leave for session audit logging.
type SessionHook func(sessionID, userID uuid.UUID, role string)

// Publisher publishes session events to Redis for cross-instance broadcast.
type Publisher interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, payload []byte) error
}

// Subscriber subscribes to session channels and invokes handler for incoming events.
type Subscriber interface {
	SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

type room struct {
	conns map[string]Conn
	state RoomState
}

// Manager tracks live connections per interview session and derives room
// state. It holds its own state and is instantiated once per process and
// passed by injection; all mutations for a session are serialized under the
// manager mutex. Operating on an unknown session is never an error: it is an
// empty room.
type Manager struct {
	mu      sync.RWMutex
	rooms   map[uuid.UUID]*room
	subs    map[uuid.UUID]func() // cancel Redis subscription per session
	logger  *zap.Logger
	pub     Publisher
	sub     Subscriber
	onJoin  SessionHook
	onLeave SessionHook
}

// NewManager creates a room presence manager.
func NewManager(logger *zap.Logger, pub Publisher, sub Subscriber) *Manager {
	return &Manager{
		rooms:  make(map[uuid.UUID]*room),
		subs:   make(map[uuid.UUID]func()),
		logger: logger,
		pub:    pub,
		sub:    sub,
	}
}

// SetSessionHooks sets the join/leave callbacks (e.g. presence log rows).
func (m *Manager) SetSessionHooks(onJoin, onLeave SessionHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onJoin = onJoin
	m.onLeave = onLeave
}

// Join adds a connection to a session room, recomputes room state, and
// broadcasts it. Starts the Redis subscription for this session if this is
// the first local connection.
func (m *Manager) Join(sessionID uuid.UUID, c Conn) {
	m.mu.Lock()
	r := m.rooms[sessionID]
	if r == nil {
		r = &room{
			conns: make(map[string]Conn),
			state: emptyState(sessionID),
		}
		m.rooms[sessionID] = r
		if m.sub != nil {
			cancel, err := m.sub.SubscribeSession(sessionID, func(event string, payload []byte) {
				m.deliverLocal(sessionID, event, json.RawMessage(payload))
			})
			if err == nil {
				m.subs[sessionID] = cancel
			}
		}
	}
	r.conns[c.ID()] = c
	m.recomputeLocked(sessionID, r)
	onJoin := m.onJoin
	m.mu.Unlock()

	if onJoin != nil {
		onJoin(sessionID, c.UserID(), c.Role())
	}
	m.broadcastRoomState(sessionID)
	m.logger.Debug("connection joined session",
		zap.String("conn_id", c.ID()), zap.String("session_id", sessionID.String()), zap.String("role", c.Role()))
}

// Leave removes a connection from a session room. When the last connection
// leaves, the room state is discarded entirely (no ghost rooms) and the Redis
// subscription is cancelled.
func (m *Manager) Leave(sessionID uuid.UUID, c Conn) {
	m.mu.Lock()
	r, ok := m.rooms[sessionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if _, ok := r.conns[c.ID()]; !ok {
		m.mu.Unlock()
		return
	}
	delete(r.conns, c.ID())
	empty := len(r.conns) == 0
	if empty {
		delete(m.rooms, sessionID)
		if cancel, ok := m.subs[sessionID]; ok {
			cancel()
			delete(m.subs, sessionID)
		}
	} else {
		m.recomputeLocked(sessionID, r)
	}
	onLeave := m.onLeave
	m.mu.Unlock()

	if onLeave != nil {
		onLeave(sessionID, c.UserID(), c.Role())
	}
	if !empty {
		m.broadcastRoomState(sessionID)
	}
	m.logger.Debug("connection left session",
		zap.String("conn_id", c.ID()), zap.String("session_id", sessionID.String()))
}

// Broadcast sends an event to all connections in a session, locally and via
// Redis for other instances. Delivery is fire-and-forget: a full buffer or
// closed peer drops the message.
func (m *Manager) Broadcast(sessionID uuid.UUID, event string, payload interface{}, excluding ...string) {
	data := marshalPayload(payload)
	m.deliverLocal(sessionID, event, data, excluding...)
	if m.pub != nil {
		_ = m.pub.PublishSessionEvent(sessionID, event, data)
	}
}

// SendToRole sends an event to connections with the given role in a session.
func (m *Manager) SendToRole(sessionID uuid.UUID, role string, event string, payload interface{}) {
	data := marshalPayload(payload)
	msg := Message{Event: event, Data: data}

	m.mu.RLock()
	r := m.rooms[sessionID]
	var targets []Conn
	if r != nil {
		for _, c := range r.conns {
			if c.Role() == role {
				targets = append(targets, c)
			}
		}
	}
	m.mu.RUnlock()

	for _, c := range targets {
		if !c.Send(msg) {
			m.logger.Debug("dropped message to connection", zap.String("conn_id", c.ID()), zap.String("event", event))
		}
	}
}

// SendToCompanyMonitors sends an event to every monitor connection scoped to
// the given company, across all sessions.
func (m *Manager) SendToCompanyMonitors(companyID uuid.UUID, event string, payload interface{}) {
	data := marshalPayload(payload)
	msg := Message{Event: event, Data: data}

	m.mu.RLock()
	var targets []Conn
	for _, r := range m.rooms {
		for _, c := range r.conns {
			if c.Role() == RoleMonitor && c.CompanyID() == companyID {
				targets = append(targets, c)
			}
		}
	}
	m.mu.RUnlock()

	for _, c := range targets {
		_ = c.Send(msg)
	}
}

// UpdateScreenShare merges a screen-share update into the room state and
// broadcasts the result.
func (m *Manager) UpdateScreenShare(sessionID uuid.UUID, update ScreenShareUpdate) {
	m.mu.Lock()
	r := m.rooms[sessionID]
	if r == nil {
		// Unknown session: an empty room carries no share state worth keeping.
		m.mu.Unlock()
		return
	}
	r.state.ScreenShareActive = update.Active
	if update.Surface != nil {
		r.state.ScreenSurface = *update.Surface
	}
	if update.Muted != nil {
		r.state.ScreenMuted = *update.Muted
	}
	at := time.Now()
	if update.Timestamp != nil {
		at = *update.Timestamp
	}
	r.state.LastScreenShareAt = &at
	r.state.UpdatedAt = time.Now()
	m.mu.Unlock()

	m.broadcastRoomState(sessionID)
}

// RoomState returns the derived state for a session. An unknown session is
// an empty room, not an error.
func (m *Manager) RoomState(sessionID uuid.UUID) RoomState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.rooms[sessionID]; ok {
		return r.state
	}
	return emptyState(sessionID)
}

// ParticipantCount returns the number of live connections in a session.
func (m *Manager) ParticipantCount(sessionID uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.rooms[sessionID]; ok {
		return len(r.conns)
	}
	return 0
}

// recomputeLocked rebuilds counts from the live connection set. When the
// candidate drops out, screen-share state resets to inactive/unknown.
// Caller holds m.mu.
func (m *Manager) recomputeLocked(sessionID uuid.UUID, r *room) {
	candidates, monitors := 0, 0
	for _, c := range r.conns {
		switch c.Role() {
		case RoleCandidate:
			candidates++
		case RoleMonitor:
			monitors++
		}
	}
	r.state.SessionID = sessionID
	r.state.CandidateCount = candidates
	r.state.MonitorCount = monitors
	r.state.ParticipantCount = len(r.conns)
	r.state.CandidateOnline = candidates > 0
	r.state.MonitorOnline = monitors > 0
	if candidates == 0 {
		r.state.ScreenShareActive = false
		r.state.ScreenSurface = ScreenSurfaceUnknown
		r.state.ScreenMuted = false
	}
	r.state.UpdatedAt = time.Now()
}

// broadcastRoomState pushes the current room state to every connection in the
// session. Every presence or screen-share mutation goes through here.
func (m *Manager) broadcastRoomState(sessionID uuid.UUID) {
	m.Broadcast(sessionID, EventRoomState, m.RoomState(sessionID))
}

// deliverLocal fans out a message to local connections only.
func (m *Manager) deliverLocal(sessionID uuid.UUID, event string, data json.RawMessage, excluding ...string) {
	msg := Message{Event: event, Data: data}
	skip := make(map[string]struct{}, len(excluding))
	for _, id := range excluding {
		skip[id] = struct{}{}
	}

	m.mu.RLock()
	r := m.rooms[sessionID]
	var targets []Conn
	if r != nil {
		for id, c := range r.conns {
			if _, ok := skip[id]; ok {
				continue
			}
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range targets {
		_ = c.Send(msg)
	}
}

func emptyState(sessionID uuid.UUID) RoomState {
	return RoomState{
		SessionID:     sessionID,
		ScreenSurface: ScreenSurfaceUnknown,
		UpdatedAt:     time.Now(),
	}
}

func marshalPayload(payload interface{}) json.RawMessage {
	switch v := payload.(type) {
	case []byte:
		return v
	case json.RawMessage:
		return v
	default:
		data, _ := json.Marshal(payload)
		return data
	}
}
