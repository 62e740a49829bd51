package statemanager

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boardcast/boardcast/internal/auth"
	"github.com/boardcast/boardcast/pkg/state"
)

// InMemoryManager keeps the connection, user and room tables in process
// memory behind a single mutex. Methods never perform I/O, so holding the
// lock is always short-lived.
type InMemoryManager struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*state.Connection
	users map[string]*state.User
	rooms map[string]*state.Room

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:  make(map[uuid.UUID]*state.Connection),
		users:  make(map[string]*state.User),
		rooms:  make(map[string]*state.Room),
		logger: logger.With(slog.String("component", "state_manager")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) RegisterConnection(t state.Transport, ipAddr string) (*state.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	connID := t.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, errors.New("connection is already registered")
	}
	conn := &state.Connection{
		ID:        connID,
		IPAddress: ipAddr,
		Transport: t,
		Rooms:     make(map[string]struct{}),
		CreatedAt: time.Now(),
	}
	m.conns[connID] = conn
	m.logger.Debug("Connection registered", slog.String("connID", connID.String()))
	return conn, nil
}

func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		// Already deregistered.
		return nil
	}
	delete(m.conns, connID)

	for roomID := range conn.Rooms {
		m.removeFromRoomLocked(conn, roomID)
	}

	if conn.User != nil {
		user := conn.User
		delete(user.Connections, connID)
		if len(user.Connections) == 0 {
			delete(m.users, user.ID)
		}
	}
	m.logger.Debug("Connection deregistered", slog.String("connID", connID.String()))
	return nil
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

func (m *InMemoryManager) AssociateIdentity(connID uuid.UUID, identity auth.Identity, token string) (*state.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return nil, errors.New("cannot associate identity with unknown connection")
	}

	user, exists := m.users[identity.UserID]
	if !exists {
		user = &state.User{
			ID:          identity.UserID,
			Connections: make(map[uuid.UUID]*state.Connection),
		}
		m.users[identity.UserID] = user
	}

	conn.Identity = &identity
	conn.Token = token
	conn.User = user
	user.Connections[connID] = conn

	m.logger.Debug("Identity bound to connection",
		slog.String("connID", connID.String()),
		slog.String("userID", identity.UserID),
	)
	return conn, nil
}

func (m *InMemoryManager) GetUserConnectionCount(userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return 0, nil // User has no live connections.
	}
	return len(user.Connections), nil
}

func (m *InMemoryManager) FindOldestUserConnection(userID string) (*state.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[userID]
	if !ok {
		return nil, false
	}

	var oldest *state.Connection
	for _, conn := range user.Connections {
		if oldest == nil || conn.CreatedAt.Before(oldest.CreatedAt) {
			oldest = conn
		}
	}
	if oldest == nil {
		return nil, false
	}
	return oldest, true
}

func (m *InMemoryManager) GetAllConnections() []*state.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*state.Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	return conns
}

// --- Room Membership ---

func (m *InMemoryManager) Join(connID uuid.UUID, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return errors.New("cannot join room: connection not found")
	}

	if _, already := conn.Rooms[roomID]; already {
		return nil
	}

	room, exists := m.rooms[roomID]
	if !exists {
		room = &state.Room{
			ID:      roomID,
			Members: make(map[uuid.UUID]*state.Connection),
		}
		m.rooms[roomID] = room
	}

	room.Members[connID] = conn
	conn.Rooms[roomID] = struct{}{}

	m.logger.Debug("Connection joined room",
		slog.String("connID", connID.String()),
		slog.String("roomID", roomID),
	)
	return nil
}

func (m *InMemoryManager) Leave(connID uuid.UUID, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return nil // Connection already gone, nothing to leave.
	}
	delete(conn.Rooms, roomID)
	m.removeFromRoomLocked(conn, roomID)
	return nil
}

func (m *InMemoryManager) LeaveAll(connID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.conns[connID]
	if !ok {
		return nil
	}
	for roomID := range conn.Rooms {
		m.removeFromRoomLocked(conn, roomID)
	}
	conn.Rooms = make(map[string]struct{})
	return nil
}

func (m *InMemoryManager) RoomMembers(roomID string) []*state.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]*state.Connection, 0, len(room.Members))
	for _, c := range room.Members {
		members = append(members, c)
	}
	return members
}

// removeFromRoomLocked drops the connection from the room's member table and
// evicts the room when empty. Caller must hold m.mu.
func (m *InMemoryManager) removeFromRoomLocked(conn *state.Connection, roomID string) {
	room, ok := m.rooms[roomID]
	if !ok {
		return
	}
	delete(room.Members, conn.ID)
	if len(room.Members) == 0 {
		delete(m.rooms, roomID)
		m.logger.Debug("Removed empty room", slog.String("roomID", roomID))
	}
}
