package state

import (
	"github.com/google/uuid"

	"github.com/boardcast/boardcast/internal/auth"
)

type Manager interface {
	// --- Connection Lifecycle ---
	RegisterConnection(t Transport, ipAddr string) (*Connection, error)
	// DeregisterConnection removes the connection and its room memberships.
	// Idempotent.
	DeregisterConnection(connID uuid.UUID) error
	GetConnection(connID uuid.UUID) (*Connection, bool)

	// --- Identity Binding ---
	// AssociateIdentity binds a verified identity and its handshake token to
	// a registered connection, creating the user record if needed.
	AssociateIdentity(connID uuid.UUID, identity auth.Identity, token string) (*Connection, error)
	GetUserConnectionCount(userID string) (int, error)
	FindOldestUserConnection(userID string) (*Connection, bool)
	GetAllConnections() []*Connection

	// --- Room Membership ---
	// Join adds the connection to the room, creating the room lazily.
	// Rejoining is a no-op.
	Join(connID uuid.UUID, roomID string) error
	Leave(connID uuid.UUID, roomID string) error
	LeaveAll(connID uuid.UUID) error
	// RoomMembers returns a snapshot of the room's members. An unknown room
	// yields an empty slice, so broadcasting to it is a no-op.
	RoomMembers(roomID string) []*Connection
}
