package state

import (
	"time"

	"github.com/google/uuid"

	"github.com/boardcast/boardcast/internal/auth"
)

// Transport is the send side of a live connection. Satisfied by
// *transport.Connection; tests substitute a recording fake.
type Transport interface {
	ID() uuid.UUID
	Send(message []byte)
	Close(err error)
}

// Connection is the per-connection state record. It is owned by the Manager:
// Identity and Token are bound exactly once during the handshake, room
// membership is only touched through Manager methods.
type Connection struct {
	ID        uuid.UUID
	IPAddress string
	Transport Transport
	Identity  *auth.Identity // nil until the handshake credential verifies
	Token     string         // handshake credential, re-verified per privileged event
	User      *User          // owning user (nil until identity is bound)
	Rooms     map[string]struct{}
	CreatedAt time.Time
}

// User aggregates all live connections of one authenticated principal.
type User struct {
	ID          string
	Connections map[uuid.UUID]*Connection
}

// Room is a logical broadcast group. Members are connections, not users: two
// sockets of the same user joined to a room each receive broadcasts.
type Room struct {
	ID      string
	Members map[uuid.UUID]*Connection
}
