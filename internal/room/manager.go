// Package room owns the logical board rooms multiplexed over physical
// connections: authorized joins, leaves, and the broadcast primitive that
// reaches local members directly and remote members through the fan-out
// adapter.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/boardcast/boardcast/internal/authz"
	"github.com/boardcast/boardcast/internal/fanout"
	"github.com/boardcast/boardcast/internal/obs"
	"github.com/boardcast/boardcast/pkg/protocol"
	"github.com/boardcast/boardcast/pkg/state"
)

// ErrAccessDenied indicates the connection's identity holds no membership
// grant for the board. The caller notifies the client; membership stays
// untouched and the connection stays open.
var ErrAccessDenied = errors.New("access denied to board")

// RoomID derives the broadcast group key for a board.
func RoomID(boardID string) string {
	return "board_" + boardID
}

type Manager struct {
	logger *slog.Logger
	state  state.Manager
	authz  authz.Checker
	fanout *fanout.Adapter
}

func NewManager(logger *slog.Logger, st state.Manager, checker authz.Checker, adapter *fanout.Adapter) *Manager {
	return &Manager{
		logger: logger.With(slog.String("component", "room_manager")),
		state:  st,
		authz:  checker,
		fanout: adapter,
	}
}

// Join adds the connection to the board's room after re-validating the
// membership grant. The grant is checked on every join, never cached, so a
// revoked grant takes effect on the next attempt.
func (m *Manager) Join(ctx context.Context, connID uuid.UUID, boardID string) error {
	conn, ok := m.state.GetConnection(connID)
	if !ok {
		return errors.New("connection not found")
	}
	if conn.Identity == nil {
		return ErrAccessDenied
	}

	member, err := m.authz.IsMember(ctx, conn.Identity.UserID, boardID)
	if err != nil {
		return fmt.Errorf("membership check failed: %w", err)
	}
	if !member {
		m.logger.Warn("Join denied",
			slog.String("userID", conn.Identity.UserID),
			slog.String("boardID", boardID),
		)
		return ErrAccessDenied
	}

	if err := m.state.Join(connID, RoomID(boardID)); err != nil {
		return err
	}
	m.logger.Info("Connection joined board room",
		slog.String("connID", connID.String()),
		slog.String("userID", conn.Identity.UserID),
		slog.String("boardID", boardID),
	)
	return nil
}

// Leave removes the connection from the board's room. No-op when absent.
func (m *Manager) Leave(connID uuid.UUID, boardID string) error {
	return m.state.Leave(connID, RoomID(boardID))
}

// LeaveAll removes the connection from every room. Called on disconnect.
func (m *Manager) LeaveAll(connID uuid.UUID) error {
	return m.state.LeaveAll(connID)
}

// BroadcastLocal delivers the event to every current member of the room on
// this instance. Broadcasting to an absent or empty room is a no-op.
// Delivery order is FIFO per calling goroutine per room.
func (m *Manager) BroadcastLocal(roomID, event string, payload json.RawMessage) {
	msg, err := protocol.Encode(event, payload)
	if err != nil {
		m.logger.Error("Failed to encode broadcast", slog.String("event", event), slog.Any("error", err))
		return
	}

	members := m.state.RoomMembers(roomID)
	for _, member := range members {
		member.Transport.Send(msg)
	}
	if len(members) > 0 {
		obs.BroadcastDelivered("local")
		m.logger.Debug("Broadcast delivered locally",
			slog.String("roomID", roomID),
			slog.String("event", event),
			slog.Int("members", len(members)),
		)
	}
}

// BroadcastGlobal delivers locally and replicates to peer instances. Local
// delivery is never sacrificed for remote fan-out failures: broker problems
// are logged and swallowed.
func (m *Manager) BroadcastGlobal(ctx context.Context, roomID, event string, payload json.RawMessage) {
	m.BroadcastLocal(roomID, event, payload)

	if err := m.fanout.Publish(ctx, roomID, event, payload); err != nil {
		if errors.Is(err, fanout.ErrBrokerUnavailable) {
			m.logger.Debug("Fan-out skipped", slog.String("roomID", roomID), slog.Any("error", err))
			return
		}
		m.logger.Error("Fan-out publish failed", slog.String("roomID", roomID), slog.Any("error", err))
	}
}
