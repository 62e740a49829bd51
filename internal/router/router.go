// Package router dispatches inbound connection frames to named event
// handlers. Every privileged handler re-verifies a credential and re-checks
// authorization explicitly before acting; there is no ambient "already
// authenticated" shortcut beyond the handshake.
package router

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/boardcast/boardcast/internal/auth"
	"github.com/boardcast/boardcast/internal/authz"
	"github.com/boardcast/boardcast/internal/board"
	"github.com/boardcast/boardcast/internal/obs"
	"github.com/boardcast/boardcast/internal/room"
	"github.com/boardcast/boardcast/pkg/protocol"
	"github.com/boardcast/boardcast/pkg/state"
)

type handlerFunc func(ctx context.Context, conn *state.Connection, msg *protocol.Message)

type EventRouter struct {
	logger   *slog.Logger
	state    state.Manager
	rooms    *room.Manager
	verifier *auth.Verifier
	authz    authz.Checker
	cards    board.Mover

	handlers map[string]handlerFunc
}

func NewEventRouter(logger *slog.Logger, st state.Manager, rooms *room.Manager, verifier *auth.Verifier, checker authz.Checker, cards board.Mover) *EventRouter {
	r := &EventRouter{
		logger:   logger.With(slog.String("component", "event_router")),
		state:    st,
		rooms:    rooms,
		verifier: verifier,
		authz:    checker,
		cards:    cards,
	}
	r.handlers = map[string]handlerFunc{
		"joinBoard":  r.handleJoinBoard,
		"leaveBoard": r.handleLeaveBoard,
		"moveCard":   r.handleMoveCard,
	}
	return r
}

// HandleMessage is the transport's inbound callback. It runs on the
// connection's read pump, so one connection's command in flight never blocks
// another connection's events.
func (r *EventRouter) HandleMessage(ctx context.Context, connID uuid.UUID, raw []byte) {
	conn, ok := r.state.GetConnection(connID)
	if !ok {
		r.logger.Error("Message from unregistered connection", slog.String("connID", connID.String()))
		return
	}

	var msg protocol.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		r.logger.Warn("Failed to unmarshal client message",
			slog.String("connID", connID.String()),
			slog.Any("error", err),
		)
		conn.Transport.Send(protocol.EncodeError("Malformed message"))
		return
	}

	handler, ok := r.handlers[msg.Event]
	if !ok {
		r.logger.Warn("Received unknown event",
			slog.String("event", msg.Event),
			slog.String("connID", connID.String()),
		)
		conn.Transport.Send(protocol.EncodeError("Unknown event"))
		return
	}

	obs.EventReceived(msg.Event)
	r.logger.Debug("Dispatching event",
		slog.String("event", msg.Event),
		slog.String("connID", connID.String()),
	)
	handler(ctx, conn, &msg)
}

// authorizeEvent re-verifies a credential for a privileged event: the
// frame's own token when the client supplied one, otherwise the handshake
// token. Expiry between connect and this event is caught here. On failure
// the caller is notified and the reported ok is false.
func (r *EventRouter) authorizeEvent(conn *state.Connection, msg *protocol.Message) (auth.Identity, bool) {
	token := msg.Token
	if token == "" {
		token = conn.Token
	}

	identity, err := r.verifier.Verify(token)
	if err != nil {
		r.logger.Warn("Event credential rejected",
			slog.String("event", msg.Event),
			slog.String("connID", conn.ID.String()),
			slog.Any("error", err),
		)
		conn.Transport.Send(protocol.EncodeError("Unauthorized"))
		return auth.Identity{}, false
	}
	return identity, true
}
