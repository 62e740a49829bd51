package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/boardcast/boardcast/internal/board"
	"github.com/boardcast/boardcast/internal/room"
	"github.com/boardcast/boardcast/pkg/protocol"
	"github.com/boardcast/boardcast/pkg/state"
)

// MoveCardPayload is the client request to move a card.
type MoveCardPayload struct {
	CardID     string `json:"cardId"`
	ToColumnID string `json:"toColumnId"`
	ToPosition int    `json:"toPosition"`
	BoardID    string `json:"boardId"`
}

// CardMovedPayload is broadcast to every member of the board's room after a
// successful move. It is a cache-coherence notification, not a conflict
// resolution protocol: clients treat the latest state per card as
// authoritative.
type CardMovedPayload struct {
	CardID     string    `json:"cardId"`
	ToColumnID string    `json:"toColumnId"`
	ToPosition int       `json:"toPosition"`
	MovedBy    string    `json:"movedBy"`
	Timestamp  time.Time `json:"timestamp"`
}

// boardIDFromPayload accepts the board identifier either as a bare JSON
// string or wrapped in an object, matching what clients actually send.
func boardIDFromPayload(payload json.RawMessage) string {
	res := gjson.ParseBytes(payload)
	if res.Type == gjson.String {
		return res.String()
	}
	return res.Get("boardId").String()
}

func (r *EventRouter) handleJoinBoard(ctx context.Context, conn *state.Connection, msg *protocol.Message) {
	if _, ok := r.authorizeEvent(conn, msg); !ok {
		return
	}

	boardID := boardIDFromPayload(msg.Payload)
	if boardID == "" {
		conn.Transport.Send(protocol.EncodeError("Missing board id"))
		return
	}

	err := r.rooms.Join(ctx, conn.ID, boardID)
	switch {
	case errors.Is(err, room.ErrAccessDenied):
		conn.Transport.Send(protocol.EncodeError("Access denied to board"))
	case err != nil:
		r.logger.Error("Join failed",
			slog.String("connID", conn.ID.String()),
			slog.String("boardID", boardID),
			slog.Any("error", err),
		)
		conn.Transport.Send(protocol.EncodeError("Unable to join board"))
	}
}

func (r *EventRouter) handleLeaveBoard(ctx context.Context, conn *state.Connection, msg *protocol.Message) {
	if _, ok := r.authorizeEvent(conn, msg); !ok {
		return
	}

	boardID := boardIDFromPayload(msg.Payload)
	if boardID == "" {
		conn.Transport.Send(protocol.EncodeError("Missing board id"))
		return
	}
	if err := r.rooms.Leave(conn.ID, boardID); err != nil {
		r.logger.Error("Leave failed",
			slog.String("connID", conn.ID.String()),
			slog.String("boardID", boardID),
			slog.Any("error", err),
		)
	}
}

// handleMoveCard is the one stateful command of the real-time layer:
// authorize, persist, then broadcast as a unit. A failed mutation is
// reported to the caller only and never broadcast.
func (r *EventRouter) handleMoveCard(ctx context.Context, conn *state.Connection, msg *protocol.Message) {
	identity, ok := r.authorizeEvent(conn, msg)
	if !ok {
		return
	}

	var payload MoveCardPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		conn.Transport.Send(protocol.EncodeError("Malformed message"))
		return
	}
	if payload.CardID == "" || payload.ToColumnID == "" || payload.BoardID == "" {
		conn.Transport.Send(protocol.EncodeError("Malformed message"))
		return
	}

	// Membership is re-checked per command, not reused from join time.
	member, err := r.authz.IsMember(ctx, identity.UserID, payload.BoardID)
	if err != nil {
		r.logger.Error("Membership check failed",
			slog.String("userID", identity.UserID),
			slog.String("boardID", payload.BoardID),
			slog.Any("error", err),
		)
		conn.Transport.Send(protocol.EncodeError("Unable to move card"))
		return
	}
	if !member {
		r.logger.Warn("Move denied",
			slog.String("userID", identity.UserID),
			slog.String("boardID", payload.BoardID),
		)
		conn.Transport.Send(protocol.EncodeError("Access denied"))
		return
	}

	card, err := r.cards.MoveCard(ctx, payload.CardID, payload.ToColumnID, payload.ToPosition)
	if err != nil {
		r.logger.Error("Card move failed",
			slog.String("cardID", payload.CardID),
			slog.String("userID", identity.UserID),
			slog.Any("error", err),
		)
		if errors.Is(err, board.ErrNotFound) {
			conn.Transport.Send(protocol.EncodeError("Card not found"))
			return
		}
		conn.Transport.Send(protocol.EncodeError("Unable to move card"))
		return
	}

	moved := CardMovedPayload{
		CardID:     card.ID,
		ToColumnID: card.ColumnID,
		ToPosition: card.Position,
		MovedBy:    identity.UserID,
		Timestamp:  time.Now().UTC(),
	}
	raw, err := json.Marshal(moved)
	if err != nil {
		r.logger.Error("Failed to marshal cardMoved payload", slog.Any("error", err))
		return
	}

	r.rooms.BroadcastGlobal(ctx, room.RoomID(payload.BoardID), "cardMoved", raw)
	r.logger.Info("Card moved",
		slog.String("cardID", card.ID),
		slog.String("boardID", payload.BoardID),
		slog.String("movedBy", identity.UserID),
	)
}
