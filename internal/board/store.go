// Package board holds the narrow slice of board persistence the real-time
// layer needs: the atomic card move. Everything else about boards is served
// by the CRUD API and is not represented here.
package board

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the target card does not exist.
var ErrNotFound = errors.New("card not found")

// Card is the persisted card state after a move.
type Card struct {
	ID        string
	ColumnID  string
	Position  int
	UpdatedAt time.Time
}

// Mover applies the atomic column/position update for a card. The store is
// the single source of truth; concurrent moves resolve last-write-wins at
// this layer.
type Mover interface {
	MoveCard(ctx context.Context, cardID, columnID string, position int) (Card, error)
}
