package authz

import (
	"context"
	"database/sql"
)

// PGChecker resolves membership grants against Postgres: the user must be a
// member of a workspace that contains the board.
type PGChecker struct {
	db *sql.DB
}

func NewPGChecker(db *sql.DB) *PGChecker {
	return &PGChecker{db: db}
}

var _ Checker = (*PGChecker)(nil)

func (c *PGChecker) IsMember(ctx context.Context, userID, boardID string) (bool, error) {
	var member bool
	err := c.db.QueryRowContext(ctx, `
		select exists (
			select 1
			from workspace_members wm
			join boards b on b.workspace_id = wm.workspace_id
			where wm.user_id = $1 and b.id = $2
		)
	`, userID, boardID).Scan(&member)
	if err != nil {
		return false, err
	}
	return member, nil
}
