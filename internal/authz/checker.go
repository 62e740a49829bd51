// Package authz answers one question: may this user observe and mutate this
// board. The answer is sourced from the persisted workspace membership
// relation and is deliberately never cached, so that a revoked grant takes
// effect on the next privileged action.
package authz

import "context"

type Checker interface {
	// IsMember reports whether userID holds a membership grant for boardID.
	IsMember(ctx context.Context, userID, boardID string) (bool, error)
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, userID, boardID string) (bool, error)

func (f CheckerFunc) IsMember(ctx context.Context, userID, boardID string) (bool, error) {
	return f(ctx, userID, boardID)
}
