package board

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type PGStore struct {
	db *sql.DB
}

// Open connects to Postgres with pool settings tuned for many short queries.
func Open(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PGStore{db: db}, nil
}

// NewPGStore wraps an existing handle. Used by tests and shared-pool wiring.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

func (s *PGStore) Close() error { return s.db.Close() }

func (s *PGStore) DB() *sql.DB { return s.db }

var _ Mover = (*PGStore)(nil)

func (s *PGStore) MoveCard(ctx context.Context, cardID, columnID string, position int) (Card, error) {
	var card Card
	err := s.db.QueryRowContext(ctx, `
		update cards
		set column_id = $2, position = $3, updated_at = now()
		where id = $1
		returning id, column_id, position, updated_at
	`, cardID, columnID, position).Scan(&card.ID, &card.ColumnID, &card.Position, &card.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Card{}, ErrNotFound
	}
	if err != nil {
		return Card{}, err
	}
	return card, nil
}

// Ping verifies database connectivity for readiness probes.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
