package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardcast/boardcast/internal/auth"
	"github.com/boardcast/boardcast/internal/authz"
	"github.com/boardcast/boardcast/internal/board"
	"github.com/boardcast/boardcast/pkg/config"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

// pingableStore is a card store with database connectivity reporting, the
// shape the health handler probes for.
type pingableStore struct {
	pingErr error
}

func (s *pingableStore) MoveCard(ctx context.Context, cardID, columnID string, position int) (board.Card, error) {
	return board.Card{ID: cardID, ColumnID: columnID, Position: position}, nil
}

func (s *pingableStore) Ping(ctx context.Context) error { return s.pingErr }

func newTestApp(t *testing.T, cards board.Mover) *App {
	t.Helper()
	verifier, err := auth.NewVerifier("server-test-secret", "https://id.example.com")
	require.NoError(t, err)

	checker := authz.CheckerFunc(func(ctx context.Context, userID, boardID string) (bool, error) {
		return true, nil
	})
	cfg := &config.Config{}
	cfg.Server.Address = ":0"

	return NewApp(newTestLogger(), context.Background(), cfg, verifier, checker, cards)
}

func healthBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthzReportsDatabaseOK(t *testing.T) {
	app := newTestApp(t, &pingableStore{})

	rec := httptest.NewRecorder()
	app.healthzHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := healthBody(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["database"])
	assert.Equal(t, "unconfigured", body["fanout"])
}

func TestHealthzReportsDatabaseUnreachable(t *testing.T) {
	app := newTestApp(t, &pingableStore{pingErr: errors.New("connection refused")})

	rec := httptest.NewRecorder()
	app.healthzHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := healthBody(t, rec)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, "unreachable", body["database"])
}
