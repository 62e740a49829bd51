package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/boardcast/boardcast/internal/server/middleware"
)

// The upgrade URL carries the client's bearer token as a query parameter;
// it must never end up in the request log.
func TestRequestLoggerOmitsQueryString(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := middleware.Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		middleware.RequestMetadataMiddleware(),
		middleware.NewRequestLogger(logger),
	)

	req := httptest.NewRequest(http.MethodGet, "/ws?token=super-secret-credential", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.Contains(t, out, "/ws")
	assert.NotContains(t, out, "super-secret-credential")
}
