package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/boardcast/boardcast/internal/auth"
)

// NewAuthMiddleware gates the WebSocket upgrade on a verified bearer token.
// The token is read from the Authorization header when present, otherwise
// from the "token" query parameter (browser WebSocket clients cannot set
// headers on the upgrade request). A missing or invalid token rejects the
// request before any transport exists; this is the only place a connection
// is refused for authentication reasons.
func NewAuthMiddleware(logger *slog.Logger, verifier *auth.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				// Metadata middleware did not run; chain is miswired.
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			token := bearerToken(r)
			if token == "" {
				logger.Warn("Connection rejected: no token provided", slog.String("ip", reqMeta.IP))
				http.Error(w, "Missing token", http.StatusUnauthorized)
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				logger.Warn("Connection rejected: invalid token",
					slog.String("ip", reqMeta.IP),
					slog.Any("error", err),
				)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			reqMeta.Identity = identity
			reqMeta.Token = token
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
