package middleware

import (
	"log/slog"
	"net/http"
)

// NewRequestLogger logs each incoming request before the rest of the chain
// runs, so rejected upgrade attempts are visible too. Only the path is
// logged, never the query string: browser WebSocket clients carry their
// bearer token as a query parameter.
func NewRequestLogger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var ip string
			if reqMeta, ok := ReqMetadataFrom(r.Context()); ok {
				ip = reqMeta.IP
			}

			logger.Info("Incoming HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("ip", ip),
			)
			next.ServeHTTP(w, r)
		})
	}
}
