package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Logging returns a middleware that logs every request once it completes.
// It logs the method, path, status, duration and acting user. Server errors
// are logged at error level and client errors at warn.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		// The user is only known after RequireAuth ran further down the chain.
		var userID string
		next.ServeHTTP(ww, r.WithContext(withUserSink(r.Context(), &userID)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"user_id", userID,
			"request_id", chimw.GetReqID(r.Context()),
		}
		switch {
		case status >= http.StatusInternalServerError:
			slog.ErrorContext(r.Context(), "HTTP request", attrs...)
		case status >= http.StatusBadRequest:
			slog.WarnContext(r.Context(), "HTTP request", attrs...)
		default:
			slog.InfoContext(r.Context(), "HTTP request", attrs...)
		}
	})
}
