// -----------------------------------------------------------------------------
// Component and Request Loggers
// -----------------------------------------------------------------------------
//
// Usage:
//   log := logging.Component("projects")
//   log.Warn("namespace fetch failed", "namespace", ns, "err", err)
//
//   logging.FromRequest(r).Info("token exchange complete")
//
// -----------------------------------------------------------------------------

package logging

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Component returns the default logger tagged with a component name.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}

// FromRequest returns the default logger enriched with request-scoped tags:
// the chi request id when present, method and path.
func FromRequest(r *http.Request) *slog.Logger {
	attrs := []any{"method", r.Method, "path", r.URL.Path}
	if id := middleware.GetReqID(r.Context()); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	return slog.Default().With(attrs...)
}
