// -----------------------------------------------------------------------------
// HTTP Handlers
// -----------------------------------------------------------------------------
//
// This package implements the HTTP boundary of the site backend. Handlers
// are deliberately thin: cached data is read with a single non-blocking Get
// and serialized as-is, so no request ever waits on a remote API.
//
// Response Rules:
//   - Cached JSON: 200 with the value, or 503 {"error":"<name> data not
//     available"} until the first successful fetch
//   - Cached images: 200 with the mirrored bytes and a one hour
//     Cache-Control, or 503 text/plain
//   - Analytics: computed on request from the request logs
//
// Endpoints:
//   GET /health     - 200 while the process is serving
//   GET /api/status - lifecycle report for every periodic cache
//
// -----------------------------------------------------------------------------

package handlers

import (
	"net/http"

	"github.com/afreidah/personal-site-backend/internal/analytics"
	"github.com/afreidah/personal-site-backend/internal/cache"
	"github.com/afreidah/personal-site-backend/internal/images"
	"github.com/afreidah/personal-site-backend/internal/logging"
	"github.com/afreidah/personal-site-backend/internal/version"
	"github.com/goccy/go-json"
)

// CacheControlOneHour is sent with mirrored images.
const CacheControlOneHour = "public, max-age=3600"

// Source is the read side of a periodic cache.
type Source[T any] interface {
	Get() *T
}

// errorBody is the JSON error shape.
type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// -----------------------------------------------------------------------------
// Cached Data
// -----------------------------------------------------------------------------

// CachedJSON serves the current value of src, or 503 while it is empty.
// name is the human-readable label used in the error body.
func CachedJSON[T any](name string, src Source[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := src.Get()
		if v == nil {
			writeJSON(w, r, http.StatusServiceUnavailable, errorBody{Error: name + " data not available"})
			return
		}
		writeJSON(w, r, http.StatusOK, v)
	}
}

// CachedImage serves a mirrored image, or 503 text/plain while it is empty.
func CachedImage(name string, src Source[images.Image]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeImage(w, r, name, src.Get())
	}
}

// Background serves the dark mirror for ?theme=dark and the light one for
// anything else.
func Background(light, dark Source[images.Image]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		src := light
		if r.URL.Query().Get("theme") == "dark" {
			src = dark
		}
		writeImage(w, r, "Background image", src.Get())
	}
}

func writeImage(w http.ResponseWriter, r *http.Request, name string, img *images.Image) {
	if img == nil || len(img.Data) == 0 {
		writeText(w, http.StatusServiceUnavailable, name+" data not available")
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", CacheControlOneHour)
	if _, err := w.Write(img.Data); err != nil {
		logging.FromRequest(r).Debug("error writing image", "err", err)
	}
}

// -----------------------------------------------------------------------------
// Analytics
// -----------------------------------------------------------------------------

// Snapshotter computes analytics snapshots.
type Snapshotter interface {
	Snapshot(route string) (*analytics.Snapshot, error)
}

// Analytics serves page view counts, optionally filtered by ?route=.
func Analytics(a Snapshotter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := a.Snapshot(r.URL.Query().Get("route"))
		if err != nil {
			logging.FromRequest(r).Error("analytics snapshot failed", "err", err)
			writeJSON(w, r, http.StatusInternalServerError, errorBody{
				Error:   "Failed to fetch analytics data",
				Details: err.Error(),
			})
			return
		}
		writeJSON(w, r, http.StatusOK, snap)
	}
}

// -----------------------------------------------------------------------------
// Health and Status
// -----------------------------------------------------------------------------

// Health reports that the process is serving. Cache state is not consulted.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "OK")
}

// StatusResponse is the /api/status payload.
type StatusResponse struct {
	Version   string         `json:"version"`
	Caches    []cache.Status `json:"caches"`
	RateLimit map[string]any `json:"rateLimit,omitempty"`
}

// LimiterStats reports inbound rate limiter state.
type LimiterStats interface {
	Stats() map[string]any
}

// Status reports the lifecycle of every periodic cache and, when limits is
// non-nil, the rate limiter.
func Status(runners []cache.Runner, limits LimiterStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Version: version.String(),
			Caches:  make([]cache.Status, 0, len(runners)),
		}
		for _, rn := range runners {
			resp.Caches = append(resp.Caches, rn.Status())
		}
		if limits != nil {
			resp.RateLimit = limits.Stats()
		}
		writeJSON(w, r, http.StatusOK, resp)
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.FromRequest(r).Error("error encoding response", "err", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.FromRequest(r).Debug("error writing response", "err", err)
	}
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
