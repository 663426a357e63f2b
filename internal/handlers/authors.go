package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/afreidah/personal-site-backend/internal/audiobookshelf"
	"github.com/afreidah/personal-site-backend/internal/logging"
	"github.com/afreidah/personal-site-backend/internal/remote"
	"github.com/go-chi/chi/v5"
)

// AuthorLookup fetches author data on demand.
type AuthorLookup interface {
	Details(ctx context.Context, id string) (*audiobookshelf.AuthorDetails, error)
	Image(ctx context.Context, id string) ([]byte, string, error)
}

// AuthorDetails proxies /api/audiobookshelf/author-details/{id}.
func AuthorDetails(a AuthorLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeText(w, http.StatusBadRequest, "Author ID required")
			return
		}

		d, err := a.Details(r.Context(), id)
		if err != nil {
			writeAuthorError(w, r, err, "Author not found", "Failed to fetch author details")
			return
		}
		writeJSON(w, r, http.StatusOK, d)
	}
}

// AuthorImage proxies /api/audiobookshelf/author-image/{id}.
func AuthorImage(a AuthorLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeText(w, http.StatusBadRequest, "Author ID required")
			return
		}

		data, ct, err := a.Image(r.Context(), id)
		if err != nil {
			writeAuthorError(w, r, err, "Image not found", "Failed to fetch author image")
			return
		}

		w.Header().Set("Content-Type", ct)
		if _, err := w.Write(data); err != nil {
			logging.FromRequest(r).Debug("error writing author image", "err", err)
		}
	}
}

// writeAuthorError maps lookup failures: unconfigured is 503, an upstream
// error status is 404, anything else is 500.
func writeAuthorError(w http.ResponseWriter, r *http.Request, err error, notFound, failed string) {
	var se *remote.StatusError
	switch {
	case errors.Is(err, audiobookshelf.ErrNotConfigured):
		writeText(w, http.StatusServiceUnavailable, "AudioBookshelf not configured")
	case errors.As(err, &se):
		writeText(w, http.StatusNotFound, notFound)
	default:
		logging.FromRequest(r).Warn("author lookup failed", "err", err)
		writeText(w, http.StatusInternalServerError, failed)
	}
}
