package handlers

import (
	"context"
	"errors"
	"html"
	"net/http"

	"github.com/afreidah/personal-site-backend/internal/logging"
	"github.com/afreidah/personal-site-backend/internal/mal"
)

// CallbackPath is where MyAnimeList redirects after authorization.
const CallbackPath = "/api/mal/callback"

// Authorizer runs the MyAnimeList authorization-code flow.
type Authorizer interface {
	HasBlob(ctx context.Context) bool
	BeginAuth(ctx context.Context, redirectURL string) (string, error)
	CompleteAuth(ctx context.Context, code, redirectURL string) error
}

// MALAuth starts the authorization flow by redirecting to the provider.
// Once a token blob exists the flow is closed.
func MALAuth(a Authorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.HasBlob(r.Context()) {
			writeText(w, http.StatusForbidden, "Already authenticated")
			return
		}

		target, err := a.BeginAuth(r.Context(), callbackURL(r))
		if errors.Is(err, mal.ErrNotConfigured) {
			writeText(w, http.StatusInternalServerError, "MAL_CLIENT_ID not configured")
			return
		}
		if err != nil {
			logging.FromRequest(r).Error("mal auth start failed", "err", err)
			writeText(w, http.StatusInternalServerError, "Failed to start authorization")
			return
		}

		http.Redirect(w, r, target, http.StatusFound)
	}
}

// MALCallback exchanges the authorization code and stores the tokens.
func MALCallback(a Authorizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.HasBlob(r.Context()) {
			writeText(w, http.StatusForbidden, "Already authenticated")
			return
		}

		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			writeHTML(w, http.StatusBadRequest, "Authorization Failed", "<p>"+html.EscapeString(e)+"</p>")
			return
		}
		code := q.Get("code")
		if code == "" {
			writeHTML(w, http.StatusBadRequest, "Missing authorization code", "")
			return
		}

		err := a.CompleteAuth(r.Context(), code, callbackURL(r))
		switch {
		case err == nil:
			logging.FromRequest(r).Info("mal tokens saved via oauth callback")
			writeHTML(w, http.StatusOK, "Authorization Successful",
				"<p>MyAnimeList tokens have been saved and loaded. You can close this page.</p>")
		case errors.Is(err, mal.ErrNotConfigured):
			writeHTML(w, http.StatusInternalServerError, "MAL credentials not configured", "")
		case errors.Is(err, mal.ErrNoVerifier):
			writeHTML(w, http.StatusBadRequest, "Code verifier not found",
				"<p>Please start the auth flow again by visiting /api/mal/auth</p>")
		default:
			logging.FromRequest(r).Error("mal token exchange failed", "err", err)
			writeHTML(w, http.StatusBadRequest, "Token Exchange Failed",
				"<pre>"+html.EscapeString(err.Error())+"</pre>")
		}
	}
}

// callbackURL rebuilds the public callback address, honouring a TLS
// terminating proxy.
func callbackURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host + CallbackPath
}

func writeHTML(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte("<html><body><h1>" + html.EscapeString(title) + "</h1>" + body + "</body></html>"))
}
