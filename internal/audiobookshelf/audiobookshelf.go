// -----------------------------------------------------------------------------
// Audiobookshelf Client
// -----------------------------------------------------------------------------
//
// Package audiobookshelf talks to a self-hosted Audiobookshelf server. It
// provides two periodic caches (hourly listening stats and a 30 second
// "currently listening" poll) plus on-demand author lookups used by the
// author proxy routes.
//
// -----------------------------------------------------------------------------

package audiobookshelf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/afreidah/personal-site-backend/internal/remote"
	"github.com/goccy/go-json"
)

// ErrNotConfigured is returned by author lookups without a server URL or token.
var ErrNotConfigured = errors.New("audiobookshelf: not configured")

// Config holds the server location and credentials.
type Config struct {
	URL   string
	Token string

	// LibraryIDs restricts stats to these libraries; empty means all book
	// libraries.
	LibraryIDs []string
}

// Configured reports whether both URL and token are set.
func (c Config) Configured() bool {
	return c.URL != "" && c.Token != ""
}

// api is the shared request plumbing for all Audiobookshelf types.
type api struct {
	cfg  Config
	base string
	http *remote.Client
	log  *slog.Logger
}

func newAPI(cfg Config, hc *http.Client, component string) api {
	return api{
		cfg:  cfg,
		base: remote.BaseURL(cfg.URL),
		http: remote.New(hc),
		log:  slog.Default().With("component", component),
	}
}

func (a api) header() http.Header {
	return remote.Bearer(a.cfg.Token)
}

func (a api) getJSON(ctx context.Context, path string, out any) error {
	return a.http.GetJSON(ctx, a.base+path, a.header(), out)
}

func (a api) postJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request failed: %w", err)
	}
	req.Header = a.header()
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (a api) coverURL(itemID string) string {
	return a.base + "/api/items/" + itemID + "/cover"
}
