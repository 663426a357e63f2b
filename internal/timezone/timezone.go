// Package timezone caches the TimezoneDB record for the site owner.
package timezone

import (
	"context"
	"net/http"
	"net/url"

	"github.com/afreidah/personal-site-backend/internal/remote"
	"github.com/goccy/go-json"
)

// Config locates the TimezoneDB instance.
type Config struct {
	URL string
	ID  string
}

// Client fetches /get?id= and keeps the raw document.
type Client struct {
	cfg  Config
	http *remote.Client
}

// NewClient builds the TimezoneDB fetcher.
func NewClient(cfg Config, hc *http.Client) *Client {
	cfg.URL = remote.BaseURL(cfg.URL)
	return &Client{cfg: cfg, http: remote.New(hc)}
}

func (c *Client) ServiceName() string { return "TimezoneDB" }

// Enabled reports whether a URL and id are configured.
func (c *Client) Enabled() bool { return c.cfg.URL != "" && c.cfg.ID != "" }

// Fetch returns the document unchanged.
func (c *Client) Fetch(ctx context.Context) (*json.RawMessage, error) {
	var raw json.RawMessage
	u := c.cfg.URL + "/get?id=" + url.QueryEscape(c.cfg.ID)
	if err := c.http.GetJSON(ctx, u, nil, &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}
