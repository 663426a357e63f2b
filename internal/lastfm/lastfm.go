// -----------------------------------------------------------------------------
// Last.fm Now Playing
// -----------------------------------------------------------------------------

package lastfm

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/afreidah/personal-site-backend/internal/remote"
)

const (
	// DefaultEndpoint is the Last.fm 2.0 API root.
	DefaultEndpoint = "https://ws.audioscrobbler.com/2.0/"

	// DefaultInterval is the now-playing poll interval.
	DefaultInterval = 30 * time.Second
)

// NowPlaying is the cached payload. Track is nil unless something is
// currently scrobbling.
type NowPlaying struct {
	IsPlaying bool   `json:"isPlaying"`
	Track     *Track `json:"track"`
}

// Track is the currently playing track.
type Track struct {
	Name   string  `json:"name"`
	Artist string  `json:"artist"`
	Album  *string `json:"album"`
	Image  *string `json:"image"`
	URL    string  `json:"url"`
}

type textField struct {
	Text string `json:"#text"`
}

type recentTracks struct {
	RecentTracks struct {
		Track []struct {
			Name   string    `json:"name"`
			URL    string    `json:"url"`
			Artist textField `json:"artist"`
			Album  textField `json:"album"`
			Image  []struct {
				Size string `json:"size"`
				Text string `json:"#text"`
			} `json:"image"`
			Attr struct {
				NowPlaying string `json:"nowplaying"`
			} `json:"@attr"`
		} `json:"track"`
	} `json:"recenttracks"`
}

// Config holds Last.fm credentials.
type Config struct {
	APIKey   string
	Username string
	Endpoint string
}

// Client polls user.getrecenttracks for the latest scrobble.
type Client struct {
	cfg      Config
	interval time.Duration
	http     *remote.Client
	log      *slog.Logger
}

// NewClient builds the now-playing fetcher.
func NewClient(cfg Config, hc *http.Client, interval time.Duration) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Client{
		cfg:      cfg,
		interval: interval,
		http:     remote.New(hc),
		log:      slog.Default().With("component", "lastfm"),
	}
}

func (c *Client) ServiceName() string     { return "Last.fm" }
func (c *Client) Interval() time.Duration { return c.interval }

// Enabled reports whether an API key and username are configured.
func (c *Client) Enabled() bool { return c.cfg.APIKey != "" && c.cfg.Username != "" }

// Describe summarizes a fetch for the success log.
func (c *Client) Describe(n *NowPlaying) []any {
	if n.Track == nil {
		return []any{"playing", false}
	}
	return []any{"playing", true, "track", n.Track.Name}
}

// Fetch returns the latest scrobble. Nothing playing is a value, not an
// empty fetch, so the cache flips back to idle when playback stops.
func (c *Client) Fetch(ctx context.Context) (*NowPlaying, error) {
	q := url.Values{}
	q.Set("method", "user.getrecenttracks")
	q.Set("user", c.cfg.Username)
	q.Set("api_key", c.cfg.APIKey)
	q.Set("format", "json")
	q.Set("limit", "1")

	var resp recentTracks
	if err := c.http.GetJSON(ctx, c.cfg.Endpoint+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	tracks := resp.RecentTracks.Track
	if len(tracks) == 0 || tracks[0].Attr.NowPlaying != "true" {
		return &NowPlaying{}, nil
	}

	t := tracks[0]
	out := &Track{
		Name:   t.Name,
		Artist: t.Artist.Text,
		URL:    t.URL,
	}
	if t.Album.Text != "" {
		out.Album = &t.Album.Text
	}
	for _, img := range t.Image {
		if img.Size == "large" && img.Text != "" {
			out.Image = &img.Text
			break
		}
	}
	return &NowPlaying{IsPlaying: true, Track: out}, nil
}
