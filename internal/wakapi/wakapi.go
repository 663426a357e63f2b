// -----------------------------------------------------------------------------
// Wakapi Coding Stats
// -----------------------------------------------------------------------------
//
// Package wakapi caches all-time and today coding statistics from a Wakapi
// (WakaTime-compatible) server. The two endpoints are fetched concurrently
// and tolerated independently; the tick fails only when both do.
//
// -----------------------------------------------------------------------------

package wakapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/afreidah/personal-site-backend/internal/remote"
	"golang.org/x/sync/errgroup"
)

// topN is how many entries each ranked list keeps.
const topN = 5

// Config locates the Wakapi instance.
type Config struct {
	URL string
	Key string
}

// Stats is the cached payload.
type Stats struct {
	AllTime AllTime `json:"allTime"`
	Today   Today   `json:"today"`
}

// AllTime summarizes all recorded activity.
type AllTime struct {
	Total            string `json:"total"`
	Average          string `json:"average"`
	Languages        []Item `json:"languages"`
	Projects         []Item `json:"projects"`
	Editors          []Item `json:"editors"`
	OperatingSystems []Item `json:"operatingSystems"`
}

// Today summarizes the current day.
type Today struct {
	Total        string  `json:"total"`
	TotalSeconds float64 `json:"totalSeconds"`
	Languages    []Item  `json:"languages"`
	Projects     []Item  `json:"projects"`
	Editors      []Item  `json:"editors"`
}

// Item is one ranked entry with its share of the total.
type Item struct {
	Name         string  `json:"name"`
	Percent      int     `json:"percent"`
	Hours        int     `json:"hours"`
	Minutes      int     `json:"minutes"`
	TotalSeconds float64 `json:"totalSeconds"`
}

type rawItem struct {
	Name         string  `json:"name"`
	Percent      float64 `json:"percent"`
	TotalSeconds float64 `json:"total_seconds"`
}

type rawStats struct {
	Data struct {
		TotalSeconds          float64   `json:"total_seconds"`
		HumanReadableTotal    string    `json:"human_readable_total"`
		HumanReadableDailyAvg string    `json:"human_readable_daily_average"`
		Languages             []rawItem `json:"languages"`
		Projects              []rawItem `json:"projects"`
		Editors               []rawItem `json:"editors"`
		OperatingSystems      []rawItem `json:"operating_systems"`
	} `json:"data"`
}

// Client fetches Wakapi statistics for the current user.
type Client struct {
	cfg  Config
	http *remote.Client
	log  *slog.Logger
}

// NewClient builds the Wakapi fetcher.
func NewClient(cfg Config, hc *http.Client) *Client {
	cfg.URL = remote.BaseURL(cfg.URL)
	return &Client{
		cfg:  cfg,
		http: remote.New(hc),
		log:  slog.Default().With("component", "wakapi"),
	}
}

func (c *Client) ServiceName() string { return "Wakapi" }

// Enabled reports whether a URL and API key are configured.
func (c *Client) Enabled() bool { return c.cfg.URL != "" && c.cfg.Key != "" }

// Describe summarizes a fetch for the success log.
func (c *Client) Describe(s *Stats) []any {
	return []any{"allTime", s.AllTime.Total, "today", s.Today.Total}
}

// Fetch loads both ranges concurrently.
func (c *Client) Fetch(ctx context.Context) (*Stats, error) {
	var allTime, today *rawStats
	var allErr, todayErr error

	var g errgroup.Group
	g.Go(func() error {
		allTime, allErr = c.stats(ctx, "all_time")
		return nil
	})
	g.Go(func() error {
		today, todayErr = c.stats(ctx, "today")
		return nil
	})
	_ = g.Wait()

	if allErr != nil && todayErr != nil {
		return nil, errors.Join(allErr, todayErr)
	}
	if allErr != nil {
		c.log.Warn("all-time stats failed", "err", allErr)
	}
	if todayErr != nil {
		c.log.Warn("today stats failed", "err", todayErr)
	}

	return format(allTime, today), nil
}

func (c *Client) stats(ctx context.Context, rng string) (*rawStats, error) {
	u := fmt.Sprintf("%s/api/v1/users/current/stats/%s?api_key=%s", c.cfg.URL, rng, url.QueryEscape(c.cfg.Key))
	var out rawStats
	if err := c.http.GetJSON(ctx, u, nil, &out); err != nil {
		return nil, fmt.Errorf("%s stats: %w", rng, err)
	}
	return &out, nil
}

// -----------------------------------------------------------------------------
// Formatting
// -----------------------------------------------------------------------------

func format(allTime, today *rawStats) *Stats {
	if allTime == nil {
		allTime = &rawStats{}
	}
	if today == nil {
		today = &rawStats{}
	}

	a := allTime.Data
	out := &Stats{
		AllTime: AllTime{
			Total:            orDefault(a.HumanReadableTotal, "0h 0m"),
			Average:          orDefault(a.HumanReadableDailyAvg, "0h 0m"),
			Languages:        top(a.Languages),
			Projects:         top(a.Projects),
			Editors:          top(a.Editors),
			OperatingSystems: top(a.OperatingSystems),
		},
	}

	t := today.Data
	hours, minutes := split(t.TotalSeconds)
	total := fmt.Sprintf("%dh", hours)
	if minutes > 0 {
		total = fmt.Sprintf("%dh %dm", hours, minutes)
	}
	out.Today = Today{
		Total:        total,
		TotalSeconds: t.TotalSeconds,
		Languages:    top(t.Languages),
		Projects:     top(t.Projects),
		Editors:      top(t.Editors),
	}
	return out
}

func top(items []rawItem) []Item {
	if len(items) > topN {
		items = items[:topN]
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		h, m := split(it.TotalSeconds)
		out = append(out, Item{
			Name:         it.Name,
			Percent:      int(it.Percent + 0.5),
			Hours:        h,
			Minutes:      m,
			TotalSeconds: it.TotalSeconds,
		})
	}
	return out
}

func split(seconds float64) (hours, minutes int) {
	s := int(seconds)
	return s / 3600, (s % 3600) / 60
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
