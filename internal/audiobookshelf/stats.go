package audiobookshelf

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
)

// libraryFanout bounds concurrent per-library item requests.
const libraryFanout = 4

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Stats is the cached listening statistics payload.
type Stats struct {
	TotalTime      float64           `json:"totalTime"`
	TotalItems     int               `json:"totalItems"`
	TotalBooks     int               `json:"totalBooks"`
	Libraries      []LibraryDetail   `json:"libraries"`
	Items          map[string]Item   `json:"items"`
	Today          float64           `json:"today"`
	RecentSessions []json.RawMessage `json:"recentSessions"`
	MediaProgress  []json.RawMessage `json:"mediaProgress"`
	User           User              `json:"user"`
}

// LibraryDetail is a book library and its item count.
type LibraryDetail struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Total int    `json:"total"`
}

// Item is a library item joined with its listening time.
type Item struct {
	ID            string         `json:"id"`
	TimeListening float64        `json:"timeListening"`
	MediaMetadata map[string]any `json:"mediaMetadata"`
	CoverURL      string         `json:"coverUrl"`
}

// User is the subset of the authorized user exposed publicly.
type User struct {
	Username  string `json:"username,omitempty"`
	IsActive  *bool  `json:"isActive,omitempty"`
	LastSeen  *int64 `json:"lastSeen,omitempty"`
	CreatedAt *int64 `json:"createdAt,omitempty"`
}

type listeningStats struct {
	TotalTime float64 `json:"totalTime"`
	Items     map[string]struct {
		TimeListening float64 `json:"timeListening"`
	} `json:"items"`
	Today          float64           `json:"today"`
	RecentSessions []json.RawMessage `json:"recentSessions"`
}

type authorizeResponse struct {
	User struct {
		Username      string            `json:"username"`
		IsActive      *bool             `json:"isActive"`
		LastSeen      *int64            `json:"lastSeen"`
		CreatedAt     *int64            `json:"createdAt"`
		MediaProgress []json.RawMessage `json:"mediaProgress"`
	} `json:"user"`
}

type library struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
}

type librariesResponse struct {
	Libraries []library `json:"libraries"`
}

type libraryItems struct {
	Total   int `json:"total"`
	Results []struct {
		ID    string `json:"id"`
		Media struct {
			Metadata map[string]any `json:"metadata"`
		} `json:"media"`
	} `json:"results"`
}

// -----------------------------------------------------------------------------
// Stats Fetcher
// -----------------------------------------------------------------------------

// StatsClient fetches listening statistics and library contents.
type StatsClient struct {
	api
}

// NewStats builds the stats fetcher.
func NewStats(cfg Config, hc *http.Client) *StatsClient {
	return &StatsClient{api: newAPI(cfg, hc, "audiobookshelf")}
}

func (c *StatsClient) ServiceName() string { return "Audiobookshelf" }

// Enabled reports whether URL and token are configured.
func (c *StatsClient) Enabled() bool { return c.cfg.Configured() }

// Describe summarizes a fetch for the success log.
func (c *StatsClient) Describe(s *Stats) []any {
	return []any{"books", s.TotalBooks, "in_progress", len(s.MediaProgress)}
}

// Fetch loads stats, the authorized user and the library list together,
// then counts items per allowed library. A failing library counts as empty.
func (c *StatsClient) Fetch(ctx context.Context) (*Stats, error) {
	var (
		ls   listeningStats
		auth authorizeResponse
		libs librariesResponse
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.getJSON(gctx, "/api/me/listening-stats", &ls); err != nil {
			return fmt.Errorf("listening stats: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := c.postJSON(gctx, "/api/authorize", &auth); err != nil {
			return fmt.Errorf("authorize: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := c.getJSON(gctx, "/api/libraries", &libs); err != nil {
			return fmt.Errorf("libraries: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	allowed := c.allowedLibraries(libs.Libraries)
	details, items := c.fetchLibraries(ctx, allowed, ls)

	out := &Stats{
		TotalTime:      ls.TotalTime,
		TotalItems:     len(ls.Items),
		Libraries:      details,
		Items:          items,
		Today:          ls.Today,
		RecentSessions: ls.RecentSessions,
		MediaProgress:  auth.User.MediaProgress,
		User: User{
			Username:  auth.User.Username,
			IsActive:  auth.User.IsActive,
			LastSeen:  auth.User.LastSeen,
			CreatedAt: auth.User.CreatedAt,
		},
	}
	for _, d := range details {
		out.TotalBooks += d.Total
	}
	if out.RecentSessions == nil {
		out.RecentSessions = []json.RawMessage{}
	}
	if out.MediaProgress == nil {
		out.MediaProgress = []json.RawMessage{}
	}
	return out, nil
}

func (c *StatsClient) allowedLibraries(all []library) []library {
	var out []library
	for _, lib := range all {
		if lib.MediaType != "book" {
			continue
		}
		if len(c.cfg.LibraryIDs) > 0 && !slices.Contains(c.cfg.LibraryIDs, lib.ID) {
			continue
		}
		out = append(out, lib)
	}
	return out
}

// fetchLibraries lists every allowed library concurrently. Results keep the
// library order.
func (c *StatsClient) fetchLibraries(ctx context.Context, libs []library, ls listeningStats) ([]LibraryDetail, map[string]Item) {
	details := make([]LibraryDetail, len(libs))
	results := make([]libraryItems, len(libs))

	var g errgroup.Group
	g.SetLimit(libraryFanout)
	for i, lib := range libs {
		details[i] = LibraryDetail{ID: lib.ID, Name: lib.Name}
		g.Go(func() error {
			var li libraryItems
			if err := c.getJSON(ctx, "/api/libraries/"+url.PathEscape(lib.ID)+"/items?limit=0", &li); err != nil {
				c.log.Warn("library items fetch failed", "library", lib.ID, "err", err)
				return nil
			}
			results[i] = li
			return nil
		})
	}
	_ = g.Wait()

	items := make(map[string]Item)
	for i, li := range results {
		details[i].Total = li.Total
		for _, r := range li.Results {
			meta := make(map[string]any, len(r.Media.Metadata)+2)
			for k, v := range r.Media.Metadata {
				meta[k] = v
			}
			if name, ok := meta["authorName"].(string); ok && name != "" {
				meta["authors"] = []map[string]string{{"name": name}}
			}
			if name, ok := meta["seriesName"].(string); ok && name != "" {
				meta["series"] = []map[string]string{{"name": name}}
			}

			items[r.ID] = Item{
				ID:            r.ID,
				TimeListening: ls.Items[r.ID].TimeListening,
				MediaMetadata: meta,
				CoverURL:      c.coverURL(r.ID),
			}
		}
	}
	return details, items
}
