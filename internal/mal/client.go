// -----------------------------------------------------------------------------
// MyAnimeList Cache
// -----------------------------------------------------------------------------

package mal

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

// maxPages bounds pagination per list in case the provider loops.
const maxPages = 100

const listFields = "list_status{start_date,finish_date},num_episodes,start_season,mean,status,media_type,synopsis,genres"

// Client fetches the authenticated user's profile and anime lists.
type Client struct {
	cfg    Config
	tokens *TokenStore
	http   *remote.Client
	log    *slog.Logger
}

// NewClient builds the MyAnimeList fetcher.
func NewClient(tokens *TokenStore, hc *http.Client) *Client {
	return &Client{
		cfg:    tokens.cfg,
		tokens: tokens,
		http:   remote.New(hc),
		log:    slog.Default().With("component", "mal"),
	}
}

func (c *Client) ServiceName() string { return "MyAnimeList" }

// Enabled reports whether client credentials are configured.
func (c *Client) Enabled() bool { return c.cfg.Configured() }

// Describe summarizes a fetch for the success log.
func (c *Client) Describe(d *Data) []any {
	return []any{"anime", d.Statistics.TotalAnime, "watching", d.Statistics.Watching}
}

// Fetch loads the user profile and the five status lists concurrently.
// Missing tokens yield no data. A 401 from any call triggers one refresh
// and fails the tick; the next tick uses the new token.
func (c *Client) Fetch(ctx context.Context) (*Data, error) {
	token, err := c.tokens.AccessToken(ctx)
	if errors.Is(err, ErrNoTokens) {
		c.log.Warn("no tokens available")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}

	header := remote.Bearer(token)
	header.Set("X-MAL-Client-ID", c.cfg.ClientID)

	var (
		data  Data
		lists = []struct {
			status string
			dst    *[]AnimeListItem
		}{
			{"watching", &data.Watching},
			{"completed", &data.Completed},
			{"on_hold", &data.OnHold},
			{"dropped", &data.Dropped},
			{"plan_to_watch", &data.PlanToWatch},
		}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var u UserInfo
		if err := c.http.GetJSON(gctx, c.cfg.APIBase+"/users/@me?fields=anime_statistics", header, &u); err != nil {
			return fmt.Errorf("user info: %w", err)
		}
		data.User = &u
		return nil
	})
	for _, l := range lists {
		g.Go(func() error {
			items, err := c.fetchList(gctx, l.status, header)
			if err != nil {
				return fmt.Errorf("%s list: %w", l.status, err)
			}
			*l.dst = items
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if remote.IsStatus(err, http.StatusUnauthorized) {
			c.log.Warn("token rejected, attempting refresh")
			if rerr := c.tokens.Refresh(ctx, token); rerr != nil {
				return nil, errors.Join(err, rerr)
			}
		}
		return nil, err
	}

	if s := data.User.AnimeStatistics; s != nil {
		data.Statistics = Statistics{
			TotalAnime:    s.NumItems,
			TotalEpisodes: s.NumEpisodes,
			DaysWatched:   s.NumDays,
			MeanScore:     s.MeanScore,
			Watching:      s.NumItemsWatching,
			Completed:     s.NumItemsCompleted,
			OnHold:        s.NumItemsOnHold,
			Dropped:       s.NumItemsDropped,
			PlanToWatch:   s.NumItemsPlanToWatch,
		}
	}
	return &data, nil
}

// fetchList follows paging.next until the list is exhausted.
func (c *Client) fetchList(ctx context.Context, status string, header http.Header) ([]AnimeListItem, error) {
	q := url.Values{}
	q.Set("status", status)
	q.Set("sort", "list_updated_at")
	q.Set("limit", "100")
	q.Set("fields", listFields)
	next := c.cfg.APIBase + "/users/@me/animelist?" + q.Encode()

	items := []AnimeListItem{}
	for page := 0; next != "" && page < maxPages; page++ {
		var p listPage
		if err := c.http.GetJSON(ctx, next, header, &p); err != nil {
			return nil, err
		}
		items = append(items, p.Data...)
		next = p.Paging.Next
	}
	return items, nil
}
