// -----------------------------------------------------------------------------
// AniList Cache
// -----------------------------------------------------------------------------
//
// Fetches a public AniList profile, its favourite characters and the five
// anime status lists through the GraphQL API. The six queries run
// concurrently; any failure fails the tick so a partial profile is never
// cached over a complete one.
//
// -----------------------------------------------------------------------------

package anilist

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"github.com/shurcooL/graphql"
	"golang.org/x/sync/errgroup"
)

// DefaultEndpoint is the public AniList GraphQL endpoint.
const DefaultEndpoint = "https://graphql.anilist.co"

// MediaListStatus is the AniList enum used as a query variable.
type MediaListStatus string

// List statuses fetched, in output order.
const (
	StatusCurrent   MediaListStatus = "CURRENT"
	StatusCompleted MediaListStatus = "COMPLETED"
	StatusPaused    MediaListStatus = "PAUSED"
	StatusDropped   MediaListStatus = "DROPPED"
	StatusPlanning  MediaListStatus = "PLANNING"
)

type userQuery struct {
	User User `graphql:"User(name: $username)"`
}

type listQuery struct {
	MediaListCollection struct {
		Lists []struct {
			Entries []Entry
		}
	} `graphql:"MediaListCollection(userName: $username, type: ANIME, status: $status, sort: UPDATED_TIME_DESC)"`
}

// Client is the AniList fetcher.
type Client struct {
	username string
	gql      *graphql.Client
	log      *slog.Logger
}

// NewClient builds an AniList fetcher. endpoint defaults to DefaultEndpoint.
func NewClient(username, endpoint string, hc *http.Client) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		username: username,
		gql:      graphql.NewClient(endpoint, hc),
		log:      slog.Default().With("component", "anilist"),
	}
}

func (c *Client) ServiceName() string { return "AniList" }

// Enabled reports whether a username is configured.
func (c *Client) Enabled() bool { return c.username != "" }

// Describe summarizes a fetch for the success log.
func (c *Client) Describe(d *Data) []any {
	return []any{"anime", d.Statistics.TotalAnime, "watching", d.Statistics.Watching}
}

// Fetch runs the profile query and one list query per status.
func (c *Client) Fetch(ctx context.Context) (*Data, error) {
	var (
		user  userQuery
		data  Data
		lists = []struct {
			status MediaListStatus
			dst    *[]Entry
		}{
			{StatusCurrent, &data.Watching},
			{StatusCompleted, &data.Completed},
			{StatusPaused, &data.OnHold},
			{StatusDropped, &data.Dropped},
			{StatusPlanning, &data.PlanToWatch},
		}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vars := map[string]any{"username": graphql.String(c.username)}
		if err := c.gql.Query(gctx, &user, vars); err != nil {
			return fmt.Errorf("user query: %w", err)
		}
		return nil
	})
	for _, l := range lists {
		g.Go(func() error {
			entries, err := c.fetchList(gctx, l.status)
			if err != nil {
				return fmt.Errorf("%s list: %w", l.status, err)
			}
			*l.dst = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data.User = &user.User
	data.FavouriteCharacters = user.User.Favourites.Characters.Nodes
	if data.FavouriteCharacters == nil {
		data.FavouriteCharacters = []Character{}
	}

	stats := user.User.Statistics.Anime
	data.Statistics = Statistics{
		TotalAnime:    stats.Count,
		TotalEpisodes: stats.EpisodesWatched,
		DaysWatched:   int(math.Round(float64(stats.MinutesWatched) / 1440)),
		MeanScore:     stats.MeanScore,
		Watching:      len(data.Watching),
		Completed:     len(data.Completed),
		OnHold:        len(data.OnHold),
		Dropped:       len(data.Dropped),
		PlanToWatch:   len(data.PlanToWatch),
	}
	return &data, nil
}

// fetchList flattens the collection's lists, keeping only entries whose
// status matches (custom lists can carry other statuses).
func (c *Client) fetchList(ctx context.Context, status MediaListStatus) ([]Entry, error) {
	var q listQuery
	vars := map[string]any{
		"username": graphql.String(c.username),
		"status":   status,
	}
	if err := c.gql.Query(ctx, &q, vars); err != nil {
		return nil, err
	}

	out := []Entry{}
	for _, l := range q.MediaListCollection.Lists {
		for _, e := range l.Entries {
			if e.Status == string(status) {
				out = append(out, e)
			}
		}
	}
	return out, nil
}
