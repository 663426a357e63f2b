// -----------------------------------------------------------------------------
// Project Aggregator
// -----------------------------------------------------------------------------
//
// Package projects merges repositories from the self-hosted GitLab instance
// (every configured user or group namespace) with individually listed
// external repositories on GitHub, Codeberg or the GitLab instance itself.
//
// Sources fail independently: a namespace or external URL that cannot be
// fetched is logged and skipped. Only when nothing succeeded and at least
// one source failed does a fetch report an error, leaving the previous
// cached list in place.
//
// Final order is featured projects first, then stars descending. The sort
// is stable, so equal entries keep their source order (GitLab by last
// activity, then externals in configuration order). A repository reachable
// both through a namespace and an external URL appears twice.
//
// -----------------------------------------------------------------------------

package projects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/afreidah/personal-site-backend/internal/remote"
	"github.com/afreidah/personal-site-backend/internal/version"
	"github.com/google/go-github/v47/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// DefaultGitHubBaseURL is the GitHub REST root.
	DefaultGitHubBaseURL = "https://api.github.com/"

	// DefaultCodebergBaseURL is the Codeberg (Gitea) REST root.
	DefaultCodebergBaseURL = "https://codeberg.org/api/v1/"
)

// Config configures the aggregator.
type Config struct {
	GitLabURL    string
	GitLabToken  string
	Namespaces   []Namespace
	Ignore       []string
	Featured     []string
	TopLanguages int
	PerPage      int
	External     []External

	GitHubToken     string
	GitHubBaseURL   string
	CodebergBaseURL string

	// GitHubRate limits outbound GitHub calls; zero selects one per second.
	GitHubRate  rate.Limit
	GitHubBurst int
}

// gitlabConfigured reports whether namespace listing can run.
func (c Config) gitlabConfigured() bool {
	return c.GitLabURL != "" && c.GitLabToken != ""
}

// Client is the project aggregator fetcher.
type Client struct {
	cfg        Config
	gitlab     *gitlab
	gitlabHost string
	github     *github.Client
	codeberg   *github.Client
	limiter    *rate.Limiter
	log        *slog.Logger
}

// NewClient builds the aggregator. hc is used for every outbound call; a
// GitHub token, when set, is layered on top of it.
func NewClient(cfg Config, hc *http.Client) (*Client, error) {
	if hc == nil {
		hc = http.DefaultClient
	}
	if cfg.TopLanguages <= 0 {
		cfg.TopLanguages = DefaultTopLanguages
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = DefaultPerPage
	}
	if cfg.GitHubBaseURL == "" {
		cfg.GitHubBaseURL = DefaultGitHubBaseURL
	}
	if cfg.CodebergBaseURL == "" {
		cfg.CodebergBaseURL = DefaultCodebergBaseURL
	}
	if cfg.GitHubRate == 0 {
		cfg.GitHubRate = rate.Every(time.Second)
	}
	if cfg.GitHubBurst <= 0 {
		cfg.GitHubBurst = 10
	}

	c := &Client{
		cfg:     cfg,
		limiter: rate.NewLimiter(cfg.GitHubRate, cfg.GitHubBurst),
		log:     slog.Default().With("component", "projects"),
	}

	if cfg.gitlabConfigured() {
		base := remote.BaseURL(cfg.GitLabURL)
		c.gitlab = &gitlab{
			base:    base,
			token:   cfg.GitLabToken,
			perPage: cfg.PerPage,
			http:    remote.New(hc),
		}
		c.gitlabHost = remote.Host(base)
	}

	ghHTTP := hc
	if cfg.GitHubToken != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
		ghHTTP = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken}))
	}

	var err error
	if c.github, err = newForgeClient(ghHTTP, cfg.GitHubBaseURL); err != nil {
		return nil, fmt.Errorf("github base url: %w", err)
	}
	if c.codeberg, err = newForgeClient(hc, cfg.CodebergBaseURL); err != nil {
		return nil, fmt.Errorf("codeberg base url: %w", err)
	}
	return c, nil
}

func newForgeClient(hc *http.Client, base string) (*github.Client, error) {
	if base[len(base)-1] != '/' {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	gc := github.NewClient(hc)
	gc.BaseURL = u
	gc.UserAgent = version.UserAgent()
	return gc, nil
}

// -----------------------------------------------------------------------------
// Fetcher
// -----------------------------------------------------------------------------

func (c *Client) ServiceName() string { return "GitLab projects" }

// Enabled reports whether any project source is configured.
func (c *Client) Enabled() bool {
	return (c.gitlab != nil && len(c.cfg.Namespaces) > 0) || len(c.cfg.External) > 0
}

// Describe summarizes a fetch for the success log.
func (c *Client) Describe(d *Data) []any {
	return []any{"projects", len(d.Projects)}
}

// Fetch runs one aggregation.
func (c *Client) Fetch(ctx context.Context) (*Data, error) {
	var (
		out  []Project
		errs []error
	)

	if c.gitlab != nil && len(c.cfg.Namespaces) > 0 {
		list, failed := c.namespaces(ctx)
		errs = append(errs, failed...)
		list = slices.DeleteFunc(list, func(p gitlabProject) bool {
			return slices.Contains(c.cfg.Ignore, p.Name)
		})
		out = append(out, c.convertGitLab(ctx, list)...)
	} else {
		c.log.Debug("gitlab not configured, skipping namespaces")
	}

	for _, ext := range c.cfg.External {
		p, err := c.external(ctx, ext)
		switch {
		case errors.Is(err, errUnsupported):
			c.log.Warn("unsupported external project url", "url", ext.URL)
		case err != nil:
			c.log.Warn("external project fetch failed, skipping", "url", ext.URL, "err", err)
			errs = append(errs, err)
		default:
			out = append(out, *p)
		}
	}

	if len(out) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("all project sources failed: %w", errors.Join(errs...))
	}

	SortFeatured(out)
	if out == nil {
		out = []Project{}
	}
	return &Data{Projects: out}, nil
}

// SortFeatured orders featured projects first, then by stars descending.
// Equal entries keep their relative order.
func SortFeatured(list []Project) {
	slices.SortStableFunc(list, func(a, b Project) int {
		if a.Featured != b.Featured {
			if a.Featured {
				return -1
			}
			return 1
		}
		return b.Stats.Stars - a.Stats.Stars
	})
}

func (c *Client) isFeatured(names ...string) bool {
	for _, n := range names {
		if n != "" && slices.Contains(c.cfg.Featured, n) {
			return true
		}
	}
	return false
}
