package projects

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/afreidah/personal-site-backend/internal/remote"
	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultPerPage is the GitLab page size for namespace listings.
	DefaultPerPage = 100

	// maxPages bounds X-Next-Page pagination per namespace.
	maxPages = 50

	// languageFanout bounds concurrent language lookups.
	languageFanout = 8
)

// gitlabProject is the subset of the GitLab project resource we use.
type gitlabProject struct {
	ID             int       `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	WebURL         string    `json:"web_url"`
	Topics         []string  `json:"topics"`
	StarCount      int       `json:"star_count"`
	ForksCount     int       `json:"forks_count"`
	OpenIssues     int       `json:"open_issues_count"`
	LastActivityAt time.Time `json:"last_activity_at"`
	Namespace      struct {
		Path string `json:"path"`
	} `json:"namespace"`
}

// gitlab talks to the self-hosted GitLab instance.
type gitlab struct {
	base    string
	token   string
	perPage int
	http    *remote.Client
}

func (g *gitlab) header() http.Header {
	h := http.Header{}
	h.Set("PRIVATE-TOKEN", g.token)
	h.Set("Accept", "application/json")
	return h
}

// -----------------------------------------------------------------------------
// Namespace Listing
// -----------------------------------------------------------------------------

// namespaces lists every configured namespace concurrently. A namespace that
// fails is logged and left out; the error slice reports what was skipped.
// The concatenation is re-sorted by last activity, newest first.
func (c *Client) namespaces(ctx context.Context) ([]gitlabProject, []error) {
	results := make([][]gitlabProject, len(c.cfg.Namespaces))
	errs := make([]error, len(c.cfg.Namespaces))

	var g errgroup.Group
	for i, ns := range c.cfg.Namespaces {
		g.Go(func() error {
			list, err := c.gitlab.listNamespace(ctx, ns)
			if err != nil {
				c.log.Warn("namespace fetch failed, skipping", "kind", ns.Kind, "id", ns.ID, "err", err)
				errs[i] = fmt.Errorf("namespace %s/%s: %w", ns.Kind, ns.ID, err)
				return nil
			}
			results[i] = list
			return nil
		})
	}
	_ = g.Wait()

	var all []gitlabProject
	for _, list := range results {
		all = append(all, list...)
	}
	slices.SortStableFunc(all, func(a, b gitlabProject) int {
		return b.LastActivityAt.Compare(a.LastActivityAt)
	})

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	return all, failed
}

// listNamespace pages through /users/:id/projects or /groups/:id/projects.
func (g *gitlab) listNamespace(ctx context.Context, ns Namespace) ([]gitlabProject, error) {
	var out []gitlabProject
	page := "1"

	for i := 0; i < maxPages && page != ""; i++ {
		q := url.Values{}
		q.Set("per_page", strconv.Itoa(g.perPage))
		q.Set("order_by", "last_activity_at")
		q.Set("sort", "desc")
		q.Set("page", page)
		u := fmt.Sprintf("%s/api/v4/%s/%s/projects?%s", g.base, ns.Kind, url.PathEscape(ns.ID), q.Encode())

		resp, err := g.http.Get(ctx, u, g.header())
		if err != nil {
			return nil, err
		}

		var batch []gitlabProject
		err = json.NewDecoder(resp.Body).Decode(&batch)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode projects: %w", err)
		}

		out = append(out, batch...)
		page = resp.Header.Get("X-Next-Page")
	}
	return out, nil
}

// project looks a single project up by its full path.
func (g *gitlab) project(ctx context.Context, path string) (*gitlabProject, error) {
	u := fmt.Sprintf("%s/api/v4/projects/%s", g.base, url.PathEscape(path))
	var p gitlabProject
	if err := g.http.GetJSON(ctx, u, g.header(), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// languages returns the project's language share as percentages.
func (g *gitlab) languages(ctx context.Context, id int) (map[string]float64, error) {
	u := fmt.Sprintf("%s/api/v4/projects/%d/languages", g.base, id)
	langs := map[string]float64{}
	if err := g.http.GetJSON(ctx, u, g.header(), &langs); err != nil {
		return nil, err
	}
	return langs, nil
}

// -----------------------------------------------------------------------------
// Conversion
// -----------------------------------------------------------------------------

// convertGitLab fetches languages for every project and builds the output
// entries in input order. A failed language lookup leaves the list empty.
func (c *Client) convertGitLab(ctx context.Context, list []gitlabProject) []Project {
	out := make([]Project, len(list))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(languageFanout)
	for i, p := range list {
		g.Go(func() error {
			langs, err := c.gitlab.languages(gctx, p.ID)
			if err != nil {
				c.log.Debug("language lookup failed", "project", p.Name, "err", err)
			}
			out[i] = c.fromGitLab(p, topLanguages(langs, c.cfg.TopLanguages), false)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Client) fromGitLab(p gitlabProject, languages []string, featured bool) Project {
	name := p.Name
	if p.Namespace.Path != "" {
		name = p.Namespace.Path + "/" + p.Name
	}

	return Project{
		Name:         name,
		Description:  p.Description,
		SourceURL:    p.WebURL,
		Technologies: technologies(p.Topics, languages),
		Links:        sourceLinks(p.WebURL),
		Stats: Stats{
			Stars:  p.StarCount,
			Forks:  p.ForksCount,
			Issues: p.OpenIssues,
		},
		Featured:  featured || c.isFeatured(p.Name, name),
		Namespace: p.Namespace.Path,
	}
}

func sourceLinks(u string) []Link {
	return []Link{{Text: "Source Code", URL: u}}
}

