package projects

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	githubPattern   = regexp.MustCompile(`github\.com/([^/]+)/([^/?#]+)`)
	codebergPattern = regexp.MustCompile(`codeberg\.org/([^/]+)/([^/?#]+)`)
)

// errUnsupported marks an external URL no known platform matches.
var errUnsupported = errors.New("unsupported project url")

// giteaRepo is the Gitea/Forgejo repository resource served by Codeberg.
type giteaRepo struct {
	Name        string   `json:"name"`
	FullName    string   `json:"full_name"`
	Description string   `json:"description"`
	HTMLURL     string   `json:"html_url"`
	Stars       int      `json:"stars_count"`
	Forks       int      `json:"forks_count"`
	OpenIssues  int      `json:"open_issues_count"`
	Topics      []string `json:"topics"`
	Owner       struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// -----------------------------------------------------------------------------
// Dispatch
// -----------------------------------------------------------------------------

// external resolves one configured URL against GitHub, Codeberg or the
// GitLab instance itself.
func (c *Client) external(ctx context.Context, ext External) (*Project, error) {
	if m := githubPattern.FindStringSubmatch(ext.URL); m != nil {
		return c.githubProject(ctx, m[1], trimGit(m[2]), ext.Featured)
	}
	if m := codebergPattern.FindStringSubmatch(ext.URL); m != nil {
		return c.codebergProject(ctx, m[1], trimGit(m[2]), ext.Featured)
	}
	if path, ok := c.ownForgePath(ext.URL); ok {
		return c.gitlabProject(ctx, path, ext.Featured)
	}
	return nil, errUnsupported
}

// ownForgePath returns the project path of a URL hosted on the configured
// GitLab instance.
func (c *Client) ownForgePath(raw string) (string, bool) {
	if c.gitlab == nil {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if !strings.EqualFold(u.Hostname(), c.gitlabHost) {
		return "", false
	}

	path := trimGit(strings.Trim(u.Path, "/"))
	if !strings.Contains(path, "/") {
		return "", false
	}
	return path, true
}

func trimGit(s string) string {
	return strings.TrimSuffix(strings.TrimSuffix(s, "/"), ".git")
}

// -----------------------------------------------------------------------------
// GitHub
// -----------------------------------------------------------------------------

func (c *Client) githubProject(ctx context.Context, owner, repo string, featured bool) (*Project, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	r, _, err := c.github.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("github %s/%s: %w", owner, repo, err)
	}

	var languages []string
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	langs, _, err := c.github.Repositories.ListLanguages(ctx, owner, repo)
	if err != nil {
		c.log.Debug("github languages failed", "repo", owner+"/"+repo, "err", err)
	} else {
		languages = topLanguages(langs, c.cfg.TopLanguages)
	}

	return &Project{
		Name:         r.GetFullName(),
		Description:  r.GetDescription(),
		SourceURL:    r.GetHTMLURL(),
		Technologies: technologies(r.Topics, languages),
		Links:        sourceLinks(r.GetHTMLURL()),
		Stats: Stats{
			Stars:  r.GetStargazersCount(),
			Forks:  r.GetForksCount(),
			Issues: r.GetOpenIssuesCount(),
		},
		Featured:  featured || c.isFeatured(r.GetName(), r.GetFullName()),
		Namespace: r.GetOwner().GetLogin(),
	}, nil
}

// -----------------------------------------------------------------------------
// Codeberg
// -----------------------------------------------------------------------------

// codebergProject uses the go-github request plumbing against the Gitea API,
// which shares GitHub's repos/{owner}/{repo} layout.
func (c *Client) codebergProject(ctx context.Context, owner, repo string, featured bool) (*Project, error) {
	path := fmt.Sprintf("repos/%s/%s", url.PathEscape(owner), url.PathEscape(repo))

	req, err := c.codeberg.NewRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}
	var r giteaRepo
	if _, err := c.codeberg.Do(ctx, req, &r); err != nil {
		return nil, fmt.Errorf("codeberg %s/%s: %w", owner, repo, err)
	}

	var languages []string
	req, err = c.codeberg.NewRequest("GET", path+"/languages", nil)
	if err != nil {
		return nil, err
	}
	langs := map[string]int64{}
	if _, err := c.codeberg.Do(ctx, req, &langs); err != nil {
		c.log.Debug("codeberg languages failed", "repo", owner+"/"+repo, "err", err)
	} else {
		languages = topLanguages(langs, c.cfg.TopLanguages)
	}

	return &Project{
		Name:         r.FullName,
		Description:  r.Description,
		SourceURL:    r.HTMLURL,
		Technologies: technologies(r.Topics, languages),
		Links:        sourceLinks(r.HTMLURL),
		Stats: Stats{
			Stars:  r.Stars,
			Forks:  r.Forks,
			Issues: r.OpenIssues,
		},
		Featured:  featured || c.isFeatured(r.Name, r.FullName),
		Namespace: r.Owner.Login,
	}, nil
}

// -----------------------------------------------------------------------------
// Own GitLab Instance
// -----------------------------------------------------------------------------

func (c *Client) gitlabProject(ctx context.Context, path string, featured bool) (*Project, error) {
	p, err := c.gitlab.project(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("gitlab %s: %w", path, err)
	}

	var languages []string
	langs, err := c.gitlab.languages(ctx, p.ID)
	if err != nil {
		c.log.Debug("gitlab languages failed", "project", path, "err", err)
	} else {
		languages = topLanguages(langs, c.cfg.TopLanguages)
	}

	out := c.fromGitLab(*p, languages, featured)
	return &out, nil
}
