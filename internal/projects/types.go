package projects

import (
	"fmt"
	"strings"
)

// Data is the cached project list.
type Data struct {
	Projects []Project `json:"projects"`
}

// Project is a repository merged from one of the supported forges.
type Project struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	SourceURL    string   `json:"sourceUrl"`
	Technologies []string `json:"technologies"`
	Links        []Link   `json:"links"`
	Stats        Stats    `json:"stats"`
	Featured     bool     `json:"featured"`
	Namespace    string   `json:"namespace,omitempty"`
}

// Link is a labelled project link.
type Link struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Stats are repository counters.
type Stats struct {
	Stars  int `json:"stars"`
	Forks  int `json:"forks"`
	Issues int `json:"issues"`
}

// -----------------------------------------------------------------------------
// Configuration Values
// -----------------------------------------------------------------------------

// Namespace kinds as they appear in GitLab API paths.
const (
	KindUser  = "users"
	KindGroup = "groups"
)

// Namespace is a GitLab user or group whose projects are listed.
type Namespace struct {
	Kind string
	ID   string
}

// ParseNamespace parses "user:<id>" or "group:<id>". A bare id is a user.
func ParseNamespace(s string) (Namespace, error) {
	s = strings.TrimSpace(s)
	kind, id, found := strings.Cut(s, ":")
	if !found {
		kind, id = "user", s
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Namespace{}, fmt.Errorf("empty namespace in %q", s)
	}

	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "user", "users":
		return Namespace{Kind: KindUser, ID: id}, nil
	case "group", "groups":
		return Namespace{Kind: KindGroup, ID: id}, nil
	default:
		return Namespace{}, fmt.Errorf("unknown namespace kind %q in %q", kind, s)
	}
}

// External is a single repository referenced by URL.
type External struct {
	URL      string `koanf:"url" yaml:"url"`
	Featured bool   `koanf:"featured" yaml:"featured"`
}

// ParseExternal parses a PROJECT_LINKS entry; a leading '*' marks it featured.
func ParseExternal(s string) External {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "*"); ok {
		return External{URL: strings.TrimSpace(rest), Featured: true}
	}
	return External{URL: s}
}

// -----------------------------------------------------------------------------
// Merge Helpers
// -----------------------------------------------------------------------------

// technologies unions topics and languages, keeping first-seen order.
func technologies(topics, languages []string) []string {
	seen := make(map[string]struct{}, len(topics)+len(languages))
	out := make([]string, 0, len(topics)+len(languages))
	for _, list := range [][]string{topics, languages} {
		for _, t := range list {
			if t == "" {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
