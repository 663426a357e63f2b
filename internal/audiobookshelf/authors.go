package audiobookshelf

import (
	"context"
	"net/http"
	"net/url"
)

// AuthorDetails is the public subset of an author record.
type AuthorDetails struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// Authors performs uncached author lookups for the proxy routes.
type Authors struct {
	api
}

// NewAuthors builds the author lookup client.
func NewAuthors(cfg Config, hc *http.Client) *Authors {
	return &Authors{api: newAPI(cfg, hc, "audiobookshelf-authors")}
}

// Details fetches an author record.
func (a *Authors) Details(ctx context.Context, id string) (*AuthorDetails, error) {
	if !a.cfg.Configured() {
		return nil, ErrNotConfigured
	}

	var d AuthorDetails
	if err := a.getJSON(ctx, "/api/authors/"+url.PathEscape(id), &d); err != nil {
		return nil, err
	}
	if d.Description != nil && *d.Description == "" {
		d.Description = nil
	}
	return &d, nil
}

// Image fetches an author portrait and its content type.
func (a *Authors) Image(ctx context.Context, id string) ([]byte, string, error) {
	if !a.cfg.Configured() {
		return nil, "", ErrNotConfigured
	}

	data, ct, err := a.http.GetBytes(ctx, a.base+"/api/authors/"+url.PathEscape(id)+"/image", a.header())
	if err != nil {
		return nil, "", err
	}
	if ct == "" {
		ct = "image/jpeg"
	}
	return data, ct, nil
}
