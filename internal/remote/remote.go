// -----------------------------------------------------------------------------
// Outbound HTTP Helpers
// -----------------------------------------------------------------------------
//
// Package remote holds the small HTTP/JSON client shared by every service
// cache. It sets the user agent, maps non-2xx responses to *StatusError and
// decodes bodies with goccy/go-json. No timeout is applied beyond what the
// caller's context and the wrapped http.Client impose.
//
// -----------------------------------------------------------------------------

package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/afreidah/personal-site-backend/internal/version"
	"github.com/goccy/go-json"
)

// maxErrorBody bounds how much of a failed response is kept on StatusError.
const maxErrorBody = 512

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.URL, e.StatusCode, e.Body)
}

// IsStatus reports whether err wraps a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// -----------------------------------------------------------------------------
// Client
// -----------------------------------------------------------------------------

// Client performs GET requests against remote APIs.
type Client struct {
	HTTP *http.Client
}

// New wraps hc, or http.DefaultClient when nil.
func New(hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{HTTP: hc}
}

// Do sends req with the site user agent and returns the response when the
// status is 2xx. Any other status is drained, closed and returned as a
// *StatusError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", version.UserAgent())
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			URL:        redact(req.URL.String()),
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return resp, nil
}

// Get issues a GET with the given headers.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.Do(req)
}

// GetJSON issues a GET and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	header = header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if header.Get("Accept") == "" {
		header.Set("Accept", "application/json")
	}

	resp, err := c.Get(ctx, rawURL, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", redact(rawURL), err)
	}
	return nil
}

// GetBytes issues a GET and returns the body with its content type.
func (c *Client) GetBytes(ctx context.Context, rawURL string, header http.Header) ([]byte, string, error) {
	resp, err := c.Get(ctx, rawURL, header)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", redact(rawURL), err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// Bearer returns an Authorization header carrying token.
func Bearer(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
