package remote

import (
	"net/url"
	"strings"
)

// NormalizeURL prefixes https:// when s carries no http(s) scheme.
func NormalizeURL(s string) string {
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	return "https://" + s
}

// TrimTrailingSlash removes one trailing slash.
func TrimTrailingSlash(s string) string {
	return strings.TrimSuffix(s, "/")
}

// BaseURL normalizes a configured service root for path concatenation.
func BaseURL(s string) string {
	if s == "" {
		return ""
	}
	return TrimTrailingSlash(NormalizeURL(strings.TrimSpace(s)))
}

// Host returns the lowercase host of a URL, or "" if it does not parse.
func Host(s string) string {
	u, err := url.Parse(NormalizeURL(s))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// redact strips credentials carried in query strings (api keys) from URLs
// that end up in errors and logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	changed := false
	for _, k := range []string{"api_key", "apikey", "key", "token"} {
		if q.Has(k) {
			q.Set(k, "REDACTED")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}
