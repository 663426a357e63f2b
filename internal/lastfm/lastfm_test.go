package lastfm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serve(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("method") != "user.getrecenttracks" || q.Get("user") != "alice" || q.Get("api_key") != "k" || q.Get("limit") != "1" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantPlaying bool
		wantAlbum   bool
		wantImage   string
	}{
		{
			name: "now playing",
			body: `{"recenttracks":{"track":[{"name":"Song","url":"https://last.fm/s","artist":{"#text":"Band"},"album":{"#text":"LP"},
				"image":[{"size":"small","#text":"s.png"},{"size":"large","#text":"l.png"}],"@attr":{"nowplaying":"true"}}]}}`,
			wantPlaying: true,
			wantAlbum:   true,
			wantImage:   "l.png",
		},
		{
			name:        "last played only",
			body:        `{"recenttracks":{"track":[{"name":"Old","artist":{"#text":"Band"}}]}}`,
			wantPlaying: false,
		},
		{
			name:        "no tracks",
			body:        `{"recenttracks":{"track":[]}}`,
			wantPlaying: false,
		},
		{
			name:        "no album",
			body:        `{"recenttracks":{"track":[{"name":"Song","artist":{"#text":"Band"},"album":{"#text":""},"@attr":{"nowplaying":"true"}}]}}`,
			wantPlaying: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, tt.body, http.StatusOK)
			c := NewClient(Config{APIKey: "k", Username: "alice", Endpoint: srv.URL}, nil, 0)

			got, err := c.Fetch(context.Background())
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if got == nil {
				t.Fatal("Expected a value")
			}
			if got.IsPlaying != tt.wantPlaying {
				t.Fatalf("Expected playing=%v, got %v", tt.wantPlaying, got.IsPlaying)
			}
			if !tt.wantPlaying {
				if got.Track != nil {
					t.Errorf("Expected nil track, got %+v", got.Track)
				}
				return
			}
			if got.Track.Artist != "Band" {
				t.Errorf("Expected artist Band, got %q", got.Track.Artist)
			}
			if (got.Track.Album != nil) != tt.wantAlbum {
				t.Errorf("Album presence mismatch: %v", got.Track.Album)
			}
			if tt.wantImage != "" && (got.Track.Image == nil || *got.Track.Image != tt.wantImage) {
				t.Errorf("Expected image %q, got %v", tt.wantImage, got.Track.Image)
			}
		})
	}
}

func TestFetchError(t *testing.T) {
	srv := serve(t, `{"error":10}`, http.StatusForbidden)
	c := NewClient(Config{APIKey: "k", Username: "alice", Endpoint: srv.URL}, nil, 0)

	if got, err := c.Fetch(context.Background()); err == nil || got != nil {
		t.Fatalf("Expected error and no value, got %v, %v", got, err)
	}
}

func TestEnabledAndInterval(t *testing.T) {
	if NewClient(Config{APIKey: "k"}, nil, 0).Enabled() {
		t.Error("Expected disabled without username")
	}
	c := NewClient(Config{APIKey: "k", Username: "u"}, nil, 0)
	if !c.Enabled() {
		t.Error("Expected enabled")
	}
	if c.Interval() != DefaultInterval {
		t.Errorf("Expected %v, got %v", DefaultInterval, c.Interval())
	}
}
