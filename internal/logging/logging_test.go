package logging

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
)

// TestParseTags verifies LOG_TAGS parsing tolerates junk pairs
func TestParseTags(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]string
	}{
		{"", map[string]string{}},
		{"env=prod", map[string]string{"env": "prod"}},
		{"env=prod, region = eu ,", map[string]string{"env": "prod", "region": "eu"}},
		{"novalue=,=nokey,bare", map[string]string{}},
		{"url=a=b", map[string]string{"url": "a=b"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parseTags(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %v, got %v", tt.want, got)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("tag %s: expected %q, got %q", k, v, got[k])
				}
			}
		})
	}
}

// TestParseLevel verifies level names and the info default
func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}

// TestInitTagsAndComponent verifies static tags and component attrs land in JSON output
func TestInitTagsAndComponent(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	Init(Options{Level: slog.LevelDebug, Tags: map[string]string{"service": "site"}, Output: &buf})

	Component("analytics").Debug("recomputed", "views", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if rec["service"] != "site" {
		t.Errorf("Expected service tag, got %v", rec["service"])
	}
	if rec["component"] != "analytics" {
		t.Errorf("Expected component tag, got %v", rec["component"])
	}
	if rec["msg"] != "recomputed" {
		t.Errorf("Expected msg 'recomputed', got %v", rec["msg"])
	}
}

// TestFromRequest verifies the request id is attached when chi set one
func TestFromRequest(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	Init(Options{Format: "text", Output: &buf})

	r := httptest.NewRequest("GET", "/api/mal/callback", nil)
	r = r.WithContext(context.WithValue(r.Context(), middleware.RequestIDKey, "req-1"))
	FromRequest(r).Info("hello")

	out := buf.String()
	for _, want := range []string{"request_id=req-1", "path=/api/mal/callback", "method=GET"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in %q", want, out)
		}
	}
}
