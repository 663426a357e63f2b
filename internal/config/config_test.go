// -----------------------------------------------------------------------------
// Configuration Management - Tests
// -----------------------------------------------------------------------------
//
// Test Coverage:
//   - Default values and source precedence (file < env < flags)
//   - Environment name mapping and comma-separated lists
//   - Validation rules, with every failure reported at once
//   - TLS and autocert validation
//   - Derived values (namespaces, external projects)
//
// -----------------------------------------------------------------------------

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/afreidah/personal-site-backend/internal/projects"
)

// validConfig returns a config that passes validation.
func validConfig() *Config {
	return &Config{
		Port:            8080,
		Host:            "0.0.0.0",
		TokenBackend:    BackendFile,
		CacheInterval:   time.Hour,
		LiveInterval:    30 * time.Second,
		AnalyticsWindow: 5 * time.Minute,
		RateLimitRPS:    10,
		RateLimitBurst:  40,
	}
}

// clearEnv blanks every mapped variable so the host environment cannot leak
// into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for name := range envKeys {
		t.Setenv(name, "")
	}
}

// -----------------------------------------------------------------------------
// Loading Tests
// -----------------------------------------------------------------------------

// TestLoadDefaults verifies flag defaults produce a valid config.
func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 8080 || cfg.Host != "0.0.0.0" {
		t.Errorf("Unexpected listen defaults %s", cfg.Addr())
	}
	if cfg.CacheInterval != time.Hour || cfg.LiveInterval != 30*time.Second || cfg.AnalyticsWindow != 5*time.Minute {
		t.Errorf("Unexpected interval defaults %s/%s/%s", cfg.CacheInterval, cfg.LiveInterval, cfg.AnalyticsWindow)
	}
	if cfg.TokenBackend != BackendFile || cfg.LogDir != "logs" || cfg.DataDir != "data" {
		t.Errorf("Unexpected storage defaults %+v", cfg)
	}
	if cfg.Development {
		t.Error("Development should default to false")
	}
}

// TestLoadPrecedence verifies file < environment < flags.
func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "site.yaml")
	yaml := strings.Join([]string{
		"port: 9000",
		"host: 127.0.0.1",
		"anilist_username: from-file",
		"lastfm_api_key: file-key",
		"lastfm_username: file-user",
		"external_projects:",
		"  - url: https://github.com/a/b",
		"    featured: true",
	}, "\n")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("PORT", "9100")
	t.Setenv("ANILIST_USERNAME", "from-env")
	t.Setenv("DEVELOPMENT", "true")
	t.Setenv("CACHE_INTERVAL", "15m")

	cfg, err := Load([]string{"--config", path, "--port", "9200"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 9200 {
		t.Errorf("Expected flag port 9200, got %d", cfg.Port)
	}
	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected file host, got %s", cfg.Host)
	}
	if cfg.AniListUsername != "from-env" {
		t.Errorf("Expected env to override file, got %s", cfg.AniListUsername)
	}
	if cfg.LastFMUsername != "file-user" {
		t.Errorf("Expected file value, got %s", cfg.LastFMUsername)
	}
	if !cfg.Development || cfg.CacheInterval != 15*time.Minute {
		t.Errorf("Expected env dev/interval, got %v/%s", cfg.Development, cfg.CacheInterval)
	}
	if len(cfg.ExternalProjects) != 1 || !cfg.ExternalProjects[0].Featured {
		t.Errorf("Unexpected external projects %+v", cfg.ExternalProjects)
	}
}

// TestLoadEnvLists verifies comma-separated variables become lists.
func TestLoadEnvLists(t *testing.T) {
	clearEnv(t)
	t.Setenv("GITLAB_INSTANCE_URL", "git.example")
	t.Setenv("GITLAB_TOKEN", "tok")
	t.Setenv("GITLAB_NAMESPACES", "user:1, group:infra ,")
	t.Setenv("PROJECT_LINKS", "*https://github.com/a/b,https://codeberg.org/c/d")
	t.Setenv("AUDIOBOOKSHELF_LIBRARY_IDS", "lib1")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ns, err := cfg.Namespaces()
	if err != nil {
		t.Fatalf("Namespaces: %v", err)
	}
	want := []projects.Namespace{{Kind: projects.KindUser, ID: "1"}, {Kind: projects.KindGroup, ID: "infra"}}
	if len(ns) != 2 || ns[0] != want[0] || ns[1] != want[1] {
		t.Errorf("Expected %v, got %v", want, ns)
	}

	ext := cfg.Externals()
	if len(ext) != 2 || !ext[0].Featured || ext[1].Featured || ext[1].URL != "https://codeberg.org/c/d" {
		t.Errorf("Unexpected externals %+v", ext)
	}
	if len(cfg.AudiobookshelfLibraryIDs) != 1 || cfg.AudiobookshelfLibraryIDs[0] != "lib1" {
		t.Errorf("Unexpected library ids %v", cfg.AudiobookshelfLibraryIDs)
	}
}

// TestLoadReportsValidationErrors verifies Load fails on invalid input.
func TestLoadReportsValidationErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("WAKAPI_URL", "waka.example")

	if _, err := Load(nil); err == nil || !strings.Contains(err.Error(), "WAKAPI_KEY") {
		t.Fatalf("Expected WAKAPI_KEY error, got %v", err)
	}
}

// -----------------------------------------------------------------------------
// Validation Tests
// -----------------------------------------------------------------------------

// TestValidatePortRange verifies ports must be in the TCP range 1-65535.
func TestValidatePortRange(t *testing.T) {
	tests := []struct {
		name      string
		port      int
		shouldErr bool
	}{
		{"valid port 80", 80, false},
		{"valid port 8080", 8080, false},
		{"valid port 65535", 65535, false},
		{"invalid port 0", 0, true},
		{"invalid port -1", -1, true},
		{"invalid port 65536", 65536, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Port = tt.port

			err := cfg.Validate()
			if tt.shouldErr && err == nil {
				t.Errorf("Expected error for port %d, got nil", tt.port)
			}
			if !tt.shouldErr && err != nil {
				t.Errorf("Expected no error for port %d, got: %v", tt.port, err)
			}
		})
	}
}

// TestValidateConditionalRequirements verifies each dependent pair.
func TestValidateConditionalRequirements(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		missing string
	}{
		{"audiobookshelf", func(c *Config) { c.AudiobookshelfURL = "abs.example" }, "AUDIOBOOKSHELF_TOKEN"},
		{"timezonedb", func(c *Config) { c.TimezoneDBURL = "tz.example" }, "TIMEZONEDB_ID"},
		{"gitlab", func(c *Config) { c.GitLabURL = "git.example" }, "GITLAB_TOKEN"},
		{"mal", func(c *Config) { c.MALClientID = "id" }, "MAL_CLIENT_SECRET"},
		{"wakapi", func(c *Config) { c.WakapiURL = "waka.example" }, "WAKAPI_KEY"},
		{"lastfm", func(c *Config) { c.LastFMAPIKey = "key" }, "LASTFM_USERNAME"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.missing) {
				t.Errorf("Expected error naming %s, got %v", tt.missing, err)
			}
		})
	}
}

// TestValidateReportsEverything verifies all failures appear in one error.
func TestValidateReportsEverything(t *testing.T) {
	cfg := validConfig()
	cfg.Port = 0
	cfg.AudiobookshelfURL = "abs.example"
	cfg.MALClientID = "id"
	cfg.TokenBackend = "redis"
	cfg.GitLabNamespaces = []string{"team:x"}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation errors")
	}
	for _, want := range []string{"invalid port", "AUDIOBOOKSHELF_TOKEN", "MAL_CLIENT_SECRET", "token_backend", "GITLAB_NAMESPACES"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected %q in %v", want, err)
		}
	}
}

// TestValidateIntervalsAndLimits verifies durations and limits are positive.
func TestValidateIntervalsAndLimits(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero cache interval", func(c *Config) { c.CacheInterval = 0 }},
		{"negative live interval", func(c *Config) { c.LiveInterval = -time.Second }},
		{"zero analytics window", func(c *Config) { c.AnalyticsWindow = 0 }},
		{"zero rate", func(c *Config) { c.RateLimitRPS = 0 }},
		{"zero burst", func(c *Config) { c.RateLimitBurst = 0 }},
		{"negative top languages", func(c *Config) { c.GitLabTopLanguages = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

// TestValidateBadgerBackend verifies the alternate token backend is accepted.
func TestValidateBadgerBackend(t *testing.T) {
	cfg := validConfig()
	cfg.TokenBackend = BackendBadger
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected badger backend to be valid, got %v", err)
	}
}

// -----------------------------------------------------------------------------
// TLS Configuration Tests
// -----------------------------------------------------------------------------

// TestValidateTLSRequiresCertAndKey verifies manual TLS needs both files.
func TestValidateTLSRequiresCertAndKey(t *testing.T) {
	tests := []struct {
		name     string
		certFile string
		keyFile  string
	}{
		{"missing both", "", ""},
		{"missing cert", "", "key.pem"},
		{"missing key", "cert.pem", ""},
		{"files absent", "/nonexistent/cert.pem", "/nonexistent/key.pem"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.TLSEnabled = true
			cfg.TLSCertFile = tt.certFile
			cfg.TLSKeyFile = tt.keyFile

			if err := cfg.Validate(); err == nil {
				t.Error("Expected error for incomplete TLS config, got nil")
			}
		})
	}
}

// TestValidateAutocert covers the autocert rules.
func TestValidateAutocert(t *testing.T) {
	tests := []struct {
		name      string
		domain    string
		port      int
		shouldErr bool
	}{
		{"missing domain", "", 443, true},
		{"domain without dot", "localhost", 443, true},
		{"valid", "example.com", 443, false},
		{"non-443 port only warns", "example.com", 8443, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Port = tt.port
			cfg.TLSAutocert = true
			cfg.TLSAutocertDomain = tt.domain
			cfg.TLSAutocertCache = t.TempDir()

			err := cfg.Validate()
			if tt.shouldErr && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.shouldErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
		})
	}
}

// TestValidateCannotUseBothTLSAndAutocert verifies the modes are exclusive.
func TestValidateCannotUseBothTLSAndAutocert(t *testing.T) {
	cfg := validConfig()
	cfg.TLSEnabled = true
	cfg.TLSCertFile = "cert.pem"
	cfg.TLSKeyFile = "key.pem"
	cfg.TLSAutocert = true
	cfg.TLSAutocertDomain = "example.com"

	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for using both manual TLS and autocert, got nil")
	}
}

// -----------------------------------------------------------------------------
// Derived Values
// -----------------------------------------------------------------------------

func TestExternalsMergeOrder(t *testing.T) {
	cfg := validConfig()
	cfg.ProjectLinks = []string{"https://github.com/a/b", "  "}
	cfg.ExternalProjects = []projects.External{{URL: "https://codeberg.org/c/d", Featured: true}, {}}

	got := cfg.Externals()
	if len(got) != 2 || got[0].URL != "https://github.com/a/b" || !got[1].Featured {
		t.Errorf("Unexpected externals %+v", got)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a, ,b ,c,")
	if strings.Join(got, "|") != "a|b|c" {
		t.Errorf("Expected a|b|c, got %v", got)
	}
}
