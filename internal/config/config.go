// -----------------------------------------------------------------------
// Configuration Management
// -----------------------------------------------------------------------
//
// Package config loads the site backend configuration from multiple
// sources with clear precedence, then validates it once at startup so a
// broken deployment fails before serving anything.
//
// Precedence (highest to lowest): command-line flags, environment
// variables, config file, flag defaults. Environment variables keep the
// names the site has always used (PORT, GITLAB_TOKEN, ...) and are mapped
// onto configuration keys by an explicit table; comma-separated values
// become lists.
//
// -----------------------------------------------------------------------

package config

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/afreidah/personal-site-backend/internal/projects"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Token blob backends.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// -----------------------------------------------------------------------
// Type Definitions
// -----------------------------------------------------------------------

// Config holds all application configuration values.
type Config struct {
	Port        int    `koanf:"port"`
	Host        string `koanf:"host"`
	Development bool   `koanf:"dev"`
	LogDir      string `koanf:"log_dir"`
	DataDir     string `koanf:"data_dir"`
	PublicDir   string `koanf:"public_dir"`

	TokenBackend string `koanf:"token_backend"`

	CacheInterval   time.Duration `koanf:"cache_interval"`
	LiveInterval    time.Duration `koanf:"live_interval"`
	AnalyticsWindow time.Duration `koanf:"analytics_window"`

	RateLimitRPS   float64  `koanf:"rate_limit_rps"`
	RateLimitBurst int      `koanf:"rate_limit_burst"`
	CORSOrigins    []string `koanf:"cors_origins"`

	AudiobookshelfURL        string   `koanf:"audiobookshelf_url"`
	AudiobookshelfToken      string   `koanf:"audiobookshelf_token"`
	AudiobookshelfLibraryIDs []string `koanf:"audiobookshelf_library_ids"`

	GitLabURL          string              `koanf:"gitlab_url"`
	GitLabToken        string              `koanf:"gitlab_token"`
	GitLabNamespaces   []string            `koanf:"gitlab_namespaces"`
	GitLabIgnore       []string            `koanf:"gitlab_ignore"`
	GitLabFeatured     []string            `koanf:"gitlab_featured"`
	GitLabTopLanguages int                 `koanf:"gitlab_top_languages"`
	ProjectLinks       []string            `koanf:"project_links"`
	ExternalProjects   []projects.External `koanf:"external_projects"`
	GitHubToken        string              `koanf:"github_token"`

	MALClientID     string `koanf:"mal_client_id"`
	MALClientSecret string `koanf:"mal_client_secret"`
	MALAccessToken  string `koanf:"mal_access_token"`
	MALRefreshToken string `koanf:"mal_refresh_token"`

	AniListUsername string `koanf:"anilist_username"`

	LastFMAPIKey   string `koanf:"lastfm_api_key"`
	LastFMUsername string `koanf:"lastfm_username"`

	WakapiURL string `koanf:"wakapi_url"`
	WakapiKey string `koanf:"wakapi_key"`

	TimezoneDBURL string `koanf:"timezonedb_url"`
	TimezoneDBID  string `koanf:"timezonedb_id"`

	GravatarEmail      string `koanf:"gravatar_email"`
	ProfilePictureURL  string `koanf:"profile_picture_url"`
	BackgroundLightURL string `koanf:"background_light_url"`
	BackgroundDarkURL  string `koanf:"background_dark_url"`

	TLSEnabled  bool   `koanf:"tls_enabled"`
	TLSCertFile string `koanf:"tls_cert"`
	TLSKeyFile  string `koanf:"tls_key"`

	TLSAutocert       bool   `koanf:"tls_autocert"`
	TLSAutocertDomain string `koanf:"tls_autocert_domain"`
	TLSAutocertCache  string `koanf:"tls_autocert_cache"`
	TLSAutocertEmail  string `koanf:"tls_autocert_email"`
}

// envKeys maps environment variable names onto configuration keys.
var envKeys = map[string]string{
	"PORT":                       "port",
	"HOST":                       "host",
	"DEVELOPMENT":                "dev",
	"LOG_DIR":                    "log_dir",
	"DATA_DIR":                   "data_dir",
	"PUBLIC_DIR":                 "public_dir",
	"TOKEN_BACKEND":              "token_backend",
	"CACHE_INTERVAL":             "cache_interval",
	"LIVE_INTERVAL":              "live_interval",
	"ANALYTICS_WINDOW":           "analytics_window",
	"RATE_LIMIT_RPS":             "rate_limit_rps",
	"RATE_LIMIT_BURST":           "rate_limit_burst",
	"CORS_ORIGINS":               "cors_origins",
	"AUDIOBOOKSHELF_URL":         "audiobookshelf_url",
	"AUDIOBOOKSHELF_TOKEN":       "audiobookshelf_token",
	"AUDIOBOOKSHELF_LIBRARY_IDS": "audiobookshelf_library_ids",
	"GITLAB_INSTANCE_URL":        "gitlab_url",
	"GITLAB_TOKEN":               "gitlab_token",
	"GITLAB_NAMESPACES":          "gitlab_namespaces",
	"GITLAB_IGNORE":              "gitlab_ignore",
	"GITLAB_FEATURED":            "gitlab_featured",
	"GITLAB_TOP_LANGUAGES":       "gitlab_top_languages",
	"PROJECT_LINKS":              "project_links",
	"GITHUB_TOKEN":               "github_token",
	"MAL_CLIENT_ID":              "mal_client_id",
	"MAL_CLIENT_SECRET":          "mal_client_secret",
	"MAL_ACCESS_TOKEN":           "mal_access_token",
	"MAL_REFRESH_TOKEN":          "mal_refresh_token",
	"ANILIST_USERNAME":           "anilist_username",
	"LASTFM_API_KEY":             "lastfm_api_key",
	"LASTFM_USERNAME":            "lastfm_username",
	"WAKAPI_URL":                 "wakapi_url",
	"WAKAPI_KEY":                 "wakapi_key",
	"TIMEZONEDB_URL":             "timezonedb_url",
	"TIMEZONEDB_ID":              "timezonedb_id",
	"GRAVATAR_EMAIL":             "gravatar_email",
	"PROFILE_PICTURE_URL":        "profile_picture_url",
	"BACKGROUND_LIGHT_URL":       "background_light_url",
	"BACKGROUND_DARK_URL":        "background_dark_url",
	"TLS_ENABLED":                "tls_enabled",
	"TLS_CERT":                   "tls_cert",
	"TLS_KEY":                    "tls_key",
	"TLS_AUTOCERT":               "tls_autocert",
	"TLS_AUTOCERT_DOMAIN":        "tls_autocert_domain",
	"TLS_AUTOCERT_CACHE":         "tls_autocert_cache",
	"TLS_AUTOCERT_EMAIL":         "tls_autocert_email",
}

// listKeys are split on commas when read from the environment.
var listKeys = map[string]bool{
	"cors_origins":               true,
	"audiobookshelf_library_ids": true,
	"gitlab_namespaces":          true,
	"gitlab_ignore":              true,
	"gitlab_featured":            true,
	"project_links":              true,
}

// -----------------------------------------------------------------------
// Configuration Loading
// -----------------------------------------------------------------------

// Load reads configuration from flags (args, without the program name),
// the environment and an optional YAML file, and returns a validated
// Config. Every validation failure is reported in the returned error.
func Load(args []string) (*Config, error) {
	k := koanf.New(".")

	f := pflag.NewFlagSet("site-backend", pflag.ContinueOnError)
	f.Int("port", 8080, "port to listen on (1-65535)")
	f.String("host", "0.0.0.0", "address to bind")
	f.Bool("dev", false, "development mode (analytics cache bypass)")
	f.String("config", "", "path to YAML config file (optional)")
	f.String("log_dir", "logs", "directory for request logs read by analytics")
	f.String("data_dir", "data", "directory for the MyAnimeList token store")
	f.String("public_dir", "public", "directory served under /public")
	f.String("token_backend", BackendFile, "token store backend (file or badger)")
	f.Duration("cache_interval", time.Hour, "refresh interval for hourly caches")
	f.Duration("live_interval", 30*time.Second, "refresh interval for listening and now-playing")
	f.Duration("analytics_window", 5*time.Minute, "maximum age of a cached analytics snapshot")
	f.Float64("rate_limit_rps", 10, "per-IP request rate for /api")
	f.Int("rate_limit_burst", 40, "per-IP burst for /api")
	f.Bool("tls_enabled", false, "enable HTTPS/TLS with manual certificates")
	f.String("tls_cert", "", "path to TLS certificate file (PEM format)")
	f.String("tls_key", "", "path to TLS private key file (PEM format)")
	f.Bool("tls_autocert", false, "enable Let's Encrypt automatic certificates")
	f.String("tls_autocert_domain", "", "domain name for Let's Encrypt certificate")
	f.String("tls_autocert_cache", "/var/cache/site-backend", "directory for certificate cache")
	f.String("tls_autocert_email", "", "email for Let's Encrypt notifications (optional)")

	if err := f.Parse(args); err != nil {
		return nil, fmt.Errorf("error parsing command-line flags: %w", err)
	}

	// Load config file if specified
	configPath, _ := f.GetString("config")
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file not found: %s (error: %w)", configPath, err)
		}

		slog.Info("loading configuration from file", "path", configPath)
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error parsing config file (%s): %w", configPath, err)
		}
	} else {
		slog.Debug("no config file specified, using defaults and environment")
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	// Flags last: unset flags only fill keys no other source provided.
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("error loading command-line flags: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Info("configuration loaded successfully",
		"host", cfg.Host,
		"port", cfg.Port,
		"development", cfg.Development,
		"token_backend", cfg.TokenBackend,
		"cache_interval", cfg.CacheInterval.String(),
		"tls_enabled", cfg.TLSEnabled,
		"tls_autocert", cfg.TLSAutocert,
	)

	return cfg, nil
}

// envValue maps a known environment variable onto its key. Unknown or
// empty variables return an empty key and are skipped.
func envValue(name, value string) (string, any) {
	key, ok := envKeys[name]
	if !ok || strings.TrimSpace(value) == "" {
		return "", nil
	}
	if listKeys[key] {
		return key, splitList(value)
	}
	return key, value
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// -----------------------------------------------------------------------
// Derived Values
// -----------------------------------------------------------------------

// Namespaces parses GitLabNamespaces.
func (c *Config) Namespaces() ([]projects.Namespace, error) {
	out := make([]projects.Namespace, 0, len(c.GitLabNamespaces))
	var errs []error
	for _, s := range c.GitLabNamespaces {
		ns, err := projects.ParseNamespace(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, ns)
	}
	return out, errors.Join(errs...)
}

// Externals merges PROJECT_LINKS entries with the YAML external_projects
// list, in that order.
func (c *Config) Externals() []projects.External {
	out := make([]projects.External, 0, len(c.ProjectLinks)+len(c.ExternalProjects))
	for _, s := range c.ProjectLinks {
		if ext := projects.ParseExternal(s); ext.URL != "" {
			out = append(out, ext)
		}
	}
	for _, ext := range c.ExternalProjects {
		if ext.URL != "" {
			out = append(out, ext)
		}
	}
	return out
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// -----------------------------------------------------------------------
// Validation
// -----------------------------------------------------------------------

// requires lists settings that are only valid together with another one.
var requires = []struct {
	name, dependsOn string
	set, depSet     func(*Config) bool
}{
	{"AUDIOBOOKSHELF_URL", "AUDIOBOOKSHELF_TOKEN",
		func(c *Config) bool { return c.AudiobookshelfURL != "" },
		func(c *Config) bool { return c.AudiobookshelfToken != "" }},
	{"TIMEZONEDB_URL", "TIMEZONEDB_ID",
		func(c *Config) bool { return c.TimezoneDBURL != "" },
		func(c *Config) bool { return c.TimezoneDBID != "" }},
	{"GITLAB_INSTANCE_URL", "GITLAB_TOKEN",
		func(c *Config) bool { return c.GitLabURL != "" },
		func(c *Config) bool { return c.GitLabToken != "" }},
	{"MAL_CLIENT_ID", "MAL_CLIENT_SECRET",
		func(c *Config) bool { return c.MALClientID != "" },
		func(c *Config) bool { return c.MALClientSecret != "" }},
	{"WAKAPI_URL", "WAKAPI_KEY",
		func(c *Config) bool { return c.WakapiURL != "" },
		func(c *Config) bool { return c.WakapiKey != "" }},
	{"LASTFM_API_KEY", "LASTFM_USERNAME",
		func(c *Config) bool { return c.LastFMAPIKey != "" },
		func(c *Config) bool { return c.LastFMUsername != "" }},
}

// Validate checks every setting and returns all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf(
			"invalid port: must be between 1-65535, got %d (use: --port 8080 or PORT=8080)", c.Port))
	}

	for _, r := range requires {
		if r.set(c) && !r.depSet(c) {
			errs = append(errs, fmt.Errorf("%s is set but %s is missing", r.name, r.dependsOn))
		}
	}

	switch c.TokenBackend {
	case BackendFile, BackendBadger:
	default:
		errs = append(errs, fmt.Errorf("invalid token_backend %q: must be %s or %s", c.TokenBackend, BackendFile, BackendBadger))
	}

	if c.CacheInterval <= 0 {
		errs = append(errs, fmt.Errorf("cache_interval must be positive, got %s", c.CacheInterval))
	}
	if c.LiveInterval <= 0 {
		errs = append(errs, fmt.Errorf("live_interval must be positive, got %s", c.LiveInterval))
	}
	if c.AnalyticsWindow <= 0 {
		errs = append(errs, fmt.Errorf("analytics_window must be positive, got %s", c.AnalyticsWindow))
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("rate limit must be positive, got %.2f/s burst %d", c.RateLimitRPS, c.RateLimitBurst))
	}
	if c.GitLabTopLanguages < 0 {
		errs = append(errs, fmt.Errorf("gitlab_top_languages cannot be negative, got %d", c.GitLabTopLanguages))
	}

	if _, err := c.Namespaces(); err != nil {
		errs = append(errs, fmt.Errorf("invalid GITLAB_NAMESPACES: %w", err))
	}

	if c.TLSEnabled && c.TLSAutocert {
		errs = append(errs, errors.New(
			"cannot use both manual TLS and autocert together: "+
				"use either --tls_enabled with --tls_cert/--tls_key, or --tls_autocert with --tls_autocert_domain"))
	} else {
		if c.TLSEnabled {
			if err := c.validateManualTLS(); err != nil {
				errs = append(errs, err)
			}
		}
		if c.TLSAutocert {
			if err := c.validateAutocert(); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// -----------------------------------------------------------------------
// TLS Validation Helpers
// -----------------------------------------------------------------------

// validateManualTLS validates manual TLS configuration including file paths
// and certificate validity.
func (c *Config) validateManualTLS() error {
	if c.TLSCertFile == "" || c.TLSKeyFile == "" {
		return errors.New("TLS certificate and key paths are required when using manual TLS (--tls_cert, --tls_key)")
	}

	for _, p := range []string{c.TLSCertFile, c.TLSKeyFile} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("cannot access TLS file (%s): %w", p, err)
		}
	}

	if err := validateTLSCertificatePair(c.TLSCertFile, c.TLSKeyFile); err != nil {
		return fmt.Errorf("TLS certificate validation failed (cert %s, key %s): %w",
			c.TLSCertFile, c.TLSKeyFile, err)
	}

	slog.Info("TLS certificate pair validated successfully",
		"cert_file", c.TLSCertFile,
		"key_file", c.TLSKeyFile)

	return nil
}

// validateAutocert validates Let's Encrypt autocert configuration.
func (c *Config) validateAutocert() error {
	if c.TLSAutocertDomain == "" {
		return errors.New("domain is required when using Let's Encrypt autocert (--tls_autocert_domain example.com)")
	}

	if !strings.Contains(c.TLSAutocertDomain, ".") {
		return fmt.Errorf("invalid domain for autocert: %q (must contain at least one dot)", c.TLSAutocertDomain)
	}

	if c.Port != 443 {
		slog.Warn("autocert may require port 443 for ACME challenges",
			"current_port", c.Port,
			"note", "this may work behind a reverse proxy that forwards :443")
	}

	if cacheDir := c.TLSAutocertCache; cacheDir != "" {
		testFile := cacheDir + "/.acme-test"
		if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
			return fmt.Errorf("autocert cache directory is not writable: %s", cacheDir)
		}
		if err := os.Remove(testFile); err != nil {
			slog.Warn("failed to remove testfile", "testfile", testFile)
		}
	}

	slog.Info("Let's Encrypt autocert configuration validated",
		"domain", c.TLSAutocertDomain,
		"cache_dir", c.TLSAutocertCache,
		"email", c.TLSAutocertEmail)

	return nil
}

// -----------------------------------------------------------------------
// Certificate Validation
// -----------------------------------------------------------------------

// validateTLSCertificatePair verifies that certificate and key files are
// valid PEM and that the key matches the certificate.
func validateTLSCertificatePair(certFile, keyFile string) error {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return fmt.Errorf("failed to read certificate file: %w", err)
	}

	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return fmt.Errorf("failed to read key file: %w", err)
	}

	if _, err := tls.X509KeyPair(certPEM, keyPEM); err != nil {
		return fmt.Errorf("certificate pair validation failed: %w", err)
	}

	if err := validateCertificateExpiration(certPEM); err != nil {
		slog.Warn("certificate expiration check warning", "err", err)
	}

	return nil
}

// validateCertificateExpiration reports a certificate that has expired or
// expires within a week.
func validateCertificateExpiration(certPEM []byte) error {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return errors.New("failed to decode PEM block")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	now := time.Now()
	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate has expired (valid until %s, now is %s)",
			cert.NotAfter.Format(time.DateOnly), now.Format(time.DateOnly))
	}

	if days := int(time.Until(cert.NotAfter).Hours() / 24); days < 7 {
		return fmt.Errorf("certificate expires in %d days (until %s)",
			days, cert.NotAfter.Format(time.DateOnly))
	}

	return nil
}
