// Package app provides the core application orchestration for the site
// backend.
//
// This package is the composition root: it initializes structured logging,
// loads configuration, constructs every periodic cache and on-demand client
// into a single Services value, and manages their lifecycle next to the
// HTTP server. Handlers receive explicit references from Services; nothing
// in the service packages is a process-wide singleton.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/afreidah/personal-site-backend/internal/analytics"
	"github.com/afreidah/personal-site-backend/internal/anilist"
	"github.com/afreidah/personal-site-backend/internal/audiobookshelf"
	"github.com/afreidah/personal-site-backend/internal/cache"
	"github.com/afreidah/personal-site-backend/internal/config"
	"github.com/afreidah/personal-site-backend/internal/images"
	"github.com/afreidah/personal-site-backend/internal/kvstore"
	"github.com/afreidah/personal-site-backend/internal/lastfm"
	"github.com/afreidah/personal-site-backend/internal/logging"
	"github.com/afreidah/personal-site-backend/internal/mal"
	"github.com/afreidah/personal-site-backend/internal/projects"
	"github.com/afreidah/personal-site-backend/internal/ratelimit"
	"github.com/afreidah/personal-site-backend/internal/requestlog"
	"github.com/afreidah/personal-site-backend/internal/timezone"
	"github.com/afreidah/personal-site-backend/internal/version"
	"github.com/afreidah/personal-site-backend/internal/wakapi"
	"github.com/goccy/go-json"
)

// serviceName is the static service tag on every log line.
const serviceName = "personal-site-backend"

// outboundTimeout bounds every call to a remote API.
const outboundTimeout = 30 * time.Second

var loga = slog.Default().With("component", "app")

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// MustLoadConfig initializes logging and loads the configuration from args
// (without the program name), the environment and an optional YAML file.
// Every configuration problem is logged and the process exits with status
// 1 before anything starts.
func MustLoadConfig(args []string) *config.Config {
	logging.InitFromEnv(version.Tags(serviceName))
	loga = slog.Default().With("component", "app")

	cfg, err := config.Load(args)
	if err != nil {
		loga.Error("configuration error", "err", err)
		os.Exit(1)
	}

	loga.Info("Site Backend Starting",
		"version", version.String(),
		"addr", cfg.Addr(),
		"development", cfg.Development,
	)
	loga.Info("TLS/Autocert settings",
		"tls_enabled", cfg.TLSEnabled,
		"autocert", cfg.TLSAutocert,
	)

	return cfg
}

// -----------------------------------------------------------------------------
// Services
// -----------------------------------------------------------------------------

// Services holds every cache and client the HTTP layer reads from. It is
// built once at startup and passed to the router.
type Services struct {
	AniList    *cache.Periodic[anilist.Data]
	MAL        *cache.Periodic[mal.Data]
	Books      *cache.Periodic[audiobookshelf.Stats]
	Listening  *cache.Periodic[audiobookshelf.Listening]
	Projects   *cache.Periodic[projects.Data]
	NowPlaying *cache.Periodic[lastfm.NowPlaying]
	Wakapi     *cache.Periodic[wakapi.Stats]
	Timezone   *cache.Periodic[json.RawMessage]

	ProfilePicture  *cache.Periodic[images.Image]
	BackgroundLight *cache.Periodic[images.Image]
	BackgroundDark  *cache.Periodic[images.Image]

	Tokens     *mal.TokenStore
	Authors    *audiobookshelf.Authors
	Analytics  *analytics.Aggregator
	Limiter    *ratelimit.Manager
	RequestLog *requestlog.Logger

	store kvstore.Store
}

// NewServices constructs every cache from cfg. Nothing is started.
func NewServices(cfg *config.Config) (*Services, error) {
	hc := &http.Client{Timeout: outboundTimeout}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	namespaces, err := cfg.Namespaces()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("gitlab namespaces: %w", err)
	}

	projectClient, err := projects.NewClient(projects.Config{
		GitLabURL:    cfg.GitLabURL,
		GitLabToken:  cfg.GitLabToken,
		Namespaces:   namespaces,
		Ignore:       cfg.GitLabIgnore,
		Featured:     cfg.GitLabFeatured,
		TopLanguages: cfg.GitLabTopLanguages,
		External:     cfg.Externals(),
		GitHubToken:  cfg.GitHubToken,
	}, hc)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("projects client: %w", err)
	}

	agg, err := analytics.New(analytics.Options{
		Dir:    cfg.LogDir,
		Window: cfg.AnalyticsWindow,
		Dev:    cfg.Development,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("analytics: %w", err)
	}

	reqlog, err := requestlog.New(cfg.LogDir, nil)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("request log: %w", err)
	}

	tokens := mal.NewTokenStore(mal.Config{
		ClientID:     cfg.MALClientID,
		ClientSecret: cfg.MALClientSecret,
		AccessToken:  cfg.MALAccessToken,
		RefreshToken: cfg.MALRefreshToken,
	}, store, mal.WithHTTPClient(hc))

	abs := audiobookshelf.Config{
		URL:        cfg.AudiobookshelfURL,
		Token:      cfg.AudiobookshelfToken,
		LibraryIDs: cfg.AudiobookshelfLibraryIDs,
	}

	// Hourly caches take the configured interval; live caches carry their
	// own through Interval().
	hourly := cache.WithInterval(cfg.CacheInterval)

	return &Services{
		AniList:   cache.New[anilist.Data](anilist.NewClient(cfg.AniListUsername, "", hc), hourly),
		MAL:       cache.New[mal.Data](mal.NewClient(tokens, hc), hourly),
		Books:     cache.New[audiobookshelf.Stats](audiobookshelf.NewStats(abs, hc), hourly),
		Listening: cache.New[audiobookshelf.Listening](audiobookshelf.NewListening(abs, hc, cfg.LiveInterval, nil)),
		Projects:  cache.New[projects.Data](projectClient, hourly),
		NowPlaying: cache.New[lastfm.NowPlaying](lastfm.NewClient(lastfm.Config{
			APIKey:   cfg.LastFMAPIKey,
			Username: cfg.LastFMUsername,
		}, hc, cfg.LiveInterval)),
		Wakapi: cache.New[wakapi.Stats](wakapi.NewClient(wakapi.Config{
			URL: cfg.WakapiURL,
			Key: cfg.WakapiKey,
		}, hc), hourly),
		Timezone: cache.New[json.RawMessage](timezone.NewClient(timezone.Config{
			URL: cfg.TimezoneDBURL,
			ID:  cfg.TimezoneDBID,
		}, hc), hourly),

		ProfilePicture: cache.New[images.Image](images.NewMirror("Profile picture",
			images.ProfilePictureURL(cfg.ProfilePictureURL, cfg.GravatarEmail), hc), hourly),
		BackgroundLight: cache.New[images.Image](images.NewMirror("Background (light)", cfg.BackgroundLightURL, hc), hourly),
		BackgroundDark:  cache.New[images.Image](images.NewMirror("Background (dark)", cfg.BackgroundDarkURL, hc), hourly),

		Tokens:     tokens,
		Authors:    audiobookshelf.NewAuthors(abs, hc),
		Analytics:  agg,
		Limiter:    ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst),
		RequestLog: reqlog,
		store:      store,
	}, nil
}

// MustNewServices is NewServices, exiting with status 1 on failure.
func MustNewServices(cfg *config.Config) *Services {
	s, err := NewServices(cfg)
	if err != nil {
		loga.Error("failed to initialize services", "err", err)
		os.Exit(1)
	}
	return s
}

// openStore opens the token blob backend selected by token_backend.
func openStore(cfg *config.Config) (kvstore.Store, error) {
	switch cfg.TokenBackend {
	case config.BackendBadger:
		s, err := kvstore.OpenBadger(filepath.Join(cfg.DataDir, "badger"))
		if err != nil {
			return nil, fmt.Errorf("open badger token store: %w", err)
		}
		return s, nil
	default:
		s, err := kvstore.NewFile(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open file token store: %w", err)
		}
		return s, nil
	}
}

// Runners lists every periodic cache, in status-report order.
func (s *Services) Runners() []cache.Runner {
	return []cache.Runner{
		s.AniList,
		s.MAL,
		s.Books,
		s.Listening,
		s.Projects,
		s.NowPlaying,
		s.Wakapi,
		s.Timezone,
		s.ProfilePicture,
		s.BackgroundLight,
		s.BackgroundDark,
	}
}

// -----------------------------------------------------------------------------
// Background Lifecycle
// -----------------------------------------------------------------------------

// StartBackground starts every cache, the rate limiter sweep and the
// staleness watchdog. The returned cancel function stops all of them.
func StartBackground(s *Services) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())

	for _, r := range s.Runners() {
		r.Start(ctx)
	}

	go s.Limiter.Run(ctx)
	go startStalenessWatchdog(ctx, s.Runners(), watchdogTick)
	go startSystemdWatchdog(ctx)

	return cancel
}

// Stop halts every cache and waits for in-flight fetches until ctx is done.
// The token store and request log stay open for requests still draining.
func (s *Services) Stop(ctx context.Context) error {
	runners := s.Runners()
	for _, r := range runners {
		r.Stop()
	}

	var errs []error
	for _, r := range runners {
		if err := r.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.ServiceName(), err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the request log and token store. It runs after the HTTP
// server has shut down.
func (s *Services) Close() error {
	var errs []error
	if err := s.RequestLog.Close(); err != nil {
		errs = append(errs, fmt.Errorf("request log: %w", err))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("token store: %w", err))
	}
	return errors.Join(errs...)
}
