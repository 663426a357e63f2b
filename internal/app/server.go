package app

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/afreidah/personal-site-backend/internal/anilist"
	"github.com/afreidah/personal-site-backend/internal/audiobookshelf"
	"github.com/afreidah/personal-site-backend/internal/config"
	"github.com/afreidah/personal-site-backend/internal/handlers"
	"github.com/afreidah/personal-site-backend/internal/lastfm"
	"github.com/afreidah/personal-site-backend/internal/mal"
	"github.com/afreidah/personal-site-backend/internal/metrics"
	"github.com/afreidah/personal-site-backend/internal/projects"
	"github.com/afreidah/personal-site-backend/internal/wakapi"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/acme/autocert"
)

// -----------------------------------------------------------------------------
// Routing
// -----------------------------------------------------------------------------

// NewRouter builds the HTTP routes. /api is rate limited per client IP and
// CORS-enabled; every request except static assets is written to the
// request log the analytics endpoint reads.
func NewRouter(cfg *config.Config, s *Services) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(s.RequestLog.Middleware)

	r.Get("/health", handlers.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/public/*", http.StripPrefix("/public/", http.FileServer(http.Dir(cfg.PublicDir))))

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
		r.Use(s.Limiter.Middleware)

		r.Get("/status", handlers.Status(s.Runners(), s.Limiter))
		r.Get("/analytics", handlers.Analytics(s.Analytics))

		r.Get("/anilist/stats", handlers.CachedJSON[anilist.Data]("AniList stats", s.AniList))

		r.Get("/mal/stats", handlers.CachedJSON[mal.Data]("MAL stats", s.MAL))
		r.Get("/mal/auth", handlers.MALAuth(s.Tokens))
		r.Get("/mal/callback", handlers.MALCallback(s.Tokens))

		r.Get("/audiobookshelf/stats", handlers.CachedJSON[audiobookshelf.Stats]("Books stats", s.Books))
		r.Get("/audiobookshelf/listening", handlers.CachedJSON[audiobookshelf.Listening]("Audiobookshelf listening status", s.Listening))
		r.Get("/audiobookshelf/author-details/{id}", handlers.AuthorDetails(s.Authors))
		r.Get("/audiobookshelf/author-image/{id}", handlers.AuthorImage(s.Authors))

		r.Get("/projects", handlers.CachedJSON[projects.Data]("Projects", s.Projects))
		r.Get("/lastfm/nowplaying", handlers.CachedJSON[lastfm.NowPlaying]("Last.fm now playing", s.NowPlaying))
		r.Get("/wakatime", handlers.CachedJSON[wakapi.Stats]("Wakapi stats", s.Wakapi))
		r.Get("/timezonedb", handlers.CachedJSON[json.RawMessage]("Timezone data", s.Timezone))

		r.Get("/pfp", handlers.CachedImage("Profile picture", s.ProfilePicture))
		r.Get("/background", handlers.Background(s.BackgroundLight, s.BackgroundDark))
	})

	return r
}

// instrument records request count and latency per chi route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			metrics.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
			metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(ww, r)
	})
}

// -----------------------------------------------------------------------------
// HTTP Server Setup
// -----------------------------------------------------------------------------

// SetupHTTPServer builds the server with routes and TLS settings applied.
// The server is not started.
func SetupHTTPServer(cfg *config.Config, s *Services) *http.Server {
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           NewRouter(cfg, s),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	configureTLS(srv, cfg)
	return srv
}

// configureTLS applies one of three modes: Let's Encrypt via autocert,
// manual certificate files, or plain HTTP. In autocert mode a second
// listener on :80 answers ACME challenges.
func configureTLS(srv *http.Server, cfg *config.Config) {
	if cfg.TLSAutocert {
		certManager := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.TLSAutocertDomain),
			Cache:      autocert.DirCache(cfg.TLSAutocertCache),
			Email:      cfg.TLSAutocertEmail,
		}

		srv.TLSConfig = &tls.Config{
			GetCertificate: certManager.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}

		loga.Info("Let's Encrypt autocert enabled", "domain", cfg.TLSAutocertDomain)

		go func() {
			loga.Info("starting HTTP server for ACME challenges", "addr", ":80")
			if err := http.ListenAndServe(":80", certManager.HTTPHandler(nil)); err != nil {
				loga.Error("ACME challenge server error", "err", err)
			}
		}()

	} else if cfg.TLSEnabled {
		srv.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			},
		}
	}
}

// -----------------------------------------------------------------------------
// HTTP Server Start
// -----------------------------------------------------------------------------

// StartHTTPServer serves in the background and tells systemd the service is
// ready. A listener failure exits the process with status 1.
func StartHTTPServer(srv *http.Server, cfg *config.Config) {
	go func() {
		var err error

		switch {
		case cfg.TLSAutocert:
			loga.Info("serving (HTTPS with Let's Encrypt)", "addr", srv.Addr, "domain", cfg.TLSAutocertDomain)
			err = srv.ListenAndServeTLS("", "")
		case cfg.TLSEnabled:
			loga.Info("serving (HTTPS with manual certs)", "addr", srv.Addr)
			err = srv.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		default:
			loga.Info("serving (HTTP)", "addr", srv.Addr)
			err = srv.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			loga.Error("http server failed", "err", err)
			os.Exit(1)
		}
	}()

	notify(daemon.SdNotifyReady)
}

// notify sends state to systemd. Outside systemd this is a no-op.
func notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		loga.Warn("sd_notify failed", "state", state, "err", err)
		return
	}
	if sent {
		loga.Debug("sd_notify sent", "state", state)
	}
}

// -----------------------------------------------------------------------------
// Graceful Shutdown
// -----------------------------------------------------------------------------

// shutdownTimeout is the overall budget for WaitForShutdown.
const shutdownTimeout = 30 * time.Second

// WaitForShutdown blocks until SIGTERM or SIGINT, then shuts down in
// phases within one overall budget: background work is cancelled and the
// caches are drained (at most 5s), then the HTTP server gets the remaining
// time, connections are force closed if the budget is spent, and the token
// store and request log are released last.
func WaitForShutdown(srv *http.Server, s *Services, cancelBackground context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	loga.Info("shutdown signal received; starting graceful shutdown")
	notify(daemon.SdNotifyStopping)

	shutdownStart := time.Now()
	shutdownDeadline := shutdownStart.Add(shutdownTimeout)

	// Phase 1: stop caches and wait for in-flight fetches.
	loga.Info("stopping background work...")
	cancelBackground()

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 5*time.Second)
	if err := s.Stop(drainCtx); err != nil {
		loga.Warn("background shutdown incomplete", "err", err)
	} else {
		loga.Info("background work stopped")
	}
	cancelDrain()

	// Phase 2: HTTP server with the remaining budget.
	remainingTime := time.Until(shutdownDeadline)
	if remainingTime <= 0 {
		remainingTime = 5 * time.Second
	}

	httpShutdownCtx, cancel := context.WithTimeout(context.Background(), remainingTime)
	defer cancel()

	loga.Info("shutting down HTTP server", "timeout", remainingTime.String())
	if err := srv.Shutdown(httpShutdownCtx); err != nil {
		loga.Error("HTTP server shutdown error", "err", err)
	}

	// Phase 3: force close past the deadline.
	if time.Now().After(shutdownDeadline) {
		loga.Warn("shutdown exceeded total timeout; force closing")
		if err := srv.Close(); err != nil {
			loga.Error("failed to force close connections", "err", err)
		}
	}

	// Phase 4: release the token store and request log once no handler
	// can reach them.
	if err := s.Close(); err != nil {
		loga.Warn("failed to release resources", "err", err)
	}

	loga.Info("graceful shutdown complete", "elapsed", time.Since(shutdownStart).String())
}
