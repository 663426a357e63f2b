// -----------------------------------------------------------------------------
// Request Log
// -----------------------------------------------------------------------------
//
// Package requestlog appends one JSON line per HTTP request to a daily file
// (logs/YYYY-MM-DD.jsonl). The analytics aggregator reads these files back:
//
//	{"timestamp":"...","level":"GET","id":"<uuid>",
//	 "data":{"context":"200","data":["https://host/path","1.23ms","1.2.3.4"]}}
//
// Static assets, author proxy calls, the favicon and the operational
// endpoints (/health, /metrics) are not logged.
//
// -----------------------------------------------------------------------------

package requestlog

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/afreidah/personal-site-backend/internal/ratelimit"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	ignoredPrefixes = []string{
		"/public",
		"/api/audiobookshelf/author-image",
		"/api/audiobookshelf/author-details",
	}
	ignoredPaths = []string{"/favicon.ico", "/health", "/metrics"}
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("requestlog: logger closed")

// Record is one request log line.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	ID        string    `json:"id"`
	Data      Data      `json:"data"`
}

// Data carries the status and the [url, duration, ip] triple.
type Data struct {
	Context string   `json:"context"`
	Data    []string `json:"data"`
}

// Logger writes request records into dir.
type Logger struct {
	dir   string
	clock clockwork.Clock
	log   *slog.Logger

	mu     sync.Mutex
	day    string
	file   *os.File
	closed bool
}

// New creates a logger writing to dir, creating it if needed.
func New(dir string, clock clockwork.Clock) (*Logger, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Logger{
		dir:   dir,
		clock: clock,
		log:   slog.Default().With("component", "requestlog"),
	}, nil
}

// Middleware records every request that is not ignored.
func (l *Logger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ignored(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := l.clock.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := l.clock.Since(start)

		rec := Record{
			Timestamp: start.UTC(),
			Level:     r.Method,
			ID:        uuid.NewString(),
			Data: Data{
				Context: strconv.Itoa(status),
				Data: []string{
					fullURL(r),
					fmt.Sprintf("%.2fms", float64(elapsed.Microseconds())/1000),
					ratelimit.GetIP(r),
				},
			},
		}
		if err := l.Write(rec); err != nil {
			l.log.Warn("request log write failed", "err", err)
		}
	})
}

// Write appends rec to the file for its day.
func (l *Logger) Write(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	day := rec.Timestamp.Format(time.DateOnly)
	if l.file == nil || day != l.day {
		if l.file != nil {
			l.file.Close()
		}
		f, err := os.OpenFile(filepath.Join(l.dir, day+".jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			l.file = nil
			return fmt.Errorf("open log file: %w", err)
		}
		l.file, l.day = f, day
	}

	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("append log line: %w", err)
	}
	return nil
}

// Close closes the current file. Later writes fail with ErrClosed.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func ignored(path string) bool {
	if slices.Contains(ignoredPaths, path) {
		return true
	}
	for _, p := range ignoredPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// fullURL rebuilds the absolute request URL, honoring a proxy's
// X-Forwarded-Proto.
func fullURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
