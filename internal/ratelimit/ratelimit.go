// -----------------------------------------------------------------------
// Rate Limiting - Per-IP Token Bucket
// -----------------------------------------------------------------------
//
// Package ratelimit provides per-IP rate limiting for the public API using
// a token bucket per client address. Idle entries are evicted by Run, which
// the application starts alongside the caches. GetIP is shared with the
// request log so both agree on who the client is.
//
// -----------------------------------------------------------------------

package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/afreidah/personal-site-backend/internal/metrics"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

var logr = slog.Default().With("component", "ratelimit")

// -----------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------

// ipLimiter holds the bucket for one address and when it was last used.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Manager coordinates per-IP rate limiters and cleanup.
type Manager struct {
	mu               sync.Mutex
	limiters         map[string]*ipLimiter
	requestsPerSec   float64 // tokens/second
	burstSize        int     // max burst tokens
	clock            clockwork.Clock
	cleanupInterval  time.Duration
	cleanupIdleAfter time.Duration
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for idle tracking.
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithCleanup sets how often idle entries are swept and how long an entry
// may sit unused before it is dropped.
func WithCleanup(interval, idleAfter time.Duration) Option {
	return func(m *Manager) {
		m.cleanupInterval = interval
		m.cleanupIdleAfter = idleAfter
	}
}

// -----------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------

// New creates a rate limit manager.
//
// Example: New(5, 20) = 5 requests/sec per IP, burst of 20
func New(requestsPerSec float64, burstSize int, opts ...Option) *Manager {
	m := &Manager{
		limiters:         make(map[string]*ipLimiter),
		requestsPerSec:   requestsPerSec,
		burstSize:        burstSize,
		clock:            clockwork.NewRealClock(),
		cleanupInterval:  5 * time.Minute,
		cleanupIdleAfter: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// -----------------------------------------------------------------------
// Rate Limit Check
// -----------------------------------------------------------------------

// Allow reports whether a request from ip is within its limit.
func (m *Manager) Allow(ip string) bool {
	return m.getLimiter(ip).Allow()
}

// getLimiter returns the limiter for ip, creating it on first use.
func (m *Manager) getLimiter(ip string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if entry, ok := m.limiters[ip]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	l := rate.NewLimiter(rate.Limit(m.requestsPerSec), m.burstSize)
	m.limiters[ip] = &ipLimiter{limiter: l, lastSeen: now}
	return l
}

// Tokens returns the approximate number of tokens left for ip.
func (m *Manager) Tokens(ip string) float64 {
	return m.getLimiter(ip).Tokens()
}

// -----------------------------------------------------------------------
// Cleanup
// -----------------------------------------------------------------------

// Run sweeps idle entries until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			m.cleanup()
		case <-ctx.Done():
			return
		}
	}
}

// cleanup removes entries idle longer than cleanupIdleAfter.
func (m *Manager) cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	removed := 0
	for ip, entry := range m.limiters {
		if now.Sub(entry.lastSeen) > m.cleanupIdleAfter {
			delete(m.limiters, ip)
			removed++
		}
	}

	if removed > 0 {
		logr.Debug("cleanup: removed idle IP entries",
			"count", removed,
			"remaining", len(m.limiters),
		)
	}
	return removed
}

// Stats returns diagnostic information about the limiter state.
func (m *Manager) Stats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]any{
		"active_ips": len(m.limiters),
		"rate":       m.requestsPerSec,
		"burst":      m.burstSize,
	}
}

// -----------------------------------------------------------------------
// HTTP Middleware
// -----------------------------------------------------------------------

// Middleware rejects requests over the per-IP limit with 429.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := GetIP(r)
		limit := fmt.Sprintf("%.0f", m.requestsPerSec)

		if !m.Allow(ip) {
			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", "1")

			metrics.RateLimited.Inc()
			logr.Warn("rate limit exceeded",
				"ip", ip,
				"method", r.Method,
				"path", r.URL.Path,
			)

			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-RateLimit-Limit", limit)
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%.0f", m.Tokens(ip)))
		next.ServeHTTP(w, r)
	})
}

// -----------------------------------------------------------------------
// IP Extraction
// -----------------------------------------------------------------------

// GetIP extracts the client address. Forwarding headers are honored only
// when the connecting peer is a local proxy (loopback or private address);
// CF-Connecting-IP wins over the first X-Forwarded-For entry, which wins
// over X-Real-IP. Any other peer is identified by RemoteAddr alone.
func GetIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}
	if !trustedProxy(peer) {
		return peer
	}

	if cf := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); cf != "" {
		return cf
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

// trustedProxy reports whether peer may set forwarding headers.
func trustedProxy(peer string) bool {
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate()
}
