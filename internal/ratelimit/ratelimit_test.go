// -----------------------------------------------------------------------
// Rate Limiting Tests - internal/ratelimit/ratelimit_test.go
// -----------------------------------------------------------------------

package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/afreidah/personal-site-backend/internal/metrics"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// -----------------------------------------------------------------------
// Basic Allow Tests
// -----------------------------------------------------------------------

func TestAllow_BurstThenReject(t *testing.T) {
	m := New(1, 5) // 1 req/sec, burst 5
	ip := "192.168.1.1"

	for i := 0; i < 5; i++ {
		if !m.Allow(ip) {
			t.Fatalf("Request %d should be allowed within burst", i+1)
		}
	}
	if m.Allow(ip) {
		t.Error("Request exceeding burst should be rejected")
	}
}

func TestAllow_TokenRefill(t *testing.T) {
	m := New(100, 100) // 100 req/sec = 1 token per 10ms
	ip := "192.168.1.1"

	for i := 0; i < 100; i++ {
		m.Allow(ip)
	}
	if m.Allow(ip) {
		t.Error("Should reject when no tokens available")
	}

	time.Sleep(20 * time.Millisecond)

	if !m.Allow(ip) {
		t.Error("Should allow after token refill")
	}
}

func TestAllow_DifferentIPsIndependent(t *testing.T) {
	m := New(0.001, 2)

	m.Allow("192.168.1.1")
	m.Allow("192.168.1.1")
	if m.Allow("192.168.1.1") {
		t.Error("IP1 should be exhausted")
	}

	if !m.Allow("192.168.1.2") || !m.Allow("192.168.1.2") {
		t.Error("Different IPs should have independent limits")
	}
}

func TestTokens(t *testing.T) {
	m := New(0.001, 20)
	ip := "192.168.1.1"

	if tokens := m.Tokens(ip); tokens < 19.9 {
		t.Errorf("Expected ~20 tokens initially, got %f", tokens)
	}

	m.Allow(ip)
	m.Allow(ip)

	if tokens := m.Tokens(ip); tokens >= 19 {
		t.Errorf("Tokens should decrease after Allow, got %f", tokens)
	}
}

// -----------------------------------------------------------------------
// Middleware Tests
// -----------------------------------------------------------------------

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		rate       float64
		burst      int
		wantStatus int
		wantRemain string
	}{
		{"within limit", 100, 200, http.StatusOK, ""},
		{"always reject", 0, 0, http.StatusTooManyRequests, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.rate, tt.burst)
			handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			before := testutil.ToFloat64(metrics.RateLimited)

			req := httptest.NewRequest("GET", "/api/projects", nil)
			req.RemoteAddr = "192.168.1.1:12345"
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if rec.Header().Get("X-RateLimit-Limit") == "" {
				t.Error("Missing X-RateLimit-Limit header")
			}
			if rec.Header().Get("X-RateLimit-Remaining") == "" {
				t.Error("Missing X-RateLimit-Remaining header")
			}
			if tt.wantRemain != "" && rec.Header().Get("X-RateLimit-Remaining") != tt.wantRemain {
				t.Errorf("Expected remaining %s, got %s", tt.wantRemain, rec.Header().Get("X-RateLimit-Remaining"))
			}

			after := testutil.ToFloat64(metrics.RateLimited)
			rejected := tt.wantStatus == http.StatusTooManyRequests
			if rejected && after != before+1 {
				t.Errorf("Expected rate limited counter to increment, got %f -> %f", before, after)
			}
			if !rejected && after != before {
				t.Errorf("Counter moved for an allowed request: %f -> %f", before, after)
			}
		})
	}
}

// -----------------------------------------------------------------------
// IP Extraction Tests
// -----------------------------------------------------------------------

func TestGetIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		cf         string
		xff        string
		xRealIP    string
		want       string
	}{
		{"direct connection strips port", "192.168.1.1:12345", "", "", "", "192.168.1.1"},
		{"ipv6 remote", "[::1]:8080", "", "", "", "::1"},
		{"remote without port", "unix", "", "", "", "unix"},
		{"first forwarded address", "10.0.0.1:443", "", "192.168.1.100, 10.0.0.1", "", "192.168.1.100"},
		{"real ip header", "10.0.0.1:443", "", "", "192.168.1.200", "192.168.1.200"},
		{"forwarded wins over real ip", "10.0.0.1:443", "", "192.168.1.100", "192.168.1.200", "192.168.1.100"},
		{"cloudflare header wins", "127.0.0.1:443", "198.51.100.4", "192.168.1.100", "192.168.1.200", "198.51.100.4"},
		{"docker bridge proxy", "172.17.0.1:443", "", "198.51.100.7", "", "198.51.100.7"},
		{"public peer spoofing forwarded", "203.0.113.9:5000", "", "198.51.100.1", "", "203.0.113.9"},
		{"public peer spoofing real ip", "203.0.113.9:5000", "", "", "198.51.100.2", "203.0.113.9"},
		{"public peer spoofing cloudflare", "203.0.113.9:5000", "198.51.100.3", "", "", "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.cf != "" {
				req.Header.Set("CF-Connecting-IP", tt.cf)
			}
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			if got := GetIP(req); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

// TestMiddleware_SpoofedForwardedHeader verifies a public client cannot
// escape its bucket by rotating X-Forwarded-For.
func TestMiddleware_SpoofedForwardedHeader(t *testing.T) {
	m := New(0.001, 1)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	limited := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest("GET", "/api/status", nil)
		req.RemoteAddr = "203.0.113.9:5000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code == http.StatusTooManyRequests {
			limited++
		}
	}

	if limited != 19 {
		t.Errorf("Expected 19 rejected requests, got %d", limited)
	}
}

// -----------------------------------------------------------------------
// Concurrency Tests
// -----------------------------------------------------------------------

func TestConcurrentRequests_ThreadSafe(t *testing.T) {
	m := New(1000, 2000)
	ip := "192.168.1.1"

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		allowCount int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Allow(ip) {
				mu.Lock()
				allowCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowCount != 100 {
		t.Errorf("Expected 100 allows, got %d", allowCount)
	}
}

// -----------------------------------------------------------------------
// Cleanup Tests
// -----------------------------------------------------------------------

func TestCleanup_RemovesIdleEntries(t *testing.T) {
	fc := clockwork.NewFakeClock()
	m := New(10, 20, WithClock(fc), WithCleanup(time.Minute, 10*time.Minute))

	m.Allow("192.168.1.1")
	m.Allow("192.168.1.2")

	fc.Advance(5 * time.Minute)
	m.Allow("192.168.1.3")

	fc.Advance(6 * time.Minute)
	if removed := m.cleanup(); removed != 2 {
		t.Errorf("Expected 2 idle entries removed, got %d", removed)
	}
	if got := m.Stats()["active_ips"]; got != 1 {
		t.Errorf("Expected 1 active IP, got %v", got)
	}
}

func TestRun_SweepsOnTickAndStops(t *testing.T) {
	fc := clockwork.NewFakeClock()
	m := New(10, 20, WithClock(fc), WithCleanup(time.Minute, time.Second))
	m.Allow("192.168.1.1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	if err := fc.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("BlockUntilContext: %v", err)
	}
	fc.Advance(time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for m.Stats()["active_ips"] != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := m.Stats()["active_ips"]; got != 0 {
		t.Errorf("Expected sweep to remove the entry, got %v active", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// -----------------------------------------------------------------------
// Stats Tests
// -----------------------------------------------------------------------

func TestStats_ReturnsInfo(t *testing.T) {
	m := New(50, 100)
	m.Allow("192.168.1.1")
	m.Allow("192.168.1.2")
	m.Allow("192.168.1.3")

	stats := m.Stats()
	if stats["active_ips"] != 3 {
		t.Errorf("Expected 3 active IPs, got %v", stats["active_ips"])
	}
	if stats["rate"] != 50.0 {
		t.Errorf("Expected rate 50, got %v", stats["rate"])
	}
	if stats["burst"] != 100 {
		t.Errorf("Expected burst 100, got %v", stats["burst"])
	}
}
