// =============================================================================
// Analytics Aggregator - Tests
// =============================================================================
//
// Test Coverage:
//   - View and unique visitor counting, filters and sort order
//   - Snapshot reuse within the window
//   - Invalidation on appended, added and removed log files
//   - Window expiry and development bypass
//
// =============================================================================

package analytics

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/afreidah/personal-site-backend/internal/metrics"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// =============================================================================
// Helpers
// =============================================================================

func line(method, status, rawURL, ip string) string {
	return fmt.Sprintf(`{"timestamp":"2024-01-01T00:00:00Z","level":%q,"id":"x","data":{"context":%q,"data":[%q,"1.00ms",%q]}}`+"\n",
		method, status, rawURL, ip)
}

func writeLog(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	for _, l := range lines {
		if _, err := f.WriteString(l); err != nil {
			t.Fatalf("write log: %v", err)
		}
	}
	return path
}

func newAggregator(t *testing.T, dir string, dev bool) (*Aggregator, *clockwork.FakeClock) {
	t.Helper()
	fc := clockwork.NewFakeClock()
	a, err := New(Options{Dir: dir, Window: time.Minute, Dev: dev, Clock: fc})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, fc
}

func viewsOf(s *Snapshot, page string) View {
	for _, v := range s.Views {
		if v.Page == page {
			return v
		}
	}
	return View{}
}

// =============================================================================
// Counting
// =============================================================================

// TestScenario counts three loads of /blog from two addresses. The host is
// written x.host so the URL parses to path /blog; "https://x/host/blog"
// would parse to /host/blog (see DESIGN.md, Open Question decisions).
func TestScenario(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "2024-01-01.jsonl",
		`{"level":"GET","data":{"context":"200","data":["https://x.host/blog","","1.2.3.4"]}}`+"\n",
		`{"level":"GET","data":{"context":"200","data":["https://x.host/blog","","1.2.3.4"]}}`+"\n",
		`{"level":"GET","data":{"context":"200","data":["https://x.host/blog","","5.6.7.8"]}}`+"\n",
	)

	a, _ := newAggregator(t, dir, false)
	s, err := a.Snapshot("")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	want := View{Page: "/blog", Views: 3, UniqueViews: 2}
	if len(s.Views) != 1 || s.Views[0] != want {
		t.Fatalf("Expected [%+v], got %+v", want, s.Views)
	}
	if s.Total != 3 || s.FilterRoute != nil {
		t.Errorf("Unexpected total/filter: %d %v", s.Total, s.FilterRoute)
	}
}

// TestCountingRules verifies which lines qualify and the sort order.
func TestCountingRules(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.jsonl",
		line("GET", "200", "https://site/", "1"),
		line("GET", "200", "https://site", "2"),
		line("GET", "200", "https://site/about", "1"),
		line("GET", "200", "https://site/about", "1"),
		line("GET", "200", "https://site/zeta", "3"),
		line("GET", "200", "https://site/alpha", "3"),
		line("GET", "404", "https://site/missing", "1"),
		line("POST", "200", "https://site/about", "1"),
		line("GET", "200", "https://site/api/projects", "1"),
		line("GET", "200", "https://site/public/css/site.css", "1"),
		line("GET", "200", "https://site/favicon.ico", "1"),
		"not json at all\n",
		`{"level":"GET","data":{"context":"200","data":["https://site/trunc`+"\n",
		"\n",
	)
	writeLog(t, dir, "ignored.log", line("GET", "200", "https://site/hidden", "1"))

	a, _ := newAggregator(t, dir, false)
	s, err := a.Snapshot("")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	want := []View{
		{Page: "/", Views: 2, UniqueViews: 2},
		{Page: "/about", Views: 2, UniqueViews: 1},
		{Page: "/alpha", Views: 1, UniqueViews: 1},
		{Page: "/zeta", Views: 1, UniqueViews: 1},
	}
	if len(s.Views) != len(want) {
		t.Fatalf("Expected %d pages, got %+v", len(want), s.Views)
	}
	for i := range want {
		if s.Views[i] != want[i] {
			t.Errorf("position %d: expected %+v, got %+v", i, want[i], s.Views[i])
		}
	}
	if s.Total != 6 {
		t.Errorf("Expected total 6, got %d", s.Total)
	}
}

// TestRouteFilter verifies exact-path filtering and the filterRoute field.
func TestRouteFilter(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.jsonl",
		line("GET", "200", "https://site/blog", "1"),
		line("GET", "200", "https://site/blog/post", "1"),
		line("GET", "200", "https://site/", "1"),
	)

	a, _ := newAggregator(t, dir, false)
	s, err := a.Snapshot("/blog")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if s.Total != 1 || len(s.Views) != 1 || s.Views[0].Page != "/blog" {
		t.Errorf("Unexpected filtered snapshot %+v", s)
	}
	if s.FilterRoute == nil || *s.FilterRoute != "/blog" {
		t.Errorf("Expected filterRoute /blog, got %v", s.FilterRoute)
	}
}

// TestMissingDirectory verifies an absent log directory is empty, not an error.
func TestMissingDirectory(t *testing.T) {
	a, fc := newAggregator(t, filepath.Join(t.TempDir(), "nope"), false)
	s, err := a.Snapshot("")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if s.Total != 0 || s.Views == nil || len(s.Views) != 0 {
		t.Errorf("Expected empty snapshot, got %+v", s)
	}
	if s.LastUpdate != fc.Now().UnixMilli() || s.NextUpdate != fc.Now().Add(time.Minute).UnixMilli() {
		t.Errorf("Unexpected timestamps %d/%d", s.LastUpdate, s.NextUpdate)
	}
}

// =============================================================================
// Cache Validity
// =============================================================================

// TestReuseWithinWindow verifies an unchanged directory serves the cached
// snapshot.
func TestReuseWithinWindow(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.jsonl", line("GET", "200", "https://site/", "1"))
	a, fc := newAggregator(t, dir, false)

	first, err := a.Snapshot("")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	hits := testutil.ToFloat64(metrics.AnalyticsCacheHits)
	fc.Advance(30 * time.Second)
	second, err := a.Snapshot("")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if second != first {
		t.Error("Expected the cached snapshot to be reused")
	}
	if got := testutil.ToFloat64(metrics.AnalyticsCacheHits); got != hits+1 {
		t.Errorf("Expected one cache hit, got %f", got-hits)
	}
}

// TestAppendInvalidates verifies a single appended line forces a recompute
// inside the window.
func TestAppendInvalidates(t *testing.T) {
	dir := t.TempDir()
	path := writeLog(t, dir, "a.jsonl", line("GET", "200", "https://site/blog", "1"))
	a, fc := newAggregator(t, dir, false)

	first, err := a.Snapshot("")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if first.Total != 1 {
		t.Fatalf("Expected 1 view, got %d", first.Total)
	}

	writeLog(t, dir, "a.jsonl", line("GET", "200", "https://site/blog", "2"))
	// Push mtime forward so coarse filesystem timestamps still differ.
	later := time.Now().Add(time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	fc.Advance(time.Second)
	second, err := a.Snapshot("")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if second == first {
		t.Fatal("Expected a recomputed snapshot")
	}
	if got := viewsOf(second, "/blog"); got.Views != 2 || got.UniqueViews != 2 {
		t.Errorf("Expected 2 views from 2 visitors, got %+v", got)
	}
}

// TestAddedAndRemovedFilesInvalidate covers fingerprint membership changes.
func TestAddedAndRemovedFilesInvalidate(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.jsonl", line("GET", "200", "https://site/", "1"))
	a, _ := newAggregator(t, dir, false)

	if s, _ := a.Snapshot(""); s.Total != 1 {
		t.Fatalf("Expected 1 view, got %d", s.Total)
	}

	extra := writeLog(t, dir, "b.jsonl", line("GET", "200", "https://site/", "2"))
	s, err := a.Snapshot("")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if s.Total != 2 {
		t.Errorf("Expected 2 views after adding a file, got %d", s.Total)
	}

	if err := os.Remove(extra); err != nil {
		t.Fatalf("remove: %v", err)
	}
	s, err = a.Snapshot("")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if s.Total != 1 {
		t.Errorf("Expected 1 view after removing a file, got %d", s.Total)
	}
}

// TestWindowExpiry verifies an old snapshot is rebuilt even when unchanged.
func TestWindowExpiry(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.jsonl", line("GET", "200", "https://site/", "1"))
	a, fc := newAggregator(t, dir, false)

	first, _ := a.Snapshot("")
	before := testutil.ToFloat64(metrics.AnalyticsRecomputeTotal.WithLabelValues(reasonExpired))

	fc.Advance(2 * time.Minute)
	second, err := a.Snapshot("")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if second == first {
		t.Error("Expected a new snapshot after the window")
	}
	if second.LastUpdate <= first.LastUpdate {
		t.Errorf("Expected lastUpdate to move forward: %d -> %d", first.LastUpdate, second.LastUpdate)
	}
	if got := testutil.ToFloat64(metrics.AnalyticsRecomputeTotal.WithLabelValues(reasonExpired)); got != before+1 {
		t.Errorf("Expected one expired recompute, got %f", got-before)
	}
}

// TestFiltersCachedSeparately verifies keys do not collide.
func TestFiltersCachedSeparately(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.jsonl",
		line("GET", "200", "https://site/", "1"),
		line("GET", "200", "https://site/blog", "1"),
	)
	a, _ := newAggregator(t, dir, false)

	all, _ := a.Snapshot("")
	blog, _ := a.Snapshot("/blog")
	again, _ := a.Snapshot("")

	if all.Total != 2 || blog.Total != 1 {
		t.Errorf("Unexpected totals all=%d blog=%d", all.Total, blog.Total)
	}
	if again != all {
		t.Error("Expected the unfiltered snapshot to stay cached")
	}
}

// TestDevelopmentBypass verifies development mode never reuses snapshots.
func TestDevelopmentBypass(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "a.jsonl", line("GET", "200", "https://site/", "1"))
	a, _ := newAggregator(t, dir, true)

	first, _ := a.Snapshot("")
	second, _ := a.Snapshot("")
	if first == second {
		t.Error("Expected a fresh snapshot per request in development mode")
	}
}
