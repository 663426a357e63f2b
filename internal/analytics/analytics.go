// -----------------------------------------------------------------------------
// Log-Derived Analytics
// -----------------------------------------------------------------------------
//
// Package analytics computes page view counts from the request logs written
// by the requestlog middleware. Unlike the periodic caches it is pull-based:
// a snapshot is computed on request and reused only while it is younger than
// the window AND the log directory fingerprint is unchanged. Any added,
// removed or modified log file invalidates every cached snapshot on its next
// read.
//
// Snapshots are kept in a bounded LRU keyed by the route filter ("all" when
// unfiltered). Development mode bypasses the cache entirely.
//
// -----------------------------------------------------------------------------

package analytics

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/afreidah/personal-site-backend/internal/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultWindow is how long a snapshot may be reused.
	DefaultWindow = 5 * time.Minute

	// allKey is the cache key for the unfiltered snapshot.
	allKey = "all"

	// maxSnapshots bounds the number of distinct route filters kept.
	maxSnapshots = 128

	// Recompute reasons reported on site_analytics_recompute_total.
	reasonMiss    = "miss"
	reasonExpired = "expired"
	reasonChanged = "changed"
	reasonDev     = "dev"
)

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Snapshot is the analytics response.
type Snapshot struct {
	Views       []View  `json:"views"`
	Total       int     `json:"total"`
	FilterRoute *string `json:"filterRoute"`
	LastUpdate  int64   `json:"lastUpdate"`
	NextUpdate  int64   `json:"nextUpdate"`
}

// View is the count for one page.
type View struct {
	Page        string `json:"page"`
	Views       int    `json:"views"`
	UniqueViews int    `json:"uniqueViews"`
}

// stamp identifies one version of a log file.
type stamp struct {
	modTime int64
	size    int64
}

// fingerprint maps log file names to their stamps.
type fingerprint map[string]stamp

type entry struct {
	snap *Snapshot
	at   time.Time
	fp   fingerprint
}

// Options configures an Aggregator.
type Options struct {
	Dir    string
	Window time.Duration
	Dev    bool
	Clock  clockwork.Clock
}

// Aggregator serves analytics snapshots for a log directory.
type Aggregator struct {
	dir    string
	window time.Duration
	dev    bool
	clock  clockwork.Clock
	log    *slog.Logger

	// mu serializes recomputation so concurrent misses scan once.
	mu    sync.Mutex
	cache *lru.Cache[string, entry]
}

// New creates an aggregator over opts.Dir.
func New(opts Options) (*Aggregator, error) {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	cache, err := lru.New[string, entry](maxSnapshots)
	if err != nil {
		return nil, fmt.Errorf("create snapshot cache: %w", err)
	}

	return &Aggregator{
		dir:    opts.Dir,
		window: opts.Window,
		dev:    opts.Dev,
		clock:  opts.Clock,
		log:    slog.Default().With("component", "analytics"),
		cache:  cache,
	}, nil
}

// -----------------------------------------------------------------------------
// Query
// -----------------------------------------------------------------------------

// Snapshot returns the view counts, filtered to route when non-empty.
func (a *Aggregator) Snapshot(route string) (*Snapshot, error) {
	key := route
	if key == "" {
		key = allKey
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dev {
		return a.recompute(key, route, reasonDev)
	}

	cached, ok := a.cache.Get(key)
	if !ok {
		return a.recompute(key, route, reasonMiss)
	}
	if a.clock.Since(cached.at) >= a.window {
		return a.recompute(key, route, reasonExpired)
	}

	fp, err := a.fingerprint()
	if err != nil {
		return nil, err
	}
	if !maps.Equal(fp, cached.fp) {
		return a.recompute(key, route, reasonChanged)
	}

	metrics.AnalyticsCacheHits.Inc()
	return cached.snap, nil
}

func (a *Aggregator) recompute(key, route, reason string) (*Snapshot, error) {
	metrics.AnalyticsRecomputeTotal.WithLabelValues(reason).Inc()

	// Fingerprint before scanning: a write landing mid-scan shows up as a
	// change on the next read.
	fp, err := a.fingerprint()
	if err != nil {
		return nil, err
	}

	c := newCounter(route)
	for _, name := range slices.Sorted(maps.Keys(fp)) {
		if err := c.scanFile(filepath.Join(a.dir, name)); err != nil {
			a.log.Warn("log file scan incomplete", "file", name, "err", err)
		}
	}

	now := a.clock.Now()
	snap := c.snapshot()
	if route != "" {
		snap.FilterRoute = &route
	}
	snap.LastUpdate = now.UnixMilli()
	snap.NextUpdate = now.Add(a.window).UnixMilli()

	if !a.dev {
		a.cache.Add(key, entry{snap: snap, at: now, fp: fp})
	}
	a.log.Debug("analytics recomputed", "key", key, "reason", reason, "files", len(fp), "total", snap.Total)
	return snap, nil
}

// fingerprint stamps every *.jsonl file in the log directory. A missing
// directory has an empty fingerprint.
func (a *Aggregator) fingerprint() (fingerprint, error) {
	entries, err := os.ReadDir(a.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return fingerprint{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read log dir: %w", err)
	}

	fp := make(fingerprint, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		fp[e.Name()] = stamp{modTime: info.ModTime().UnixNano(), size: info.Size()}
	}
	return fp, nil
}

// sortViews orders by views descending, then page ascending.
func sortViews(views []View) {
	slices.SortFunc(views, func(x, y View) int {
		if c := cmp.Compare(y.Views, x.Views); c != 0 {
			return c
		}
		return cmp.Compare(x.Page, y.Page)
	})
}
