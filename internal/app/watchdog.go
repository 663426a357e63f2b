package app

import (
	"context"
	"time"

	"github.com/afreidah/personal-site-backend/internal/cache"
	"github.com/afreidah/personal-site-backend/internal/metrics"
	"github.com/coreos/go-systemd/v22/daemon"
)

// watchdogTick is how often cache staleness is evaluated.
const watchdogTick = 30 * time.Second

// staleAfter is how many intervals a cache may go without a success before
// it is reported stale.
const staleAfter = 2

// -----------------------------------------------------------------------------
// Staleness Watchdog
// -----------------------------------------------------------------------------

// startStalenessWatchdog periodically checks every cache for a success
// within staleAfter intervals, publishes the result to site_cache_stale and
// logs transitions. It returns when ctx is cancelled.
func startStalenessWatchdog(ctx context.Context, runners []cache.Runner, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	stale := make(map[string]bool, len(runners))

	for {
		select {
		case <-ticker.C:
			checkStaleness(runners, stale)
		case <-ctx.Done():
			loga.Info("stopping staleness watchdog")
			return
		}
	}
}

// checkStaleness evaluates each runner once, updating prev in place.
func checkStaleness(runners []cache.Runner, prev map[string]bool) {
	for _, r := range runners {
		name := r.ServiceName()
		maxAge := r.Interval() * staleAfter
		isStale := r.IsStale(maxAge)

		if isStale {
			metrics.CacheStale.WithLabelValues(name).Set(1)
		} else {
			metrics.CacheStale.WithLabelValues(name).Set(0)
		}

		if was, seen := prev[name]; seen && was != isStale {
			if isStale {
				loga.Error("cache watchdog: no successful refresh",
					"service", name,
					"max_age", maxAge.String())
			} else {
				loga.Info("cache watchdog: cache recovered", "service", name)
			}
		}
		prev[name] = isStale
	}
}

// -----------------------------------------------------------------------------
// Systemd Watchdog
// -----------------------------------------------------------------------------

// startSystemdWatchdog pings systemd at half the configured WatchdogSec.
// Without a systemd watchdog it returns immediately.
func startSystemdWatchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		loga.Warn("systemd watchdog check failed", "err", err)
		return
	}
	if interval == 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			notify(daemon.SdNotifyWatchdog)
		case <-ctx.Done():
			return
		}
	}
}
