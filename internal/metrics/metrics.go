// -----------------------------------------------------------------------------
// Prometheus Metrics
// -----------------------------------------------------------------------------
//
// This package defines and registers Prometheus metrics for the site backend.
// Metrics are exposed at the /metrics endpoint.
//
// Metric Groups:
//   - Cache refresh: outcome counts, fetch latency, last success time and a
//     staleness flag per periodic cache
//   - HTTP: request volume and latency per route pattern
//   - MyAnimeList tokens: refresh attempts by trigger and outcome
//   - Analytics: snapshot recomputations by reason and cache hits
//   - Rate limiting: rejected requests
//
// -----------------------------------------------------------------------------

package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values for CacheRefreshTotal and MALTokenRefreshTotal.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
)

// -----------------------------------------------------------------------------
// Metric Definitions
// -----------------------------------------------------------------------------

var (
	// CacheRefreshTotal counts fetch ticks by cache and outcome.
	// Labels: service, outcome (success, empty, error)
	//
	// Example Queries:
	//   - rate(site_cache_refresh_total{outcome="error"}[1h])
	CacheRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_cache_refresh_total",
			Help: "Total number of periodic cache fetch ticks by outcome",
		},
		[]string{"service", "outcome"},
	)

	// CacheRefreshDuration measures how long each fetch tick takes.
	CacheRefreshDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "site_cache_refresh_duration_seconds",
			Help:    "Duration of periodic cache fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	// CacheLastSuccess is the unix time of the last successful fetch.
	//
	// Example Alert:
	//   - time() - site_cache_last_success_timestamp_seconds > 7200
	CacheLastSuccess = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "site_cache_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful cache fetch",
		},
		[]string{"service"},
	)

	// CacheStale is set by the staleness watchdog (1=stale, 0=fresh).
	CacheStale = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "site_cache_stale",
			Help: "Whether a periodic cache has missed its refresh window (1=stale, 0=fresh)",
		},
		[]string{"service"},
	)

	// HTTPRequestsTotal counts requests by chi route pattern and status code.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		},
		[]string{"route", "status_code"},
	)

	// HTTPRequestDuration measures handler latency per route pattern.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "site_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// MALTokenRefreshTotal counts refresh exchanges.
	// Labels: trigger (proactive, reactive), outcome (success, error)
	MALTokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_mal_token_refresh_total",
			Help: "Total number of MyAnimeList token refresh exchanges",
		},
		[]string{"trigger", "outcome"},
	)

	// AnalyticsRecomputeTotal counts analytics snapshot rebuilds.
	// Labels: reason (miss, expired, changed, dev)
	AnalyticsRecomputeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "site_analytics_recompute_total",
			Help: "Total number of analytics snapshot recomputations by reason",
		},
		[]string{"reason"},
	)

	// AnalyticsCacheHits counts analytics requests served from cache.
	AnalyticsCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "site_analytics_cache_hits_total",
			Help: "Total number of analytics requests served from the snapshot cache",
		},
	)

	// RateLimited counts requests rejected by the per-IP limiter.
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "site_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)

// -----------------------------------------------------------------------------
// Metric Registration
// -----------------------------------------------------------------------------

// init registers all metrics with the Prometheus default registry.
func init() {
	prometheus.MustRegister(CacheRefreshTotal)
	prometheus.MustRegister(CacheRefreshDuration)
	prometheus.MustRegister(CacheLastSuccess)
	prometheus.MustRegister(CacheStale)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(MALTokenRefreshTotal)
	prometheus.MustRegister(AnalyticsRecomputeTotal)
	prometheus.MustRegister(AnalyticsCacheHits)
	prometheus.MustRegister(RateLimited)
}
