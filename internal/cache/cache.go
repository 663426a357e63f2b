// -----------------------------------------------------------------------
// Periodic Cache
// -----------------------------------------------------------------------
//
// Package cache provides the periodic refresh primitive every remote-data
// cache in the site is built on. A Periodic[T] wraps a Fetcher: it fetches
// immediately on Start, then again on every tick of a fixed interval, and
// keeps the last good value for readers.
//
// Cache Lifecycle:
// A cache starts uninitialized. The first successful fetch moves it to
// running. A failed fetch never replaces the stored value: with a value
// present the cache becomes stale (last good value still served), without
// one it moves to error. A fetcher reporting that it is not configured
// leaves the cache disabled for the life of the process.
//
// Readers call Get, which is a single atomic load: it never blocks and
// never triggers a fetch. Writes happen only on the cache's own refresh
// goroutine, one fetch at a time, so a slow remote delays the next tick of
// that cache and nothing else.
//
// -----------------------------------------------------------------------

package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/afreidah/personal-site-backend/internal/metrics"
	"github.com/jonboulle/clockwork"
)

// DefaultInterval is the refresh interval used when neither the fetcher
// nor an option sets one.
const DefaultInterval = time.Hour

// -----------------------------------------------------------------------
// State Type Definition
// -----------------------------------------------------------------------

// StateType represents the lifecycle state of a cache.
type StateType int

const (
	// StateUninitialized indicates no fetch has succeeded yet.
	StateUninitialized StateType = iota

	// StateRunning indicates the most recent fetch attempt succeeded or
	// returned no data.
	StateRunning

	// StateStale indicates the most recent fetch failed while an older
	// value is still being served.
	StateStale

	// StateError indicates fetches are failing and no value was ever
	// stored.
	StateError

	// StateDisabled indicates the fetcher is not configured; Start was a
	// no-op and Get always returns nil.
	StateDisabled
)

// String returns the human-readable name of the state.
func (s StateType) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateStale:
		return "stale"
	case StateError:
		return "error"
	case StateDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------
// Fetcher Contract
// -----------------------------------------------------------------------

// Fetcher is the service-specific half of a periodic cache.
//
// Fetch returns (value, nil) to replace the cached value, (nil, nil) when
// there is nothing to store yet, and a non-nil error on failure. Neither
// of the last two touches the stored value.
type Fetcher[T any] interface {
	ServiceName() string
	Fetch(ctx context.Context) (*T, error)
}

// Intervaler is implemented by fetchers that want a refresh interval other
// than DefaultInterval.
type Intervaler interface {
	Interval() time.Duration
}

// Enabler is implemented by fetchers that can be unconfigured. When Enabled
// reports false, Start logs once and never arms a timer.
type Enabler interface {
	Enabled() bool
}

// Describer is implemented by fetchers that add summary attributes to the
// success log line (item counts and the like).
type Describer[T any] interface {
	Describe(v *T) []any
}

// Runner is the type-erased view of a periodic cache used by the
// application for lifecycle management and status reporting.
type Runner interface {
	ServiceName() string
	Start(ctx context.Context)
	Stop()
	Wait(ctx context.Context) error
	Status() Status
	IsStale(maxAge time.Duration) bool
	Interval() time.Duration
}

// Status is a point-in-time report of a cache, served by the status API.
type Status struct {
	Service     string     `json:"service"`
	State       string     `json:"state"`
	Interval    string     `json:"interval"`
	HasValue    bool       `json:"hasValue"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

// -----------------------------------------------------------------------
// Periodic Cache Type
// -----------------------------------------------------------------------

// Periodic holds the last good value produced by a Fetcher and refreshes
// it on a fixed interval.
type Periodic[T any] struct {
	fetcher  Fetcher[T]
	interval time.Duration
	clock    clockwork.Clock
	log      *slog.Logger

	value atomic.Pointer[T]

	// mu guards the lifecycle fields below.
	mu          sync.Mutex
	running     bool
	stop        chan struct{}
	done        chan struct{}
	state       StateType
	lastSuccess time.Time
	lastErr     error
}

var _ Runner = (*Periodic[struct{}])(nil)

// Option customizes a Periodic cache.
type Option func(*options)

type options struct {
	interval time.Duration
	clock    clockwork.Clock
}

// WithInterval overrides the refresh interval.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithClock replaces the wall clock, used by tests to drive ticks.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// -----------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------

// New creates a periodic cache around f. Interval precedence is
// WithInterval, then the fetcher's own Interval, then DefaultInterval.
func New[T any](f Fetcher[T], opts ...Option) *Periodic[T] {
	o := options{interval: DefaultInterval, clock: clockwork.NewRealClock()}
	if iv, ok := f.(Intervaler); ok && iv.Interval() > 0 {
		o.interval = iv.Interval()
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Periodic[T]{
		fetcher:  f,
		interval: o.interval,
		clock:    o.clock,
		log:      slog.Default().With("component", "cache", "service", f.ServiceName()),
		state:    StateUninitialized,
	}
}

// -----------------------------------------------------------------------
// Query Methods
// -----------------------------------------------------------------------

// Get returns the last good value, or nil if no fetch has succeeded.
func (p *Periodic[T]) Get() *T {
	return p.value.Load()
}

// ServiceName returns the fetcher's display name.
func (p *Periodic[T]) ServiceName() string {
	return p.fetcher.ServiceName()
}

// Interval returns the refresh interval.
func (p *Periodic[T]) Interval() time.Duration {
	return p.interval
}

// IsStale reports whether the last success is older than maxAge. A cache
// that never succeeded is stale once it has been started; a disabled cache
// never is.
func (p *Periodic[T]) IsStale(maxAge time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateDisabled {
		return false
	}
	if p.lastSuccess.IsZero() {
		return p.running
	}
	return p.clock.Since(p.lastSuccess) > maxAge
}

// Status returns a snapshot of the cache lifecycle.
func (p *Periodic[T]) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		Service:  p.fetcher.ServiceName(),
		State:    p.state.String(),
		Interval: p.interval.String(),
		HasValue: p.value.Load() != nil,
	}
	if !p.lastSuccess.IsZero() {
		ts := p.lastSuccess
		st.LastSuccess = &ts
	}
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	return st
}

// -----------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------

// Start fetches immediately in the background and arms the repeating
// timer. Calling Start on a running cache does nothing. Fetches use ctx;
// cancelling it ends the refresh loop as well.
func (p *Periodic[T]) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.log.Debug("cache already started")
		return
	}

	if e, ok := p.fetcher.(Enabler); ok && !e.Enabled() {
		if p.state != StateDisabled {
			p.log.Warn("service not configured, skipping cache")
		}
		p.state = StateDisabled
		return
	}

	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	// A started cache owns exactly one ticker.
	ticker := p.clock.NewTicker(p.interval)
	go p.run(ctx, ticker, p.stop, p.done)

	p.log.Debug("cache started", "interval", p.interval.String())
}

// Stop disarms the timer. A fetch already in flight completes and may
// still store its value. Stop is safe to call on a cache that was never
// started.
func (p *Periodic[T]) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	close(p.stop)
	p.running = false
}

// Wait blocks until the refresh loop has exited (after Stop or context
// cancellation) or ctx is done.
func (p *Periodic[T]) Wait(ctx context.Context) error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the refresh loop: one fetch right away, then one per tick.
func (p *Periodic[T]) run(ctx context.Context, ticker clockwork.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	p.Refresh(ctx)

	for {
		select {
		case <-ticker.Chan():
			p.Refresh(ctx)
		case <-stop:
			p.log.Debug("cache stopped")
			return
		case <-ctx.Done():
			p.log.Debug("cache context cancelled")
			p.mu.Lock()
			if p.stop == stop {
				p.running = false
			}
			p.mu.Unlock()
			return
		}
	}
}

// -----------------------------------------------------------------------
// Refresh
// -----------------------------------------------------------------------

// Refresh runs one fetch synchronously, exactly as a timer tick would.
func (p *Periodic[T]) Refresh(ctx context.Context) {
	name := p.fetcher.ServiceName()
	start := p.clock.Now()

	p.log.Debug("fetching")
	v, err := p.fetch(ctx)
	metrics.CacheRefreshDuration.WithLabelValues(name).Observe(p.clock.Since(start).Seconds())

	switch {
	case err != nil:
		p.log.Warn("fetch failed", "err", err)
		metrics.CacheRefreshTotal.WithLabelValues(name, metrics.OutcomeError).Inc()
		p.recordFailure(err)

	case v == nil:
		p.log.Debug("fetch returned no data")
		metrics.CacheRefreshTotal.WithLabelValues(name, metrics.OutcomeEmpty).Inc()
		p.recordEmpty()

	default:
		p.value.Store(v)
		metrics.CacheRefreshTotal.WithLabelValues(name, metrics.OutcomeSuccess).Inc()
		now := p.recordSuccess()
		metrics.CacheLastSuccess.WithLabelValues(name).Set(float64(now.Unix()))

		attrs := []any{}
		if d, ok := p.fetcher.(Describer[T]); ok {
			attrs = d.Describe(v)
		}
		p.log.Debug("cached successfully", attrs...)
	}
}

// fetch calls the fetcher, turning a panic into an error so a bad payload
// cannot take the refresh loop down.
func (p *Periodic[T]) fetch(ctx context.Context) (v *T, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = fmt.Errorf("fetch panicked: %v", r)
		}
	}()
	return p.fetcher.Fetch(ctx)
}

func (p *Periodic[T]) recordSuccess() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSuccess = p.clock.Now()
	p.lastErr = nil
	p.state = StateRunning
	return p.lastSuccess
}

func (p *Periodic[T]) recordEmpty() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = nil
	if p.value.Load() != nil {
		p.state = StateRunning
	}
}

func (p *Periodic[T]) recordFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
	if p.value.Load() != nil {
		p.state = StateStale
	} else {
		p.state = StateError
	}
}
