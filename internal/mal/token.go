// -----------------------------------------------------------------------------
// MyAnimeList Token Store
// -----------------------------------------------------------------------------
//
// TokenStore owns the OAuth credential state used by the MyAnimeList cache.
//
// Token States:
//   - no tokens: nothing persisted and no env seed; calls fail with
//     ErrNoTokens and the cache reports "no data"
//   - fresh: ExpiresAt is 0 (unknown, rely on 401) or more than a minute
//     away
//   - expiring: within a minute of ExpiresAt; the next AccessToken call
//     refreshes before returning
//
// A refresh can also be forced reactively after a 401. Concurrent refresh
// requests collapse into one exchange; a failed exchange leaves the prior
// state in place. The persisted blob is always replaced whole.
//
// -----------------------------------------------------------------------------

package mal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/afreidah/personal-site-backend/internal/kvstore"
	"github.com/afreidah/personal-site-backend/internal/metrics"
	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Blob keys in the key-value store.
const (
	TokenKey    = "mal-tokens.json"
	VerifierKey = "mal-verifier.json"
)

// refreshSkew is how long before expiry a proactive refresh kicks in.
const refreshSkew = 60 * time.Second

// Refresh triggers, used as metric labels.
const (
	TriggerProactive = "proactive"
	TriggerReactive  = "reactive"
)

var (
	// ErrNoTokens means neither a persisted blob nor env tokens exist.
	ErrNoTokens = errors.New("mal: no tokens available")

	// ErrNotConfigured means the client id or secret is missing.
	ErrNotConfigured = errors.New("mal: client credentials not configured")
)

// Default MyAnimeList endpoints.
const (
	DefaultAPIBase  = "https://api.myanimelist.net/v2"
	DefaultAuthURL  = "https://myanimelist.net/v1/oauth2/authorize"
	DefaultTokenURL = "https://myanimelist.net/v1/oauth2/token"
)

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// TokenState is the persisted credential blob. ExpiresAt is epoch
// milliseconds; 0 means unknown.
type TokenState struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// Config holds MyAnimeList credentials and endpoints.
type Config struct {
	ClientID     string
	ClientSecret string

	// AccessToken and RefreshToken seed the store when no blob exists.
	AccessToken  string
	RefreshToken string

	APIBase  string
	AuthURL  string
	TokenURL string
}

// Configured reports whether client credentials are present.
func (c Config) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// TokenStore loads, refreshes and persists MyAnimeList tokens.
type TokenStore struct {
	cfg   Config
	oauth oauth2.Config
	kv    kvstore.Store
	hc    *http.Client
	clock clockwork.Clock
	log   *slog.Logger

	mu    sync.Mutex
	state *TokenState

	group singleflight.Group
}

// Option customizes a TokenStore.
type Option func(*TokenStore)

// WithHTTPClient sets the client used for token exchanges.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *TokenStore) {
		if hc != nil {
			s.hc = hc
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c clockwork.Clock) Option {
	return func(s *TokenStore) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewTokenStore builds a token store persisting to kv.
func NewTokenStore(cfg Config, kv kvstore.Store, opts ...Option) *TokenStore {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}

	s := &TokenStore{
		cfg: cfg,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		kv:    kv,
		hc:    http.DefaultClient,
		clock: clockwork.NewRealClock(),
		log:   slog.Default().With("component", "mal-tokens"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -----------------------------------------------------------------------------
// Token Access
// -----------------------------------------------------------------------------

// AccessToken returns a usable access token, refreshing first when the
// stored one is within a minute of expiry.
func (s *TokenStore) AccessToken(ctx context.Context) (string, error) {
	st, err := s.current(ctx)
	if err != nil {
		return "", err
	}

	if s.expiring(st) {
		s.log.Debug("access token expiring, refreshing")
		st, err = s.refresh(ctx, TriggerProactive, st.AccessToken)
		if err != nil {
			return "", err
		}
	}
	return st.AccessToken, nil
}

// Refresh forces a refresh exchange after a 401. staleAccess is the token
// that was rejected; if another caller already replaced it, no exchange is
// made.
func (s *TokenStore) Refresh(ctx context.Context, staleAccess string) error {
	_, err := s.refresh(ctx, TriggerReactive, staleAccess)
	return err
}

// Reload drops in-memory state so the next call re-reads the blob.
func (s *TokenStore) Reload() {
	s.mu.Lock()
	s.state = nil
	s.mu.Unlock()
}

// State returns a copy of the in-memory state, or nil.
func (s *TokenStore) State() *TokenState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil
	}
	cp := *s.state
	return &cp
}

// HasBlob reports whether a token blob has been persisted.
func (s *TokenStore) HasBlob(ctx context.Context) bool {
	_, err := s.kv.Get(ctx, TokenKey)
	return err == nil
}

func (s *TokenStore) expiring(st *TokenState) bool {
	if st.ExpiresAt <= 0 {
		return false
	}
	return s.clock.Now().UnixMilli() >= st.ExpiresAt-refreshSkew.Milliseconds()
}

// current returns the in-memory state, loading it on first use.
func (s *TokenStore) current(ctx context.Context) (*TokenState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != nil {
		cp := *s.state
		return &cp, nil
	}

	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.state = st
	cp := *st
	return &cp, nil
}

// load reads the blob, falling back to env-seeded tokens.
func (s *TokenStore) load(ctx context.Context) (*TokenState, error) {
	data, err := s.kv.Get(ctx, TokenKey)
	switch {
	case err == nil:
		var st TokenState
		if jerr := json.Unmarshal(data, &st); jerr == nil && st.AccessToken != "" {
			return &st, nil
		} else if jerr != nil {
			s.log.Warn("failed to parse token blob", "err", jerr)
		}
	case !errors.Is(err, kvstore.ErrNotFound):
		s.log.Warn("failed to load token blob", "err", err)
	}

	if s.cfg.AccessToken != "" && s.cfg.RefreshToken != "" {
		return &TokenState{
			AccessToken:  s.cfg.AccessToken,
			RefreshToken: s.cfg.RefreshToken,
			ExpiresAt:    0,
		}, nil
	}
	return nil, ErrNoTokens
}

// -----------------------------------------------------------------------------
// Refresh Exchange
// -----------------------------------------------------------------------------

func (s *TokenStore) refresh(ctx context.Context, trigger, staleAccess string) (*TokenState, error) {
	v, err, _ := s.group.Do("refresh", func() (any, error) {
		s.mu.Lock()
		prior := s.state
		s.mu.Unlock()

		if prior == nil {
			return nil, ErrNoTokens
		}
		if prior.AccessToken != staleAccess && !s.expiring(prior) {
			cp := *prior
			return &cp, nil
		}
		if !s.cfg.Configured() {
			return nil, ErrNotConfigured
		}

		tok, err := s.oauth.TokenSource(s.httpContext(ctx), &oauth2.Token{RefreshToken: prior.RefreshToken}).Token()
		if err != nil {
			metrics.MALTokenRefreshTotal.WithLabelValues(trigger, metrics.OutcomeError).Inc()
			s.log.Error("token refresh failed", "trigger", trigger, "err", err)
			return nil, fmt.Errorf("refresh token: %w", err)
		}

		next := s.fromOAuth(tok, prior.RefreshToken)
		if err := s.save(ctx, next); err != nil {
			s.log.Error("failed to persist refreshed tokens", "err", err)
		}

		s.mu.Lock()
		s.state = next
		s.mu.Unlock()

		metrics.MALTokenRefreshTotal.WithLabelValues(trigger, metrics.OutcomeSuccess).Inc()
		s.log.Info("tokens refreshed", "trigger", trigger)

		cp := *next
		return &cp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TokenState), nil
}

// fromOAuth converts an oauth2 token into stored state. Expiry is carried
// over as an offset from the store's clock.
func (s *TokenStore) fromOAuth(tok *oauth2.Token, priorRefresh string) *TokenState {
	st := &TokenState{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if st.RefreshToken == "" {
		st.RefreshToken = priorRefresh
	}
	if !tok.Expiry.IsZero() {
		st.ExpiresAt = s.clock.Now().Add(time.Until(tok.Expiry)).UnixMilli()
	}
	return st
}

func (s *TokenStore) save(ctx context.Context, st *TokenState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}
	return s.kv.Put(ctx, TokenKey, data)
}

func (s *TokenStore) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.hc)
}
