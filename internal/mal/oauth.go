package mal

import (
	"context"
	"errors"
	"fmt"

	"github.com/afreidah/personal-site-backend/internal/kvstore"
	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

// ErrNoVerifier means the callback arrived without a pending auth flow.
var ErrNoVerifier = errors.New("mal: code verifier not found")

type verifierBlob struct {
	Verifier string `json:"verifier"`
}

// BeginAuth generates and stores a code verifier and returns the provider
// authorization URL. MyAnimeList only supports the plain challenge method,
// so the challenge is the verifier itself.
func (s *TokenStore) BeginAuth(ctx context.Context, redirectURL string) (string, error) {
	if s.cfg.ClientID == "" {
		return "", ErrNotConfigured
	}

	verifier := oauth2.GenerateVerifier()
	data, err := json.Marshal(verifierBlob{Verifier: verifier})
	if err != nil {
		return "", fmt.Errorf("marshal verifier: %w", err)
	}
	if err := s.kv.Put(ctx, VerifierKey, data); err != nil {
		return "", fmt.Errorf("store verifier: %w", err)
	}

	conf := s.oauth
	conf.RedirectURL = redirectURL
	return conf.AuthCodeURL("",
		oauth2.SetAuthURLParam("code_challenge", verifier),
		oauth2.SetAuthURLParam("code_challenge_method", "plain"),
	), nil
}

// CompleteAuth exchanges an authorization code using the stored verifier,
// persists the resulting tokens and loads them into memory.
func (s *TokenStore) CompleteAuth(ctx context.Context, code, redirectURL string) error {
	if !s.cfg.Configured() {
		return ErrNotConfigured
	}

	verifier, err := s.loadVerifier(ctx)
	if err != nil {
		return err
	}

	conf := s.oauth
	conf.RedirectURL = redirectURL
	tok, err := conf.Exchange(s.httpContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}

	st := s.fromOAuth(tok, "")
	if err := s.save(ctx, st); err != nil {
		return fmt.Errorf("persist tokens: %w", err)
	}
	if err := s.kv.Delete(ctx, VerifierKey); err != nil {
		s.log.Warn("failed to remove code verifier", "err", err)
	}

	s.Reload()
	s.log.Info("tokens saved via oauth callback")
	return nil
}

func (s *TokenStore) loadVerifier(ctx context.Context) (string, error) {
	data, err := s.kv.Get(ctx, VerifierKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return "", ErrNoVerifier
	}
	if err != nil {
		return "", fmt.Errorf("load verifier: %w", err)
	}

	var vb verifierBlob
	if err := json.Unmarshal(data, &vb); err != nil || vb.Verifier == "" {
		return "", ErrNoVerifier
	}
	return vb.Verifier, nil
}
