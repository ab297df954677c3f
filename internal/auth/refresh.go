package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"trailmetrics/internal/store"
)

// RefreshBuffer is how long before expiry a token is refreshed
const RefreshBuffer = 60 * time.Second

// TokenStore persists Strava tokens
type TokenStore interface {
	GetAuth() (*store.Auth, error)
	SaveAuth(auth *store.Auth) error
	UpdateTokens(accessToken, refreshToken string, expiresAt time.Time) error
}

// TokenSource wraps oauth2.TokenSource with persistence
// It automatically refreshes tokens and calls onRefresh when a new token is obtained
type TokenSource struct {
	config    *oauth2.Config
	token     *oauth2.Token
	onRefresh func(*oauth2.Token) error
	mu        sync.Mutex
}

// NewTokenSource creates a new TokenSource that will refresh tokens as needed
// and call onRefresh to persist new tokens
func NewTokenSource(cfg *oauth2.Config, token *oauth2.Token, onRefresh func(*oauth2.Token) error) *TokenSource {
	return &TokenSource{
		config:    cfg,
		token:     token,
		onRefresh: onRefresh,
	}
}

// NewStoredTokenSource loads the saved token from ts and persists every
// refresh back to it. Returns store.ErrNoAuth when nothing is saved.
func NewStoredTokenSource(cfg *oauth2.Config, ts TokenStore) (*TokenSource, error) {
	saved, err := ts.GetAuth()
	if err != nil {
		return nil, err
	}
	token := &oauth2.Token{
		AccessToken:  saved.AccessToken,
		RefreshToken: saved.RefreshToken,
		Expiry:       saved.ExpiresAt,
	}
	return NewTokenSource(cfg, token, func(t *oauth2.Token) error {
		return ts.UpdateTokens(t.AccessToken, t.RefreshToken, t.Expiry)
	}), nil
}

// SaveResult persists a fresh authentication
func SaveResult(ts TokenStore, res *AuthResult) error {
	if res == nil || res.Token == nil {
		return errors.New("empty auth result")
	}
	err := ts.SaveAuth(&store.Auth{
		AthleteID:    res.AthleteID,
		AccessToken:  res.Token.AccessToken,
		RefreshToken: res.Token.RefreshToken,
		ExpiresAt:    res.Token.Expiry,
		Scope:        res.Scope,
	})
	if err != nil {
		return fmt.Errorf("saving auth: %w", err)
	}
	return nil
}

// Token returns a valid token, refreshing if necessary
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if time.Until(ts.token.Expiry) > RefreshBuffer {
		return ts.token, nil
	}

	// Force a refresh even if the oauth2 package still considers it valid
	stale := *ts.token
	stale.Expiry = time.Now().Add(-time.Second)
	newToken, err := ts.config.TokenSource(context.Background(), &stale).Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	if ts.onRefresh != nil {
		if err := ts.onRefresh(newToken); err != nil {
			return nil, err
		}
	}

	ts.token = newToken
	return newToken, nil
}

// IsExpired checks if the current token is expired or will expire within the buffer
func (ts *TokenSource) IsExpired() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return time.Until(ts.token.Expiry) <= RefreshBuffer
}

// CurrentToken returns the current token without refreshing
func (ts *TokenSource) CurrentToken() *oauth2.Token {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.token
}
