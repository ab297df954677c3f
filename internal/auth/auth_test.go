package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"trailmetrics/internal/store"
)

func TestCallbackHandler(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		want    grant
		wantErr bool
		status  int
	}{
		{"success", "?state=s1&code=abc&scope=read,activity:read_all", grant{"abc", "read,activity:read_all"}, false, http.StatusOK},
		{"no scope", "?state=s1&code=abc", grant{code: "abc"}, false, http.StatusOK},
		{"state mismatch", "?state=evil&code=abc", grant{}, true, http.StatusBadRequest},
		{"denied", "?state=s1&error=access_denied", grant{}, true, http.StatusBadRequest},
		{"missing code", "?state=s1", grant{}, true, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grants := make(chan grant, 1)
			errChan := make(chan error, 1)
			h := callbackHandler("s1", grants, errChan)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback"+tt.query, nil))
			assert.Equal(t, tt.status, rec.Code)

			if tt.wantErr {
				require.Len(t, errChan, 1)
				assert.Error(t, <-errChan)
				assert.Empty(t, grants)
				return
			}
			require.Len(t, grants, 1)
			assert.Equal(t, tt.want, <-grants)
		})
	}
}

func TestExtractAthleteID(t *testing.T) {
	tok := (&oauth2.Token{AccessToken: "a"}).WithExtra(map[string]any{
		"athlete": map[string]any{"id": float64(1234)},
	})
	assert.Equal(t, int64(1234), ExtractAthleteID(tok))
	assert.Zero(t, ExtractAthleteID(&oauth2.Token{}))
}

func TestHasScope(t *testing.T) {
	tests := []struct {
		granted string
		want    bool
	}{
		{"read,activity:read_all", true},
		{"read, activity:read_all", true},
		{"read,activity:read", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HasScope(tt.granted, ActivityScope), tt.granted)
	}
}

func TestRedirectURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8089/callback", Config{}.RedirectURL())
	assert.Equal(t, "http://localhost:9000/callback", Config{CallbackPort: 9000}.RedirectURL())
}

type memoryTokens struct {
	auth    *store.Auth
	updates int
}

func (m *memoryTokens) GetAuth() (*store.Auth, error) {
	if m.auth == nil {
		return nil, store.ErrNoAuth
	}
	return m.auth, nil
}

func (m *memoryTokens) SaveAuth(a *store.Auth) error {
	m.auth = a
	return nil
}

func (m *memoryTokens) UpdateTokens(access, refresh string, expiresAt time.Time) error {
	m.updates++
	m.auth.AccessToken = access
	m.auth.RefreshToken = refresh
	m.auth.ExpiresAt = expiresAt
	return nil
}

func TestStoredTokenSource_RefreshesAndPersists(t *testing.T) {
	var refreshed int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "client", r.PostForm.Get("client_id"))
		refreshed++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "new-access",
			"refresh_token": "new-refresh",
			"token_type":    "Bearer",
			"expires_in":    21600,
		})
	}))
	defer srv.Close()

	cfg := NewOAuthConfig(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     &oauth2.Endpoint{TokenURL: srv.URL, AuthStyle: oauth2.AuthStyleInParams},
	})
	tokens := &memoryTokens{auth: &store.Auth{
		AthleteID:    9,
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    time.Now().Add(30 * time.Second), // inside the refresh buffer
	}}

	ts, err := NewStoredTokenSource(cfg, tokens)
	require.NoError(t, err)
	assert.True(t, ts.IsExpired())

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok.AccessToken)
	assert.Equal(t, 1, refreshed)
	assert.Equal(t, 1, tokens.updates)
	assert.Equal(t, "new-refresh", tokens.auth.RefreshToken)

	// a fresh token is reused
	_, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)
	assert.False(t, ts.IsExpired())
}

func TestStoredTokenSource_NoAuth(t *testing.T) {
	_, err := NewStoredTokenSource(NewOAuthConfig(Config{}), &memoryTokens{})
	assert.ErrorIs(t, err, store.ErrNoAuth)
}

func TestSaveResult(t *testing.T) {
	tokens := &memoryTokens{}
	expiry := time.Now().Add(time.Hour)
	err := SaveResult(tokens, &AuthResult{
		Token:     &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: expiry},
		AthleteID: 77,
		Scope:     "read",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(77), tokens.auth.AthleteID)
	assert.Equal(t, "read", tokens.auth.Scope)
	assert.Equal(t, "r", tokens.auth.RefreshToken)

	assert.Error(t, SaveResult(tokens, nil))
}
