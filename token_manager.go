package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Refresh this long before the nominal expiry so a token never goes stale
// mid-request.
const tokenExpirySkew = 5 * time.Minute

// AccessToken is a short-lived bearer credential with its expiry. Cached in
// memory only; never persisted.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token can still be used, accounting for the
// expiry skew.
func (t AccessToken) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt.Add(-tokenExpirySkew))
}

// TokenManager exchanges the long-lived refresh token for short-lived access
// tokens, lazily and on demand. Strava rotates refresh tokens on each
// exchange, so the manager tracks the current one for the process lifetime.
type TokenManager struct {
	client   *http.Client
	tokenURL string
	clientID string
	secret   string

	mu           sync.Mutex
	refreshToken string
	current      AccessToken
}

// NewTokenManager creates a token manager from validated configuration.
func NewTokenManager(cfg *Config) *TokenManager {
	return &TokenManager{
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		secret:       cfg.ClientSecret,
		refreshToken: cfg.RefreshToken,
	}
}

// GetValidToken returns the cached access token, refreshing it first when it
// is absent or within the expiry skew. A rejected refresh token yields an
// *AuthError and is not retried: it requires user re-authorization.
func (m *TokenManager) GetValidToken(ctx context.Context) (AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Valid(time.Now()) {
		return m.current, nil
	}
	return m.refresh(ctx)
}

// Invalidate discards the cached token so the next GetValidToken call is
// forced to refresh. Used when the API rejects a token we believed valid.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = AccessToken{}
}

// refresh performs the OAuth refresh-token grant. Caller must hold m.mu.
func (m *TokenManager) refresh(ctx context.Context) (AccessToken, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", m.clientID)
	form.Set("client_secret", m.secret)
	form.Set("refresh_token", m.refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return AccessToken{}, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return AccessToken{}, &NetworkError{Op: "token refresh", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return AccessToken{}, &NetworkError{Op: "token refresh", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return AccessToken{}, &AuthError{
			Reason: fmt.Sprintf("refresh token rejected (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	default:
		return AccessToken{}, &NetworkError{
			Op:  "token refresh",
			Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return AccessToken{}, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return AccessToken{}, &AuthError{Reason: "token endpoint returned no access token"}
	}

	expiresAt := time.Unix(tokenResp.ExpiresAt, 0)
	if tokenResp.ExpiresAt == 0 {
		expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}

	m.current = AccessToken{
		Value:     tokenResp.AccessToken,
		ExpiresAt: expiresAt,
	}
	if tokenResp.RefreshToken != "" {
		m.refreshToken = tokenResp.RefreshToken
	}

	return m.current, nil
}
