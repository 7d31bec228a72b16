// Package core provides shared utilities for the Inventronix Go SDK.
package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// refreshMargin is how long before expiry a cached token is considered
// stale, so a token never expires mid-send.
const refreshMargin = time.Minute

// TokenSource exchanges an Inventronix API key for a short-lived bearer
// token and caches it until shortly before expiry. Safe for concurrent use.
type TokenSource struct {
	apiKey  string
	authURL string
	client  *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokenSource returns a TokenSource against authURL (the token service
// base URL, no trailing slash required).
func NewTokenSource(apiKey, authURL string) *TokenSource {
	return &TokenSource{
		apiKey:  apiKey,
		authURL: authURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Token returns a valid bearer token, exchanging the API key when the
// cached one is missing or about to expire.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token != "" && time.Now().Before(s.expires.Add(-refreshMargin)) {
		return s.token, nil
	}

	token, expires, err := s.exchange(ctx)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expires = expires
	return token, nil
}

func (s *TokenSource) exchange(ctx context.Context) (string, time.Time, error) {
	body, _ := json.Marshal(map[string]string{"api_key": s.apiKey})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL+"/v1/token", bytes.NewReader(body))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return "", time.Time{}, fmt.Errorf("token exchange HTTP %d: %s", resp.StatusCode, b)
	}

	var out struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", time.Time{}, err
	}
	if out.Token == "" {
		return "", time.Time{}, fmt.Errorf("token exchange: empty token in response")
	}
	return out.Token, tokenExpiry(out.Token, out.ExpiresIn), nil
}

// tokenExpiry works out when token stops being usable. The expires_in
// response field wins; absent that, the token's own exp claim is read
// without signature verification (the client holds tokens, it never
// validates them). Falls back to an hour.
func tokenExpiry(token string, expiresIn int) time.Time {
	if expiresIn > 0 {
		return time.Now().Add(time.Duration(expiresIn) * time.Second)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(time.Hour)
}
