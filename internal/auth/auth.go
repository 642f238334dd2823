// Package auth implements the bearer-token source backing the HTTP
// transport (C3) and region directory (C2): stored credential lookup,
// expiry-aware refresh, and the headless OAuth token exchange performed by
// `tracecli login`.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kouak/tracecli/internal/model"
	"github.com/kouak/tracecli/internal/store"
)

// refreshSkew is how far ahead of the stored expiry AccessToken proactively
// refreshes, so a request built just before expiry doesn't race the
// server's clock.
const refreshSkew = 60 * time.Second

// Store is the subset of the persistent store the token source reads and
// writes through.
type Store interface {
	GetAuth(ctx context.Context) (store.Auth, bool, error)
	SetAuth(ctx context.Context, a store.Auth) error
	ClearAuth(ctx context.Context) error
}

// TokenSource implements transport.TokenSource and region.TokenProvider
// against a persisted auth record, refreshing it via the OAuth token
// endpoint when a refresh token is available.
type TokenSource struct {
	Store           Store
	ControlPlaneURL string
	ClientID        string
	ClientSecret    string
	httpClient      *http.Client
}

// New constructs a TokenSource.
func New(s Store, controlPlaneURL, clientID, clientSecret string) *TokenSource {
	return &TokenSource{
		Store:           s,
		ControlPlaneURL: strings.TrimSuffix(controlPlaneURL, "/"),
		ClientID:        clientID,
		ClientSecret:    clientSecret,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
	}
}

// AccessToken returns the current access token, refreshing first if it is
// near expiry and a refresh token is stored. A manually-pasted token (no
// refresh token) is returned as-is until ForceRefresh is called and fails.
func (t *TokenSource) AccessToken(ctx context.Context) (string, error) {
	a, ok, err := t.Store.GetAuth(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &model.AuthError{Reason: "not logged in"}
	}
	if a.RefreshToken == "" || time.Now().Add(refreshSkew).Before(a.ExpiresAt) {
		return a.AccessToken, nil
	}
	return t.ForceRefresh(ctx)
}

// ForceRefresh refreshes the access token unconditionally. It returns an
// error if no refresh token is stored (e.g. a manually pasted token).
func (t *TokenSource) ForceRefresh(ctx context.Context) (string, error) {
	a, ok, err := t.Store.GetAuth(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &model.AuthError{Reason: "not logged in"}
	}
	if a.RefreshToken == "" {
		return "", &model.AuthError{Reason: "no refresh token available; run tracecli login again"}
	}

	tok, err := t.exchangeToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {a.RefreshToken},
		"client_id":     {t.ClientID},
		"client_secret": {t.ClientSecret},
	})
	if err != nil {
		return "", &model.AuthError{Reason: "refresh failed: " + err.Error()}
	}

	a.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		a.RefreshToken = tok.RefreshToken
	}
	a.ExpiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	if err := t.Store.SetAuth(ctx, a); err != nil {
		return "", err
	}
	return a.AccessToken, nil
}

// ExchangeCode completes the headless OAuth flow: the caller has printed
// the authorization URL and collected the pasted code; this performs the
// code→token exchange and persists the result.
func (t *TokenSource) ExchangeCode(ctx context.Context, code string) error {
	tok, err := t.exchangeToken(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {t.ClientID},
		"client_secret": {t.ClientSecret},
	})
	if err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}
	return t.Store.SetAuth(ctx, store.Auth{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second),
		AuthType:     "oauth",
	})
}

// Logout clears the stored credentials (and, per invariant 4, the region
// directory alongside them).
func (t *TokenSource) Logout(ctx context.Context) error {
	return t.Store.ClearAuth(ctx)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (t *TokenSource) exchangeToken(ctx context.Context, form url.Values) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.ControlPlaneURL+"/oauth/token/", strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return tokenResponse{}, &model.NetworkError{Endpoint: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return tokenResponse{}, fmt.Errorf("oauth token endpoint returned %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return tokenResponse{}, err
	}
	return tok, nil
}
