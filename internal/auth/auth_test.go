package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kouak/tracecli/internal/model"
	"github.com/kouak/tracecli/internal/store"
)

type fakeAuthStore struct {
	auth store.Auth
	ok   bool
}

func (f *fakeAuthStore) GetAuth(ctx context.Context) (store.Auth, bool, error) { return f.auth, f.ok, nil }
func (f *fakeAuthStore) SetAuth(ctx context.Context, a store.Auth) error {
	f.auth = a
	f.ok = true
	return nil
}
func (f *fakeAuthStore) ClearAuth(ctx context.Context) error {
	f.auth = store.Auth{}
	f.ok = false
	return nil
}

func TestAccessToken_NotLoggedIn(t *testing.T) {
	ts := New(&fakeAuthStore{}, "https://example.test", "id", "secret")
	_, err := ts.AccessToken(context.Background())
	require.Error(t, err)
	var authErr *model.AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestAccessToken_ReturnsUnexpiredTokenWithoutRefresh(t *testing.T) {
	fs := &fakeAuthStore{ok: true, auth: store.Auth{AccessToken: "abc", ExpiresAt: time.Now().Add(time.Hour)}}
	ts := New(fs, "https://example.test", "id", "secret")
	tok, err := ts.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}

func TestForceRefresh_NoRefreshToken(t *testing.T) {
	fs := &fakeAuthStore{ok: true, auth: store.Auth{AccessToken: "abc"}}
	ts := New(fs, "https://example.test", "id", "secret")
	_, err := ts.ForceRefresh(context.Background())
	require.Error(t, err)
	var authErr *model.AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestForceRefresh_ExchangesAndPersists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
		assert.Equal(t, "old-refresh", r.FormValue("refresh_token"))
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "new-access", RefreshToken: "new-refresh", ExpiresIn: 3600})
	}))
	defer srv.Close()

	fs := &fakeAuthStore{ok: true, auth: store.Auth{AccessToken: "old-access", RefreshToken: "old-refresh", ExpiresAt: time.Now()}}
	ts := New(fs, srv.URL, "id", "secret")

	tok, err := ts.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok)
	assert.Equal(t, "new-access", fs.auth.AccessToken)
	assert.Equal(t, "new-refresh", fs.auth.RefreshToken)
}

func TestAccessToken_RefreshesWhenNearExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "refreshed", ExpiresIn: 3600})
	}))
	defer srv.Close()

	fs := &fakeAuthStore{ok: true, auth: store.Auth{
		AccessToken: "stale", RefreshToken: "rt", ExpiresAt: time.Now().Add(5 * time.Second),
	}}
	ts := New(fs, srv.URL, "id", "secret")

	tok, err := ts.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed", tok)
}

func TestExchangeCode_PersistsNewCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.FormValue("grant_type"))
		assert.Equal(t, "the-code", r.FormValue("code"))
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 7200})
	}))
	defer srv.Close()

	fs := &fakeAuthStore{}
	ts := New(fs, srv.URL, "id", "secret")
	require.NoError(t, ts.ExchangeCode(context.Background(), "the-code"))
	assert.True(t, fs.ok)
	assert.Equal(t, "access", fs.auth.AccessToken)
	assert.Equal(t, "oauth", fs.auth.AuthType)
}

func TestLogout_ClearsCredentials(t *testing.T) {
	fs := &fakeAuthStore{ok: true, auth: store.Auth{AccessToken: "abc"}}
	ts := New(fs, "https://example.test", "id", "secret")
	require.NoError(t, ts.Logout(context.Background()))
	assert.False(t, fs.ok)
}
