package region

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kouak/tracecli/internal/model"
)

type fakeStore struct {
	byOrg map[string]string
}

func newFakeStore() *fakeStore { return &fakeStore{byOrg: map[string]string{}} }

func (f *fakeStore) ResolveOrgRegion(_ context.Context, org string) (string, bool, error) {
	url, ok := f.byOrg[org]
	return url, ok, nil
}

func (f *fakeStore) SetOrgRegions(_ context.Context, regions []model.OrgRegion) error {
	for _, r := range regions {
		f.byOrg[r.Org] = r.URL
	}
	return nil
}

func (f *fakeStore) ClearOrgRegions(_ context.Context) error {
	f.byOrg = map[string]string{}
	return nil
}

type staticToken struct{}

func (staticToken) AccessToken(context.Context) (string, error) { return "tok", nil }

func TestResolveOrgRegion_CacheHit(t *testing.T) {
	store := newFakeStore()
	store.byOrg["acme"] = "https://us.example.io"

	d := New(store, staticToken{}, "https://example.io")
	url, err := d.ResolveOrgRegion(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, "https://us.example.io", url)
}

func TestResolveOrgRegion_QueriesAndCaches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/0/organizations/acme/region/", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"region": map[string]string{"url": "https://eu.example.io"},
		})
	}))
	defer srv.Close()

	store := newFakeStore()
	d := New(store, staticToken{}, srv.URL)

	url, err := d.ResolveOrgRegion(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, "https://eu.example.io", url)

	cached, ok, err := store.ResolveOrgRegion(context.Background(), "acme")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "https://eu.example.io", cached)
}

func TestResolveOrgRegion_404FallsBackToControlPlane(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := newFakeStore()
	d := New(store, staticToken{}, srv.URL)

	url, err := d.ResolveOrgRegion(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, srv.URL, url)
	require.True(t, d.noRegionDiscovery)

	url, err = d.ResolveOrgRegion(context.Background(), "other-org")
	require.NoError(t, err)
	require.Equal(t, srv.URL, url, "once single-region is established, it applies to every org without another request")
}

func TestDiscoverAll_FansOutAcrossRegions(t *testing.T) {
	var regionSrv, usSrv, euSrv *httptest.Server

	usSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]string{{"slug": "acme"}})
	}))
	defer usSrv.Close()

	euSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]string{{"slug": "globex"}})
	}))
	defer euSrv.Close()

	regionSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"regions": []regionEntry{
				{Name: "us", URL: usSrv.URL},
				{Name: "eu", URL: euSrv.URL},
			},
		})
	}))
	defer regionSrv.Close()

	store := newFakeStore()
	d := New(store, staticToken{}, regionSrv.URL)

	require.NoError(t, d.DiscoverAll(context.Background()))

	url, ok, err := store.ResolveOrgRegion(context.Background(), "acme")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, usSrv.URL, url)

	url, ok, err = store.ResolveOrgRegion(context.Background(), "globex")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, euSrv.URL, url)
}
