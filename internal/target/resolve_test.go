package target

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kouak/tracecli/internal/model"
	"github.com/kouak/tracecli/internal/store"
)

type fakeStore struct {
	defaults map[string]string
}

func newFakeStore() *fakeStore { return &fakeStore{defaults: map[string]string{}} }

func (f *fakeStore) GetDefault(_ context.Context, key string) (string, bool, error) {
	v, ok := f.defaults[key]
	return v, ok, nil
}
func (f *fakeStore) ProjectRootCache(_ context.Context, _ string) (store.ProjectRootCacheEntry, bool, error) {
	return store.ProjectRootCacheEntry{}, false, nil
}
func (f *fakeStore) SetProjectRootCache(_ context.Context, _ string, _ store.ProjectRootCacheEntry) error {
	return nil
}
func (f *fakeStore) ProjectCacheFor(_ context.Context, _, _ string) (store.ProjectCacheEntry, bool, error) {
	return store.ProjectCacheEntry{}, false, nil
}
func (f *fakeStore) PutProjectCache(_ context.Context, _ store.ProjectCacheEntry) error { return nil }
func (f *fakeStore) LookupDSN(_ context.Context, _ string) (string, string, bool, error) {
	return "", "", false, nil
}
func (f *fakeStore) SetDSN(_ context.Context, _, _, _ string) error { return nil }

type fakeAPI struct {
	projects map[string]model.Target
	orgs     []string
	search   map[string][]model.Target
}

func (f *fakeAPI) FindProject(_ context.Context, org, project string) (model.Target, bool, error) {
	t, ok := f.projects[org+"/"+project]
	return t, ok, nil
}
func (f *fakeAPI) LookupProjectByOrgID(context.Context, string, string) (model.Target, bool, error) {
	return model.Target{}, false, nil
}
func (f *fakeAPI) LookupProjectByPublicKey(context.Context, string) (model.Target, bool, error) {
	return model.Target{}, false, nil
}
func (f *fakeAPI) ListOrgProjects(_ context.Context, org string) ([]model.Target, error) {
	var out []model.Target
	for _, t := range f.projects {
		if t.Org == org {
			out = append(out, t)
		}
	}
	return out, nil
}
func (f *fakeAPI) SearchProjectsBySlug(_ context.Context, org, slug string) ([]model.Target, bool, error) {
	matches, ok := f.search[org+"/"+slug]
	return matches, ok, nil
}
func (f *fakeAPI) ListOrgs(context.Context) ([]string, error) { return f.orgs, nil }

func TestResolve_Explicit(t *testing.T) {
	api := &fakeAPI{projects: map[string]model.Target{"acme/web": {Org: "acme", Project: "web"}}}
	r := New(newFakeStore(), api, Env{}, t.TempDir())

	res, err := r.Resolve(context.Background(), ParseArg("acme/web"), "", "")
	require.NoError(t, err)
	require.Len(t, res.Targets, 1)
	assert.Equal(t, "web", res.Targets[0].Project)
}

func TestResolve_ExplicitNotFound(t *testing.T) {
	api := &fakeAPI{}
	r := New(newFakeStore(), api, Env{}, t.TempDir())

	_, err := r.Resolve(context.Background(), ParseArg("acme/web"), "", "")
	require.Error(t, err)
	var rerr *model.ResolutionError
	assert.ErrorAs(t, err, &rerr)
}

func TestResolve_OrgAll(t *testing.T) {
	api := &fakeAPI{projects: map[string]model.Target{
		"acme/web":  {Org: "acme", Project: "web"},
		"acme/api":  {Org: "acme", Project: "api"},
	}}
	r := New(newFakeStore(), api, Env{}, t.TempDir())

	res, err := r.Resolve(context.Background(), ParseArg("acme/"), "", "")
	require.NoError(t, err)
	assert.Len(t, res.Targets, 2)
}

func TestResolve_OrgAllEmpty(t *testing.T) {
	api := &fakeAPI{}
	r := New(newFakeStore(), api, Env{}, t.TempDir())

	_, err := r.Resolve(context.Background(), ParseArg("acme/"), "", "")
	require.Error(t, err)
	var cerr *model.ContextError
	assert.ErrorAs(t, err, &cerr)
}

func TestResolve_ProjectSearchAcrossOrgs(t *testing.T) {
	frontend := model.Target{Org: "acme", Project: "shared"}
	other := model.Target{Org: "other", Project: "shared"}
	api := &fakeAPI{
		orgs: []string{"acme", "other"},
		search: map[string][]model.Target{
			"acme/shared":  {frontend},
			"other/shared": {other},
		},
	}
	r := New(newFakeStore(), api, Env{}, t.TempDir())

	res, err := r.Resolve(context.Background(), ParseArg("/shared"), "", "")
	require.NoError(t, err)
	assert.Len(t, res.Targets, 2)
	assert.NotEmpty(t, res.MultiTargetFooter)
}

func TestResolve_AutoDetect_CLIFlagsTakePriority(t *testing.T) {
	api := &fakeAPI{projects: map[string]model.Target{"acme/web": {Org: "acme", Project: "web"}}}
	r := New(newFakeStore(), api, Env{Org: "ignored", Project: "ignored"}, t.TempDir())

	res, err := r.Resolve(context.Background(), ParseArg(""), "acme", "web")
	require.NoError(t, err)
	require.Len(t, res.Targets, 1)
	assert.Equal(t, "web", res.Targets[0].Project)
}

func TestResolve_AutoDetect_CLIFlagsRequireBoth(t *testing.T) {
	r := New(newFakeStore(), &fakeAPI{}, Env{}, t.TempDir())

	_, err := r.Resolve(context.Background(), ParseArg(""), "acme", "")
	require.Error(t, err)
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestResolve_AutoDetect_EnvComboTakesPriorityOverOrg(t *testing.T) {
	api := &fakeAPI{projects: map[string]model.Target{"acme/web": {Org: "acme", Project: "web"}}}
	r := New(newFakeStore(), api, Env{Org: "other", Project: "acme/web"}, t.TempDir())

	res, err := r.Resolve(context.Background(), ParseArg(""), "", "")
	require.NoError(t, err)
	require.Len(t, res.Targets, 1)
	assert.Equal(t, "acme", res.Targets[0].Org)
}

func TestResolve_AutoDetect_StoredDefault(t *testing.T) {
	api := &fakeAPI{projects: map[string]model.Target{"acme/web": {Org: "acme", Project: "web"}}}
	s := newFakeStore()
	s.defaults["org"] = "acme"
	s.defaults["project"] = "web"
	r := New(s, api, Env{}, t.TempDir())

	res, err := r.Resolve(context.Background(), ParseArg(""), "", "")
	require.NoError(t, err)
	require.Len(t, res.Targets, 1)
}

func TestResolve_AutoDetect_NoSignalIsContextError(t *testing.T) {
	dir := t.TempDir()
	r := New(newFakeStore(), &fakeAPI{}, Env{}, dir)

	_, err := r.Resolve(context.Background(), ParseArg(""), "", "")
	require.Error(t, err)
	var cerr *model.ContextError
	assert.ErrorAs(t, err, &cerr)
}
