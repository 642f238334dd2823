package fetch

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kouak/tracecli/internal/model"
)

// stubFetcher serves fixed pages per target, recording call counts.
type stubFetcher struct {
	mu    sync.Mutex
	pages map[string][]model.IssuesPage // target key -> ordered pages to return
	calls map[string]int
	err   map[string]error // target key -> error to return instead
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{pages: map[string][]model.IssuesPage{}, calls: map[string]int{}, err: map[string]error{}}
}

func (s *stubFetcher) FetchPage(ctx context.Context, target model.Target, params Params, cursor string, count int) (model.IssuesPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := target.Key()
	if e, ok := s.err[key]; ok {
		return model.IssuesPage{}, e
	}
	n := s.calls[key]
	s.calls[key] = n + 1
	pages := s.pages[key]
	if n >= len(pages) {
		return model.IssuesPage{}, nil
	}
	page := pages[n]
	if len(page.Issues) > count {
		page.Issues = page.Issues[:count]
	}
	return page, nil
}

func issue(id string) model.Issue { return model.Issue{ID: id} }

func TestFetch_SingleTargetNoRedistribution(t *testing.T) {
	f := newStubFetcher()
	target := model.Target{Org: "acme", Project: "web"}
	f.pages[target.Key()] = []model.IssuesPage{
		{Issues: []model.Issue{issue("1"), issue("2")}},
	}

	c := New(f)
	results, err := c.Fetch(context.Background(), []model.Target{target}, 2, Params{}, StartCursors{}, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Ok())
	assert.Len(t, results[0].Issues, 2)
}

func TestFetch_RedistributionAcrossTwoTargets(t *testing.T) {
	f := newStubFetcher()
	fe := model.Target{Org: "acme", Project: "frontend"}
	be := model.Target{Org: "acme", Project: "backend"}

	// quota = ceil(4/2) = 2
	f.pages[fe.Key()] = []model.IssuesPage{
		{Issues: []model.Issue{issue("F1"), issue("F2")}, NextCursor: "cF"},
		{Issues: []model.Issue{issue("F3")}, NextCursor: "cF2"},
	}
	f.pages[be.Key()] = []model.IssuesPage{
		{Issues: []model.Issue{issue("B1")}}, // no cursor: not expandable
	}

	c := New(f)
	results, err := c.Fetch(context.Background(), []model.Target{fe, be}, 4, Params{}, StartCursors{}, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	var total int
	for _, r := range results {
		require.True(t, r.Ok())
		total += len(r.Issues)
	}
	assert.Equal(t, 4, total)

	for _, r := range results {
		if r.Target.Key() == fe.Key() {
			assert.Equal(t, "cF2", r.NextCursor)
			assert.Len(t, r.Issues, 3)
		}
		if r.Target.Key() == be.Key() {
			assert.Equal(t, "", r.NextCursor)
			assert.Len(t, r.Issues, 1)
		}
	}
}

func TestFetch_AuthErrorAbortsImmediately(t *testing.T) {
	f := newStubFetcher()
	good := model.Target{Org: "acme", Project: "good"}
	bad := model.Target{Org: "acme", Project: "bad"}
	f.pages[good.Key()] = []model.IssuesPage{{Issues: []model.Issue{issue("1")}}}
	f.err[bad.Key()] = &model.AuthError{Reason: "token expired"}

	c := New(f)
	_, err := c.Fetch(context.Background(), []model.Target{good, bad}, 10, Params{}, StartCursors{}, nil)
	require.Error(t, err)
	var authErr *model.AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestFetch_PerTargetFailureRecoversOthers(t *testing.T) {
	f := newStubFetcher()
	good := model.Target{Org: "acme", Project: "good"}
	bad := model.Target{Org: "acme", Project: "bad"}
	f.pages[good.Key()] = []model.IssuesPage{{Issues: []model.Issue{issue("1")}}}
	f.err[bad.Key()] = &model.ApiError{Status: 500, Endpoint: "/issues/"}

	c := New(f)
	results, err := c.Fetch(context.Background(), []model.Target{good, bad}, 10, Params{}, StartCursors{}, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		if r.Target.Key() == good.Key() {
			assert.True(t, r.Ok())
		} else {
			assert.False(t, r.Ok())
		}
	}
}

func TestFetch_AllFailedReturnsCompositeError(t *testing.T) {
	f := newStubFetcher()
	a := model.Target{Org: "acme", Project: "a"}
	b := model.Target{Org: "acme", Project: "b"}
	f.err[a.Key()] = &model.ApiError{Status: 503, Endpoint: "/a/"}
	f.err[b.Key()] = &model.ApiError{Status: 503, Endpoint: "/b/"}

	c := New(f)
	_, err := c.Fetch(context.Background(), []model.Target{a, b}, 10, Params{}, StartCursors{}, nil)
	require.Error(t, err)
	var composite *model.CompositeFetchError
	require.ErrorAs(t, err, &composite)
	assert.Equal(t, 2, composite.TargetCount)
	assert.Equal(t, 503, composite.FirstStatus)
}

func TestFetch_ResumeSkipsExhaustedTarget(t *testing.T) {
	f := newStubFetcher()
	fe := model.Target{Org: "acme", Project: "frontend"}
	be := model.Target{Org: "acme", Project: "backend"}
	f.pages[fe.Key()] = []model.IssuesPage{{Issues: []model.Issue{issue("F4")}}}

	start := StartCursors{Resuming: true, Cursors: map[string]string{
		fe.Key(): "cF2",
		be.Key(): "", // previously exhausted
	}}

	c := New(f)
	results, err := c.Fetch(context.Background(), []model.Target{fe, be}, 4, Params{}, start, nil)
	require.NoError(t, err)

	for _, r := range results {
		if r.Target.Key() == be.Key() {
			assert.Empty(t, r.Issues)
		}
	}
	assert.Equal(t, 1, f.calls[fe.Key()])
	assert.Equal(t, 0, f.calls[be.Key()])
}

func TestPerTargetQuota(t *testing.T) {
	assert.Equal(t, 1, perTargetQuota(1, 3))
	assert.Equal(t, 2, perTargetQuota(4, 2))
	assert.Equal(t, 4, perTargetQuota(10, 3))
}
