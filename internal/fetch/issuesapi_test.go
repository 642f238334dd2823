package fetch

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kouak/tracecli/internal/model"
)

func TestIssuesAPI_FetchPage_DecodesIssues(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	do := func(ctx context.Context, method, path string, query url.Values, body interface{}) (int, []byte, string, error) {
		gotPath = path
		gotQuery = query
		raw := []map[string]interface{}{
			{
				"id": "1", "shortId": "WEB-1", "title": "boom", "level": "error",
				"count": "42", "userCount": float64(3),
				"firstSeen": "2024-01-01T00:00:00Z", "lastSeen": "2024-06-01T00:00:00Z",
				"permalink": "https://example.test/issues/1",
				"project":   map[string]interface{}{"slug": "web"},
			},
		}
		body, _ := json.Marshal(raw)
		return 200, body, "next-cursor", nil
	}

	api := NewIssuesAPI(do)
	page, err := api.FetchPage(context.Background(), model.Target{Org: "acme", Project: "web"}, Params{Query: "is:unresolved", Sort: "freq", Period: "14d"}, "abc", 25)
	require.NoError(t, err)
	require.Len(t, page.Issues, 1)
	assert.Equal(t, "next-cursor", page.NextCursor)

	issue := page.Issues[0]
	assert.Equal(t, "WEB-1", issue.ShortID)
	assert.Equal(t, "42", issue.Count)
	assert.Equal(t, 3, issue.UserCount)
	assert.Equal(t, "web", issue.ProjectSlug)
	require.NotNil(t, issue.LastSeen)

	assert.Equal(t, "/projects/acme/web/issues/", gotPath)
	assert.Equal(t, "is:unresolved", gotQuery.Get("query"))
	assert.Equal(t, "freq", gotQuery.Get("sort"))
	assert.Equal(t, "14d", gotQuery.Get("statsPeriod"))
	assert.Equal(t, "abc", gotQuery.Get("cursor"))
	assert.Equal(t, "25", gotQuery.Get("limit"))
}

func TestIssuesAPI_FetchPage_NotFound(t *testing.T) {
	do := func(ctx context.Context, method, path string, query url.Values, body interface{}) (int, []byte, string, error) {
		return 404, nil, "", nil
	}
	api := NewIssuesAPI(do)
	_, err := api.FetchPage(context.Background(), model.Target{Org: "acme", Project: "gone"}, Params{}, "", 10)
	require.Error(t, err)
	var resErr *model.ResolutionError
	assert.ErrorAs(t, err, &resErr)
}
