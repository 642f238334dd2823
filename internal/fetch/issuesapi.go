package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/kouak/tracecli/internal/model"
)

// DoFunc issues one JSON request and reports its status, body, and next
// page cursor. serviceapi.API.DoFunc adapts *transport.Client to it
// (passing transport.Response.NextCursor through), which keeps this
// package free of a hard import on internal/transport.
type DoFunc func(ctx context.Context, method, path string, query url.Values, body interface{}) (statusCode int, respBody []byte, nextCursor string, err error)

// IssuesAPI implements PageFetcher against the hosted issues listing
// endpoint ("/projects/{org}/{project}/issues/").
type IssuesAPI struct {
	do DoFunc
}

// NewIssuesAPI builds an IssuesAPI around a raw "do a JSON request" function.
func NewIssuesAPI(do DoFunc) *IssuesAPI {
	return &IssuesAPI{do: do}
}

type issueJSON struct {
	ID        string `json:"id"`
	ShortID   string `json:"shortId"`
	Title     string `json:"title"`
	Level     string `json:"level"`
	Count     string `json:"count"`
	UserCount int    `json:"userCount"`
	FirstSeen string `json:"firstSeen"`
	LastSeen  string `json:"lastSeen"`
	Permalink string `json:"permalink"`
	Project   struct {
		Slug string `json:"slug"`
	} `json:"project"`
}

// FetchPage fetches one page of issues for target, capped at count (used
// as the "limit" query parameter, clamped to the service's own page-size
// ceiling by the caller via query params if needed).
func (a *IssuesAPI) FetchPage(ctx context.Context, target model.Target, params Params, cursor string, count int) (model.IssuesPage, error) {
	q := url.Values{}
	if params.Query != "" {
		q.Set("query", params.Query)
	}
	q.Set("sort", mapSort(params.Sort))
	if params.Period != "" {
		q.Set("statsPeriod", params.Period)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	q.Set("limit", strconv.Itoa(count))

	path := fmt.Sprintf("/projects/%s/%s/issues/", target.Org, target.Project)
	status, body, next, err := a.do(ctx, "GET", path, q, nil)
	if err != nil {
		return model.IssuesPage{}, err
	}
	if status == 404 {
		return model.IssuesPage{}, &model.ResolutionError{Kind: "project", Name: target.String()}
	}
	if status >= 300 {
		return model.IssuesPage{}, &model.ApiError{Status: status, Detail: extractDetail(body), Endpoint: path}
	}

	var raw []map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.IssuesPage{}, err
	}

	issues := make([]model.Issue, 0, len(raw))
	for _, r := range raw {
		issues = append(issues, decodeIssue(r, target.Project))
	}
	return model.IssuesPage{Issues: issues, NextCursor: next}, nil
}

// FetchOrgPage fetches one page of the organization-wide issue listing
// ("/organizations/{org}/issues/"), used by the org-all target mode's
// single-target cursor-paginated path (§4.8).
func (a *IssuesAPI) FetchOrgPage(ctx context.Context, org string, params Params, cursor string, count int) (model.IssuesPage, error) {
	q := url.Values{}
	if params.Query != "" {
		q.Set("query", params.Query)
	}
	q.Set("sort", mapSort(params.Sort))
	if params.Period != "" {
		q.Set("statsPeriod", params.Period)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	q.Set("limit", strconv.Itoa(count))

	path := fmt.Sprintf("/organizations/%s/issues/", org)
	status, body, next, err := a.do(ctx, "GET", path, q, nil)
	if err != nil {
		return model.IssuesPage{}, err
	}
	if status == 404 {
		return model.IssuesPage{}, &model.ResolutionError{Kind: "org", Name: org}
	}
	if status >= 300 {
		return model.IssuesPage{}, &model.ApiError{Status: status, Detail: extractDetail(body), Endpoint: path}
	}

	var raw []map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.IssuesPage{}, err
	}

	issues := make([]model.Issue, 0, len(raw))
	for _, r := range raw {
		issues = append(issues, decodeIssue(r, ""))
	}
	return model.IssuesPage{Issues: issues, NextCursor: next}, nil
}

func decodeIssue(raw map[string]interface{}, fallbackSlug string) model.Issue {
	encoded, _ := json.Marshal(raw)
	var j issueJSON
	_ = json.Unmarshal(encoded, &j)

	slug := j.Project.Slug
	if slug == "" {
		slug = fallbackSlug
	}

	return model.Issue{
		ID:          j.ID,
		ShortID:     j.ShortID,
		Title:       j.Title,
		Level:       j.Level,
		Count:       j.Count,
		UserCount:   j.UserCount,
		FirstSeen:   parseTimestamp(j.FirstSeen),
		LastSeen:    parseTimestamp(j.LastSeen),
		ProjectSlug: slug,
		Permalink:   j.Permalink,
		Raw:         raw,
	}
}

func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// extractDetail pulls the server-provided detail string out of an error
// response body, when JSON-parseable (spec: ApiError preserves it).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		return parsed.Detail
	}
	return ""
}

// mapSort translates the CLI's sort key to the service's query value. The
// two vocabularies are the same ("date", "new", "freq", "user", also the
// keys Merge's lessFuncFor uses); an unknown key falls back to "date".
func mapSort(sort string) string {
	switch sort {
	case "new":
		return "new"
	case "freq":
		return "freq"
	case "user":
		return "user"
	default:
		return "date"
	}
}
