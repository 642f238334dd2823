// Package serviceapi adapts the authenticated HTTP transport (C3) to the
// narrower interfaces the target resolver (C4) and fetch coordinator (C5)
// consume, decoding the service's organization/project JSON shapes the way
// internal/fetch decodes issues.
package serviceapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/kouak/tracecli/internal/fetch"
	"github.com/kouak/tracecli/internal/model"
	"github.com/kouak/tracecli/internal/transport"
)

// API implements target.API and wraps an *fetch.IssuesAPI for issue
// listing, all driven by the same underlying *transport.Client.
type API struct {
	client *transport.Client
}

// New builds an API around an authenticated transport client.
func New(client *transport.Client) *API {
	return &API{client: client}
}

// DoFunc adapts the client to fetch.DoFunc, so internal/fetch shares the
// transport's HTTP path without importing internal/transport directly.
// The target.API methods below go through it as well.
func (a *API) DoFunc(ctx context.Context, method, path string, query url.Values, body interface{}) (int, []byte, string, error) {
	resp, err := a.client.Do(ctx, method, path, query, body)
	if err != nil {
		return 0, nil, "", err
	}
	return resp.StatusCode, resp.Body, resp.NextCursor, nil
}

// IssuesAPI returns a fetch.PageFetcher/pipeline.OrgFetcher bound to this
// API's transport.
func (a *API) IssuesAPI() *fetch.IssuesAPI {
	return fetch.NewIssuesAPI(a.DoFunc)
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

type orgJSON struct {
	Slug string `json:"slug"`
}

type projectJSON struct {
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	Organization struct {
		Slug string `json:"slug"`
	} `json:"organization"`
}

func (p projectJSON) toTarget(fallbackOrg string) model.Target {
	org := p.Organization.Slug
	if org == "" {
		org = fallbackOrg
	}
	return model.Target{
		Org:            org,
		Project:        p.Slug,
		DisplayOrg:     org,
		DisplayProject: p.Name,
	}
}

// ListOrgs lists every organization accessible to the current token.
func (a *API) ListOrgs(ctx context.Context) ([]string, error) {
	status, body, _, err := a.DoFunc(ctx, "GET", "/organizations/", nil, nil)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, &model.ApiError{Status: status, Detail: extractDetail(body), Endpoint: "/organizations/"}
	}
	var raw []orgJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding /organizations/: %w", err)
	}
	out := make([]string, 0, len(raw))
	for _, o := range raw {
		out = append(out, o.Slug)
	}
	return out, nil
}

// ListOrgProjects lists every project in org.
func (a *API) ListOrgProjects(ctx context.Context, org string) ([]model.Target, error) {
	path := fmt.Sprintf("/organizations/%s/projects/", org)
	status, body, _, err := a.DoFunc(ctx, "GET", path, nil, nil)
	if err != nil {
		return nil, err
	}
	if status == 404 {
		return nil, nil
	}
	if status >= 300 {
		return nil, &model.ApiError{Status: status, Detail: extractDetail(body), Endpoint: path}
	}
	var raw []projectJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	out := make([]model.Target, 0, len(raw))
	for _, p := range raw {
		out = append(out, p.toTarget(org))
	}
	return out, nil
}

// FindProject resolves an explicit org/project pair.
func (a *API) FindProject(ctx context.Context, org, project string) (model.Target, bool, error) {
	path := fmt.Sprintf("/projects/%s/%s/", org, project)
	status, body, _, err := a.DoFunc(ctx, "GET", path, nil, nil)
	if err != nil {
		return model.Target{}, false, err
	}
	if status == 404 {
		return model.Target{}, false, nil
	}
	if status >= 300 {
		return model.Target{}, false, &model.ApiError{Status: status, Detail: extractDetail(body), Endpoint: path}
	}
	var p projectJSON
	if err := json.Unmarshal(body, &p); err != nil {
		return model.Target{}, false, fmt.Errorf("decoding %s: %w", path, err)
	}
	return p.toTarget(org), true, nil
}

// SearchProjectsBySlug finds projects in org whose slug exactly matches
// slug (§4.4's project-search mode is a slug match; word-boundary fuzzy
// matching is specific to directory-name inference, applied by the
// caller, not here).
func (a *API) SearchProjectsBySlug(ctx context.Context, org, slug string) ([]model.Target, bool, error) {
	projects, err := a.ListOrgProjects(ctx, org)
	if err != nil {
		return nil, false, err
	}
	var out []model.Target
	for _, p := range projects {
		if p.Project == slug {
			out = append(out, p)
		}
	}
	return out, true, nil
}

// LookupProjectByOrgID resolves an embedded identifier that names both an
// org id and a project id. The service accepts numeric ids in the same
// path position as slugs.
func (a *API) LookupProjectByOrgID(ctx context.Context, orgID, projectID string) (model.Target, bool, error) {
	path := fmt.Sprintf("/projects/%s/%s/", orgID, projectID)
	status, body, _, err := a.DoFunc(ctx, "GET", path, nil, nil)
	if err != nil {
		return model.Target{}, false, err
	}
	if status == 404 {
		return model.Target{}, false, nil
	}
	if status >= 300 {
		return model.Target{}, false, &model.ApiError{Status: status, Detail: extractDetail(body), Endpoint: path}
	}
	var p projectJSON
	if err := json.Unmarshal(body, &p); err != nil {
		return model.Target{}, false, fmt.Errorf("decoding %s: %w", path, err)
	}
	return p.toTarget(""), true, nil
}

// LookupProjectByPublicKey resolves an embedded identifier that names only
// a DSN public key, with no org id. There is no direct reverse-lookup
// endpoint, so every accessible project's key is checked, in discovery
// order, stopping at the first match.
func (a *API) LookupProjectByPublicKey(ctx context.Context, publicKey string) (model.Target, bool, error) {
	orgs, err := a.ListOrgs(ctx)
	if err != nil {
		return model.Target{}, false, err
	}
	for _, org := range orgs {
		projects, err := a.ListOrgProjects(ctx, org)
		if err != nil {
			return model.Target{}, false, err
		}
		for _, p := range projects {
			match, err := a.projectHasKey(ctx, p, publicKey)
			if err != nil {
				return model.Target{}, false, err
			}
			if match {
				return p, true, nil
			}
		}
	}
	return model.Target{}, false, nil
}

type projectKeyJSON struct {
	Public string `json:"public"`
	DSN    struct {
		Public string `json:"public"`
	} `json:"dsn"`
}

func (a *API) projectHasKey(ctx context.Context, t model.Target, publicKey string) (bool, error) {
	path := fmt.Sprintf("/projects/%s/%s/keys/", t.Org, t.Project)
	status, body, _, err := a.DoFunc(ctx, "GET", path, nil, nil)
	if err != nil {
		return false, err
	}
	if status == 404 {
		return false, nil
	}
	if status >= 300 {
		return false, &model.ApiError{Status: status, Detail: extractDetail(body), Endpoint: path}
	}
	var raw []projectKeyJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return false, fmt.Errorf("decoding %s: %w", path, err)
	}
	for _, k := range raw {
		if strings.EqualFold(k.Public, publicKey) || strings.EqualFold(k.DSN.Public, publicKey) {
			return true, nil
		}
	}
	return false, nil
}
