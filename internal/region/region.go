// Package region implements the org slug → region root URL directory
// (C2), backed by the persistent store and populated from the
// control-plane API.
package region

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kouak/tracecli/internal/model"
)

var tracer = otel.Tracer("github.com/kouak/tracecli/region")

// Store is the subset of the persistent store the directory reads and
// writes through. Implemented by internal/store.Store.
type Store interface {
	ResolveOrgRegion(ctx context.Context, org string) (string, bool, error)
	SetOrgRegions(ctx context.Context, regions []model.OrgRegion) error
	ClearOrgRegions(ctx context.Context) error
}

// TokenProvider supplies the bearer token for control-plane requests. The
// directory makes its own unrouted HTTP calls rather than going through
// the org-scoped transport client, since resolving a region is what makes
// routing possible in the first place.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// Directory resolves org slugs to region root URLs.
type Directory struct {
	store           Store
	controlPlaneURL string
	tokens          TokenProvider
	httpClient      *http.Client

	// noRegionDiscovery is set once a 404 from the control-plane's
	// regions endpoint establishes this is a single-region (self-hosted)
	// deployment; all further org-scoped requests go to controlPlaneURL.
	noRegionDiscovery bool
}

// New constructs a Directory. controlPlaneURL is the default or
// environment-provided control-plane root (no trailing slash).
func New(store Store, tokens TokenProvider, controlPlaneURL string) *Directory {
	return &Directory{
		store:           store,
		controlPlaneURL: strings.TrimSuffix(controlPlaneURL, "/"),
		tokens:          tokens,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
	}
}

type regionEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type orgEntry struct {
	Slug string `json:"slug"`
}

// ResolveOrgRegion returns the cached region root URL for org, querying
// the control plane on first use. A control-plane 404 on the region
// lookup marks this deployment as single-region; every subsequent lookup
// (cached in-process, not persisted) short-circuits to controlPlaneURL.
func (d *Directory) ResolveOrgRegion(ctx context.Context, org string) (string, error) {
	if d.noRegionDiscovery {
		return d.controlPlaneURL, nil
	}

	if url, ok, err := d.store.ResolveOrgRegion(ctx, org); err != nil {
		return "", err
	} else if ok {
		return url, nil
	}

	ctx, span := tracer.Start(ctx, "region.resolve_org",
		trace.WithAttributes(attribute.String("org", org)))
	defer span.End()

	url, err := d.queryOrgRegion(ctx, org)
	if err != nil {
		if isNotFound(err) {
			d.noRegionDiscovery = true
			return d.controlPlaneURL, nil
		}
		return "", err
	}

	if err := d.store.SetOrgRegions(ctx, []model.OrgRegion{{Org: org, URL: url}}); err != nil {
		return "", err
	}
	return url, nil
}

// DiscoverAll fans out to the control plane's region list, then lists
// organizations in each region, populating the full directory so later
// per-org lookups are already cached. Nothing in the CLI calls it; the
// directory is filled one org at a time by ResolveOrgRegion.
func (d *Directory) DiscoverAll(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "region.discover_all")
	defer span.End()

	regions, err := d.listRegions(ctx)
	if err != nil {
		if isNotFound(err) {
			d.noRegionDiscovery = true
			return nil
		}
		return err
	}

	var pairs []model.OrgRegion
	for _, r := range regions {
		orgs, err := d.listOrgsInRegion(ctx, r.URL)
		if err != nil {
			return fmt.Errorf("listing organizations in region %s: %w", r.Name, err)
		}
		for _, o := range orgs {
			pairs = append(pairs, model.OrgRegion{Org: o.Slug, URL: r.URL})
		}
	}
	if len(pairs) == 0 {
		return nil
	}
	return d.store.SetOrgRegions(ctx, pairs)
}

func (d *Directory) listRegions(ctx context.Context) ([]regionEntry, error) {
	var out struct {
		Regions []regionEntry `json:"regions"`
	}
	if err := d.getJSON(ctx, d.controlPlaneURL+"/api/0/users/me/regions/", &out); err != nil {
		return nil, err
	}
	return out.Regions, nil
}

func (d *Directory) listOrgsInRegion(ctx context.Context, regionURL string) ([]orgEntry, error) {
	var out []orgEntry
	if err := d.getJSON(ctx, strings.TrimSuffix(regionURL, "/")+"/api/0/organizations/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Directory) queryOrgRegion(ctx context.Context, org string) (string, error) {
	var out struct {
		Region struct {
			URL string `json:"url"`
		} `json:"region"`
	}
	path := fmt.Sprintf("%s/api/0/organizations/%s/region/", d.controlPlaneURL, org)
	if err := d.getJSON(ctx, path, &out); err != nil {
		return "", err
	}
	return out.Region.URL, nil
}

type notFoundError struct{ path string }

func (e *notFoundError) Error() string { return fmt.Sprintf("not found: %s", e.path) }

func isNotFound(err error) bool {
	_, ok := err.(*notFoundError)
	return ok
}

func (d *Directory) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	if d.tokens != nil {
		if token, err := d.tokens.AccessToken(ctx); err == nil && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return &model.NetworkError{Endpoint: rawURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &model.NetworkError{Endpoint: rawURL, Err: err}
	}

	if resp.StatusCode == http.StatusNotFound {
		return &notFoundError{path: rawURL}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &model.ApiError{Status: resp.StatusCode, Detail: extractDetail(body), Endpoint: rawURL}
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		return parsed.Detail
	}
	return ""
}
