// Package target implements the target resolver (C4): it turns the
// optional positional CLI argument, environment variables, stored
// defaults, embedded project identifiers, and directory-name inference
// into an ordered, deduplicated set of (org, project) targets.
package target

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/kouak/tracecli/internal/model"
	"github.com/kouak/tracecli/internal/store"
)

// Store is the subset of the persistent store the resolver reads and
// writes through. Implemented by internal/store.Store.
type Store interface {
	GetDefault(ctx context.Context, key string) (string, bool, error)
	ProjectRootCache(ctx context.Context, path string) (store.ProjectRootCacheEntry, bool, error)
	SetProjectRootCache(ctx context.Context, path string, e store.ProjectRootCacheEntry) error
	ProjectCacheFor(ctx context.Context, org, project string) (store.ProjectCacheEntry, bool, error)
	PutProjectCache(ctx context.Context, e store.ProjectCacheEntry) error
	LookupDSN(ctx context.Context, publicKey string) (org, project string, ok bool, err error)
	SetDSN(ctx context.Context, org, project, publicKey string) error
}

// API is the subset of the service's HTTP API the resolver needs to turn
// slugs and embedded identifiers into targets. Implemented by
// internal/serviceapi.API.
type API interface {
	FindProject(ctx context.Context, org, project string) (model.Target, bool, error)
	LookupProjectByOrgID(ctx context.Context, orgID, projectID string) (model.Target, bool, error)
	LookupProjectByPublicKey(ctx context.Context, publicKey string) (model.Target, bool, error)
	ListOrgProjects(ctx context.Context, org string) ([]model.Target, error)
	SearchProjectsBySlug(ctx context.Context, org, slug string) ([]model.Target, bool, error)
	ListOrgs(ctx context.Context) ([]string, error)
}

// Env carries the two environment variables §4.4 step 2 honors. Project
// may be a bare project slug or an "org/project" combo, which takes
// precedence over Org and ignores it.
type Env struct {
	Org     string
	Project string
}

// Resolver implements the target resolution grammar and auto-detect chain
// (C4).
type Resolver struct {
	store       Store
	api         API
	env         Env
	projectRoot string

	// github, when non-nil, canonicalizes a local git remote's owner/repo
	// before using it as a directory-name-inference candidate (a renamed
	// GitHub repository may still carry the old name in its clone path).
	github Canonicalizer
}

// Canonicalizer resolves a GitHub owner/repo pair to the repository's
// current name, following renames. Implemented by *GitHubCanonicalizer.
type Canonicalizer interface {
	CanonicalName(ctx context.Context, owner, repo string) (string, bool)
}

// New constructs a Resolver. projectRoot is the directory search for
// embedded identifiers and directory-name inference starts from
// (typically the process's working directory).
func New(s Store, api API, env Env, projectRoot string) *Resolver {
	return &Resolver{store: s, api: api, env: env, projectRoot: projectRoot}
}

// WithGitHubCanonicalizer attaches a GitHub repository-rename resolver to
// the directory-name-inference step.
func (r *Resolver) WithGitHubCanonicalizer(c Canonicalizer) *Resolver {
	r.github = c
	return r
}

// buildResolution dedups targets by (org, project) in discovery order and
// fills in the multi-target footer (§4.4 "more than one distinct target").
func buildResolution(targets []model.Target) model.TargetResolution {
	seen := map[string]bool{}
	var out []model.Target
	for _, t := range targets {
		if seen[t.Key()] {
			continue
		}
		seen[t.Key()] = true
		out = append(out, t)
	}
	res := model.TargetResolution{Targets: out}
	if len(out) > 1 {
		res.MultiTargetFooter = multiTargetFooter(out)
	}
	return res
}

func multiTargetFooter(targets []model.Target) string {
	keys := make([]string, len(targets))
	for i, t := range targets {
		keys[i] = t.Key()
	}
	sort.Strings(keys)
	return "matched " + strconv.Itoa(len(keys)) + " projects: " + strings.Join(keys, ", ")
}
