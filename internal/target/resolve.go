package target

import (
	"context"
	"strings"
	"time"

	"github.com/kouak/tracecli/internal/model"
	"github.com/kouak/tracecli/internal/store"
)

// projectCacheTTL bounds how long an explicit-target resolution is served
// from project_cache before resolveExplicit re-confirms it against the
// service, counted from the entry's UpdatedAt. loadCachedResolution uses
// the same 24h length for project_root_cache, counted from the directory's
// recorded mtime instead.
const projectCacheTTL = 24 * time.Hour

// Resolve dispatches a parsed target argument to the mode-specific
// resolution and, for ModeAutoDetect, runs the five-step chain of §4.4.
func (r *Resolver) Resolve(ctx context.Context, pt model.ParsedTarget, cliOrg, cliProj string) (model.TargetResolution, error) {
	switch pt.Mode {
	case model.ModeExplicit:
		return r.resolveExplicit(ctx, pt.Org, pt.Project)
	case model.ModeOrgAll:
		return r.resolveOrgAll(ctx, pt.Org)
	case model.ModeProjectSearch:
		return r.resolveProjectSearch(ctx, pt.Project)
	case model.ModeAutoDetect:
		return r.resolveAutoDetect(ctx, cliOrg, cliProj)
	case model.ModeURL:
		if pt.IsTrace {
			return model.TargetResolution{}, &model.ContextError{Msg: "trace URLs do not name a single project"}
		}
		if pt.Project != "" {
			return r.resolveExplicit(ctx, pt.Org, pt.Project)
		}
		return model.TargetResolution{}, &model.ContextError{Msg: "URL does not name a project"}
	default:
		return model.TargetResolution{}, &model.ContextError{Msg: "target cannot be resolved"}
	}
}

func (r *Resolver) resolveExplicit(ctx context.Context, org, project string) (model.TargetResolution, error) {
	if cached, ok, err := r.store.ProjectCacheFor(ctx, org, project); err != nil {
		return model.TargetResolution{}, err
	} else if ok && time.Since(cached.UpdatedAt) < projectCacheTTL {
		t := model.Target{Org: org, Project: project, DisplayOrg: cached.DisplayOrg, DisplayProject: cached.DisplayProject}
		return buildResolution([]model.Target{t}), nil
	}

	t, ok, err := r.api.FindProject(ctx, org, project)
	if err != nil {
		return model.TargetResolution{}, err
	}
	if !ok {
		return model.TargetResolution{}, &model.ResolutionError{Kind: "project", Name: org + "/" + project}
	}
	_ = r.store.PutProjectCache(ctx, store.ProjectCacheEntry{
		Org: t.Org, Project: t.Project, DisplayOrg: t.DisplayOrg, DisplayProject: t.DisplayProject,
	})
	return buildResolution([]model.Target{t}), nil
}

func (r *Resolver) resolveOrgAll(ctx context.Context, org string) (model.TargetResolution, error) {
	projects, err := r.api.ListOrgProjects(ctx, org)
	if err != nil {
		return model.TargetResolution{}, err
	}
	if len(projects) == 0 {
		return model.TargetResolution{}, &model.ContextError{Msg: "organization " + org + " has no projects"}
	}
	return buildResolution(projects), nil
}

// resolveProjectSearch finds every project across accessible organizations
// whose slug exactly matches slug, for the "/project" and bare "project"
// grammar forms.
func (r *Resolver) resolveProjectSearch(ctx context.Context, slug string) (model.TargetResolution, error) {
	orgs, err := r.api.ListOrgs(ctx)
	if err != nil {
		return model.TargetResolution{}, err
	}
	var matches []model.Target
	for _, org := range orgs {
		found, _, err := r.api.SearchProjectsBySlug(ctx, org, slug)
		if err != nil {
			return model.TargetResolution{}, err
		}
		matches = append(matches, found...)
	}
	if len(matches) == 0 {
		return model.TargetResolution{}, &model.ResolutionError{Kind: "project", Name: slug}
	}
	return buildResolution(matches), nil
}

// resolveAutoDetect runs the five-step chain of §4.4, returning on the
// first step that yields a non-empty result.
func (r *Resolver) resolveAutoDetect(ctx context.Context, cliOrg, cliProj string) (model.TargetResolution, error) {
	// 1. CLI-supplied explicit org and project.
	if cliOrg != "" || cliProj != "" {
		if cliOrg == "" || cliProj == "" {
			return model.TargetResolution{}, &model.ValidationError{Msg: "both --org and --project must be given together"}
		}
		return r.resolveExplicit(ctx, cliOrg, cliProj)
	}

	// 2. Environment org/project, with PROJECT="org/project" combo taking
	// precedence over ORG and ignoring it.
	if org, proj, ok := r.envTarget(); ok {
		return r.resolveExplicit(ctx, org, proj)
	}

	// 3. Stored default org/project.
	if org, proj, ok, err := r.defaultTarget(ctx); err != nil {
		return model.TargetResolution{}, err
	} else if ok {
		return r.resolveExplicit(ctx, org, proj)
	}

	// 4. Embedded-identifier detection.
	res, found, err := r.detectEmbedded(ctx)
	if err != nil {
		return model.TargetResolution{}, err
	}
	if found {
		return res, nil
	}

	// 5. Directory-name inference.
	res, err = r.detectByDirName(ctx)
	if err != nil {
		return model.TargetResolution{}, err
	}
	if len(res.Targets) == 0 {
		return model.TargetResolution{}, &model.ContextError{
			Msg: "could not determine a target: no identifier found, no stored default, and directory name did not match any project",
		}
	}
	return res, nil
}

// envTarget implements §4.4 step 2: PROJECT="org/project" takes
// precedence over ORG and ignores it entirely; a bare PROJECT value is
// combined with ORG when both are set.
func (r *Resolver) envTarget() (org, project string, ok bool) {
	if r.env.Project != "" {
		if idx := strings.IndexByte(r.env.Project, '/'); idx >= 0 {
			return r.env.Project[:idx], r.env.Project[idx+1:], true
		}
		if r.env.Org != "" {
			return r.env.Org, r.env.Project, true
		}
		return "", "", false
	}
	return "", "", false
}

func (r *Resolver) defaultTarget(ctx context.Context) (org, project string, ok bool, err error) {
	org, okOrg, err := r.store.GetDefault(ctx, "org")
	if err != nil {
		return "", "", false, err
	}
	project, okProj, err := r.store.GetDefault(ctx, "project")
	if err != nil {
		return "", "", false, err
	}
	if okOrg && okProj && org != "" && project != "" {
		return org, project, true, nil
	}
	return "", "", false, nil
}
