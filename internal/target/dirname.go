package target

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kouak/tracecli/internal/model"
)

// minDirNameLen rejects directory names too short to infer a project from
// reliably (two-letter names collide constantly across unrelated repos).
const minDirNameLen = 3

// detectByDirName implements §4.4 step 5: take the basename of the
// discovered project root, reject it if hidden or too short, and query
// every accessible project for a word-boundary match. Underscore is not a
// boundary character, matching Go's regexp \b (word chars are
// [0-9A-Za-z_]), which is the same rule the spec calls out explicitly.
func (r *Resolver) detectByDirName(ctx context.Context) (model.TargetResolution, error) {
	root := findProjectRoot(r.projectRoot)
	name := r.candidateName(ctx, root)
	if name == "" || strings.HasPrefix(name, ".") || len(name) < minDirNameLen {
		return model.TargetResolution{}, nil
	}

	re, err := wordBoundaryPattern(name)
	if err != nil {
		return model.TargetResolution{}, nil
	}

	orgs, err := r.api.ListOrgs(ctx)
	if err != nil {
		return model.TargetResolution{}, err
	}

	var matches []model.Target
	for _, org := range orgs {
		projects, err := r.api.ListOrgProjects(ctx, org)
		if err != nil {
			return model.TargetResolution{}, err
		}
		for _, p := range projects {
			if re.MatchString(p.Project) {
				matches = append(matches, p)
			}
		}
	}
	if len(matches) == 0 {
		return model.TargetResolution{}, nil
	}
	return buildResolution(matches), nil
}

// candidateName is the directory basename to match, preferring the
// canonical GitHub repository name (following renames) over the raw
// clone-directory basename when a GitHub remote and canonicalizer are
// both available.
func (r *Resolver) candidateName(ctx context.Context, root string) string {
	base := filepath.Base(root)
	if r.github == nil {
		return base
	}
	owner, repo, ok := gitHubRemote(root)
	if !ok {
		return base
	}
	if canonical, ok := r.github.CanonicalName(ctx, owner, repo); ok && canonical != "" {
		return canonical
	}
	return base
}

// wordBoundaryPattern builds a case-insensitive \b-delimited pattern for
// name, escaping any regex metacharacters the name itself contains.
func wordBoundaryPattern(name string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
}
