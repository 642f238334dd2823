// Package alias implements the project alias assigner (C7): stable,
// shortest-unique-prefix aliases for a multi-target result, persisted under
// a fingerprint of the resolved target set.
package alias

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/kouak/tracecli/internal/model"
)

// Store is the subset of the persistent store the assigner reads and
// writes through. Implemented by internal/store.Store.
type Store interface {
	SetProjectAliases(ctx context.Context, entries []model.ProjectAliasEntry, fingerprint string) error
	ProjectAliases(ctx context.Context) ([]model.ProjectAliasEntry, error)
	ProjectAliasFingerprint(ctx context.Context) (string, bool, error)
}

// Fingerprint derives the gating fingerprint from a set of strings
// (order-independent, deduplicated). The list pipeline passes the resolved
// target keys ("org/project"), not the raw detected identifiers, so two
// identifier sets that resolve to the same targets share a fingerprint.
func Fingerprint(identifiers []string) string {
	uniq := map[string]struct{}{}
	for _, id := range identifiers {
		uniq[id] = struct{}{}
	}
	sorted := make([]string, 0, len(uniq))
	for id := range uniq {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}

// Assign computes the alias for every target, keyed by target.Key()
// ("org/project"). See §4.7: within an org, aliases are the shortest
// unique prefix of the project slug after stripping any hyphen-aligned
// common word-prefix shared by every slug in that org; a cross-org
// collision is resolved by prefixing the shortest unique prefix of the
// org slug plus "/".
func Assign(targets []model.Target) map[string]string {
	byOrg := map[string][]string{}
	var orgOrder []string
	for _, t := range targets {
		if _, ok := byOrg[t.Org]; !ok {
			orgOrder = append(orgOrder, t.Org)
		}
		byOrg[t.Org] = append(byOrg[t.Org], t.Project)
	}

	projectAlias := map[string]string{} // "org/project" -> alias, pre-collision
	for org, slugs := range byOrg {
		stripped := stripCommonTokenPrefix(slugs)
		uniq := shortestUniquePrefix(stripped)
		for i, slug := range slugs {
			projectAlias[org+"/"+slug] = strings.ToLower(uniq[stripped[i]])
		}
	}

	aliasOrgs := map[string]map[string]struct{}{} // alias -> set of orgs using it
	for key, a := range projectAlias {
		org := key[:strings.IndexByte(key, '/')]
		if aliasOrgs[a] == nil {
			aliasOrgs[a] = map[string]struct{}{}
		}
		aliasOrgs[a][org] = struct{}{}
	}

	collidingOrgSet := map[string]struct{}{}
	for _, orgs := range aliasOrgs {
		if len(orgs) > 1 {
			for org := range orgs {
				collidingOrgSet[org] = struct{}{}
			}
		}
	}

	out := map[string]string{}
	if len(collidingOrgSet) == 0 {
		for _, t := range targets {
			out[t.Key()] = projectAlias[t.Org+"/"+t.Project]
		}
		return out
	}

	collidingOrgs := make([]string, 0, len(collidingOrgSet))
	for org := range collidingOrgSet {
		collidingOrgs = append(collidingOrgs, org)
	}
	sort.Strings(collidingOrgs)
	orgUniq := shortestUniquePrefix(collidingOrgs)

	for _, t := range targets {
		a := projectAlias[t.Org+"/"+t.Project]
		if _, collides := collidingOrgSet[t.Org]; collides {
			a = strings.ToLower(orgUniq[t.Org]) + "/" + a
		}
		out[t.Key()] = a
	}
	return out
}

// stripCommonTokenPrefix removes the longest leading sequence of
// hyphen-delimited tokens shared by every slug in slugs, per slug — unless
// doing so would leave that slug empty, in which case the original slug is
// kept unchanged (e.g. a bare "spotlight" alongside "spotlight-electron").
func stripCommonTokenPrefix(slugs []string) []string {
	tokenized := make([][]string, len(slugs))
	minLen := -1
	for i, s := range slugs {
		tokenized[i] = strings.Split(s, "-")
		if minLen == -1 || len(tokenized[i]) < minLen {
			minLen = len(tokenized[i])
		}
	}

	k := 0
	for k < minLen {
		tok := tokenized[0][k]
		match := true
		for _, toks := range tokenized[1:] {
			if toks[k] != tok {
				match = false
				break
			}
		}
		if !match {
			break
		}
		k++
	}

	out := make([]string, len(slugs))
	for i, toks := range tokenized {
		if len(toks) > k {
			out[i] = strings.Join(toks[k:], "-")
		} else {
			out[i] = slugs[i]
		}
	}
	return out
}

// shortestUniquePrefix returns, for each distinct string in strs, the
// shortest prefix that does not coincide with any other string's same-or-
// shorter prefix in the set.
func shortestUniquePrefix(strs []string) map[string]string {
	out := make(map[string]string, len(strs))
	for _, s := range strs {
		for l := 1; l <= len(s); l++ {
			candidate := s[:l]
			if l == len(s) {
				out[s] = candidate
				break
			}
			if isUniquePrefix(strs, s, candidate) {
				out[s] = candidate
				break
			}
		}
		if _, ok := out[s]; !ok {
			out[s] = s
		}
	}
	return out
}

func isUniquePrefix(strs []string, self, candidate string) bool {
	l := len(candidate)
	for _, t := range strs {
		if t == self {
			continue
		}
		if len(t) >= l {
			if t[:l] == candidate {
				return false
			}
		} else if candidate == t {
			return false
		}
	}
	return true
}

// ExtractSegmentToken picks a representative token out of a slash-delimited
// route-shaped string (e.g. a performance transaction name like
// "/api/{org}/users/123/profile"), skipping templated "{...}" segments and
// purely numeric segments since neither is informative on its own. It
// returns the first remaining segment, or the empty string if every
// segment was a placeholder or numeric.
func ExtractSegmentToken(transaction string) string {
	for _, seg := range strings.Split(transaction, "/") {
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			continue
		}
		if isAllDigits(seg) {
			continue
		}
		return seg
	}
	return ""
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Load returns the stored alias map (org/project -> alias) honoring
// invariant 2: a caller-supplied fingerprint that disagrees with the
// stored one rejects the whole table. An empty callerFingerprint ("no
// fingerprint passed") always passes, per §4.7. A legacy row with no
// stored fingerprint also passes unconditionally.
func Load(ctx context.Context, s Store, callerFingerprint string) (map[string]string, error) {
	storedFP, ok, err := s.ProjectAliasFingerprint(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if callerFingerprint != "" && storedFP != "" && storedFP != callerFingerprint {
		return nil, nil
	}

	entries, err := s.ProjectAliases(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[e.Org+"/"+e.Project] = strings.ToLower(e.Alias)
	}
	return out, nil
}

// Persist replaces the stored alias table. targets with fewer than two
// entries clear the table instead (§4.7 "single-target resolutions clear
// the alias table").
func Persist(ctx context.Context, s Store, targets []model.Target, fingerprint string) error {
	if len(targets) < 2 {
		return s.SetProjectAliases(ctx, nil, "")
	}
	aliases := Assign(targets)
	entries := make([]model.ProjectAliasEntry, 0, len(targets))
	for _, t := range targets {
		entries = append(entries, model.ProjectAliasEntry{
			Alias:   aliases[t.Key()],
			Org:     t.Org,
			Project: t.Project,
		})
	}
	return s.SetProjectAliases(ctx, entries, fingerprint)
}
