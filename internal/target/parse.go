package target

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/kouak/tracecli/internal/model"
)

// ParseArg parses the positional target argument per §4.4's grammar,
// matching the first pattern that fits: empty, a URL, all-digits, then the
// slash-delimited forms, then a bare token.
func ParseArg(raw string) model.ParsedTarget {
	if raw == "" {
		return model.ParsedTarget{Mode: model.ModeAutoDetect}
	}
	if looksLikeURL(raw) {
		return parseServiceURL(raw)
	}
	if IsAllDigits(raw) {
		return model.ParsedTarget{Mode: model.ModeNumericID, RawInput: raw, IssueID: raw}
	}

	if idx := strings.IndexByte(raw, '/'); idx >= 0 {
		org, rest := raw[:idx], raw[idx+1:]
		switch {
		case org == "":
			return model.ParsedTarget{Mode: model.ModeProjectSearch, Project: rest, RawInput: raw, FromSlash: true}
		case rest == "":
			return model.ParsedTarget{Mode: model.ModeOrgAll, Org: org, RawInput: raw}
		default:
			return model.ParsedTarget{Mode: model.ModeExplicit, Org: org, Project: rest, RawInput: raw}
		}
	}
	return model.ParsedTarget{Mode: model.ModeProjectSearch, Project: raw, RawInput: raw}
}

// FormatTargetArg renders a ParsedTarget back to the positional argument
// spelling that would parse to an equal value, for explicit, org-all, and
// project-search targets (§8 round-trip property).
func FormatTargetArg(pt model.ParsedTarget) string {
	switch pt.Mode {
	case model.ModeExplicit:
		return pt.Org + "/" + pt.Project
	case model.ModeOrgAll:
		return pt.Org + "/"
	case model.ModeProjectSearch:
		if pt.FromSlash {
			return "/" + pt.Project
		}
		return pt.Project
	default:
		return pt.RawInput
	}
}

// IsAllDigits reports whether s is non-empty and every rune is an ASCII
// digit. The empty string is never all-digits (§8).
func IsAllDigits(s string) bool {
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

var urlSchemeRe = regexp.MustCompile(`(?i)^[a-z][a-z0-9+.\-]*://`)

func looksLikeURL(s string) bool {
	return urlSchemeRe.MatchString(s)
}

// These patterns match the service's issue/project/org UI paths:
//
//	/organizations/{org}/issues/{shortId}/...
//	/organizations/{org}/performance/{traceId}/...  (trace URL; rejected)
//	/organizations/{org}/projects/{project}/...     (project, no issue)
//	/{org}/{project}/issues/{shortId}/...           (legacy issue URL)
//	/organizations/{org}/                           (org-only; rejected)
var (
	issuePathRe       = regexp.MustCompile(`^/organizations/([^/]+)/issues/([^/]+)/?`)
	tracePathRe       = regexp.MustCompile(`^/organizations/([^/]+)/(?:performance|traces)/`)
	projectScopedRe   = regexp.MustCompile(`^/organizations/([^/]+)/projects/([^/]+)/?`)
	legacyIssuePathRe = regexp.MustCompile(`^/([^/]+)/([^/]+)/issues/([^/]+)/?`)
	orgOnlyRe         = regexp.MustCompile(`^/organizations/([^/]+)/?$`)
)

// parseServiceURL extracts org/project/issue fields from a URL of the
// service's own UI. Trace URLs and bare org URLs parse to a ParsedTarget
// with IsTrace set or no project/issue, which callers performing
// issue-scoped operations must reject (§4.4).
func parseServiceURL(raw string) model.ParsedTarget {
	pt := model.ParsedTarget{Mode: model.ModeURL, RawInput: raw}
	u, err := url.Parse(raw)
	if err != nil {
		return pt
	}
	path := u.Path

	if m := tracePathRe.FindStringSubmatch(path); m != nil {
		pt.Org = m[1]
		pt.IsTrace = true
		return pt
	}
	if m := issuePathRe.FindStringSubmatch(path); m != nil {
		pt.Org = m[1]
		pt.ShortID = m[2]
		return pt
	}
	if m := legacyIssuePathRe.FindStringSubmatch(path); m != nil {
		pt.Org = m[1]
		pt.Project = m[2]
		pt.ShortID = m[3]
		return pt
	}
	if m := projectScopedRe.FindStringSubmatch(path); m != nil {
		pt.Org = m[1]
		pt.Project = m[2]
		return pt
	}
	if m := orgOnlyRe.FindStringSubmatch(path); m != nil {
		pt.Org = m[1]
		return pt
	}
	return pt
}
