// Package model defines the data types shared across the target resolver,
// fetch coordinator, cursor codec, alias assigner, and list pipeline.
package model

import "time"

// Target identifies one (org, project) pair to list issues from.
// Equality is on the slug pair; DisplayOrg/DisplayProject and Source are
// presentation-only and excluded from Key.
type Target struct {
	Org            string
	Project        string
	DisplayOrg     string
	DisplayProject string
	Source         string // e.g. "detected from .env.local", "directory name"
}

// Key returns the (org, project) identity used for deduplication.
func (t Target) Key() string {
	return t.Org + "/" + t.Project
}

// String renders the canonical "org/project" form.
func (t Target) String() string {
	return t.Org + "/" + t.Project
}

// Issue is an opaque record as returned by the service, with the fields the
// core pipeline reasons about promoted to typed fields.
type Issue struct {
	ID          string
	ShortID     string
	Title       string
	Level       string
	Count       string
	UserCount   int
	FirstSeen   *time.Time
	LastSeen    *time.Time
	ProjectSlug string
	Permalink   string

	// Raw holds the full decoded JSON object as received, so that --json
	// output can re-emit it verbatim (§6 JSON output contract).
	Raw map[string]interface{}
}

// IssuesPage is one page of a paginated issue listing.
type IssuesPage struct {
	Issues     []Issue
	NextCursor string // empty means exhausted
}

// Region is a named regional API root.
type Region struct {
	Name string
	URL  string
}

// OrgRegion records the resolved region root for one organization.
type OrgRegion struct {
	Org string
	URL string
}

// ProjectAliasEntry is one row of a persisted alias table.
type ProjectAliasEntry struct {
	Alias   string
	Org     string
	Project string
}

// FetchResult is the tagged Ok|Failure union produced by one target's fetch.
// Exactly one of (Issues present, Err non-nil) is meaningful at a time; Err
// non-nil marks the Failure variant.
type FetchResult struct {
	Target     Target
	Issues     []Issue
	NextCursor string
	Err        error
}

// Ok reports whether this result represents a successful fetch.
func (r FetchResult) Ok() bool { return r.Err == nil }

// TargetMode is the discriminant of the positional target grammar (§4.4).
type TargetMode int

const (
	// ModeAutoDetect means no positional argument was given.
	ModeAutoDetect TargetMode = iota
	// ModeExplicit is "org/project".
	ModeExplicit
	// ModeOrgAll is "org/" — all projects in an org.
	ModeOrgAll
	// ModeProjectSearch is "/project" or a bare "project" token.
	ModeProjectSearch
	// ModeNumericID is an all-digit issue id (not valid for listing).
	ModeNumericID
	// ModeURL is a parsed service UI URL.
	ModeURL
)

// ParsedTarget is the result of parsing the positional target argument,
// before resolution against the store/API. It is a discriminated union on
// Mode; only the fields relevant to that mode are populated.
type ParsedTarget struct {
	Mode     TargetMode
	Org      string
	Project  string
	IssueID  string
	ShortID  string
	RawInput string
	// IsTrace marks a parsed performance-trace URL. Trace and org-only
	// URLs are rejected for issue-scoped operations (§4.4).
	IsTrace bool
	// FromSlash records whether a ModeProjectSearch input was written as
	// "/project" (leading slash) rather than a bare "project" token, so
	// FormatTargetArg can round-trip the original spelling.
	FromSlash bool
}

// TargetResolution is what the resolver hands to the fetch coordinator.
type TargetResolution struct {
	Targets         []Target
	SkippedSelfHosted int
	MultiTargetFooter string
}
