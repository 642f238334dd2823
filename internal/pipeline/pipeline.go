// Package pipeline composes the target resolver, fetch coordinator, cursor
// codec, and alias assigner into the end-to-end "list issues" operation
// (C8): parse → resolve → fetch → merge → alias → trim → emit →
// persist-cursor.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"

	"github.com/kouak/tracecli/internal/alias"
	"github.com/kouak/tracecli/internal/cursor"
	"github.com/kouak/tracecli/internal/fetch"
	"github.com/kouak/tracecli/internal/model"
	"github.com/kouak/tracecli/internal/target"
)

// MaxLimit bounds both the --limit flag and the doubled continuation hint.
const MaxLimit = 1000

// DefaultSort and DefaultPeriod are the flag defaults per §6.
const (
	DefaultSort   = "date"
	DefaultPeriod = "90d"
)

var validSortKeys = map[string]bool{"date": true, "new": true, "freq": true, "user": true}

const commandKey = "issues:list"

// OrgFetcher fetches one page of the organization-wide issue listing used
// by the org-all target mode's single-target cursor-paginated path.
type OrgFetcher interface {
	FetchOrgPage(ctx context.Context, org string, params fetch.Params, cursor string, count int) (model.IssuesPage, error)
}

// Request is one "list issues" invocation's parsed inputs, already past
// CLI flag parsing.
type Request struct {
	TargetArg string
	CLIOrg    string
	CLIProj   string
	Query     string
	Limit     int
	Sort      string
	Period    string
	Cursor    string // "", "last", or an explicit cursor/compound-cursor string
}

// Row is one emitted issue, tagged with its alias (multi-target only) and
// originating project slug.
type Row struct {
	Issue       model.Issue
	Alias       string
	ProjectSlug string
}

// IssueError is one target's fetch failure, reported per §6's JSON output
// contract; a multi-target listing locally recovers a single target's
// failure into a Failure result rather than failing the whole invocation.
type IssueError struct {
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
}

// Result is the pipeline's output.
type Result struct {
	Rows              []Row
	HasMore           bool
	NextCursor        string
	Errors            []IssueError
	MultiTargetFooter string
	ContinuationHint  string
}

// Pipeline wires the resolver, coordinator, org-all fetcher, cursor store,
// and alias store together.
type Pipeline struct {
	Resolver    *target.Resolver
	Coordinator *fetch.Coordinator
	OrgFetcher  OrgFetcher
	CursorStore cursor.Store
	AliasStore  alias.Store
	HostBase    string
}

// New constructs a Pipeline.
func New(resolver *target.Resolver, coord *fetch.Coordinator, orgFetcher OrgFetcher, cursorStore cursor.Store, aliasStore alias.Store, hostBase string) *Pipeline {
	return &Pipeline{
		Resolver:    resolver,
		Coordinator: coord,
		OrgFetcher:  orgFetcher,
		CursorStore: cursorStore,
		AliasStore:  aliasStore,
		HostBase:    hostBase,
	}
}

// Run executes the full state machine for one invocation.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}

	pt := target.ParseArg(req.TargetArg)
	if pt.Mode == model.ModeNumericID || (pt.Mode == model.ModeURL && (pt.ShortID != "" || pt.IsTrace)) {
		return Result{}, &model.ValidationError{Msg: "target does not name a project listable for issues"}
	}

	resolution, err := p.Resolver.Resolve(ctx, pt, req.CLIOrg, req.CLIProj)
	if err != nil {
		return Result{}, err
	}
	if len(resolution.Targets) == 0 {
		return Result{}, &model.ContextError{Msg: "no target resolved"}
	}

	params := fetch.Params{Query: req.Query, Sort: req.Sort, Period: req.Period}

	if pt.Mode == model.ModeOrgAll {
		return p.runOrgAll(ctx, req, pt.Org, params)
	}
	return p.runMultiTarget(ctx, req, resolution, params)
}

func validateRequest(req Request) error {
	if req.Limit < 1 || req.Limit > MaxLimit {
		return &model.ValidationError{Msg: "--limit must be between 1 and 1000"}
	}
	if !validSortKeys[req.Sort] {
		return &model.ValidationError{Msg: "--sort must be one of date, new, freq, user"}
	}
	if req.Cursor != "" && req.Cursor != "last" && target.IsAllDigits(req.Cursor) {
		return &model.ValidationError{Msg: "--cursor must not be a bare number", Hint: `use "last" to resume, or a full cursor value`}
	}
	return nil
}

func (p *Pipeline) runOrgAll(ctx context.Context, req Request, org string, params fetch.Params) (Result, error) {
	contextKey := cursor.BuildOrgAllContextKey(p.HostBase, org, req.Sort, req.Period, req.Query)

	startCursor := ""
	resuming := false
	if req.Cursor == "last" {
		resuming = true
		stored, ok, err := cursor.Load(ctx, p.CursorStore, commandKey, contextKey)
		if err != nil {
			return Result{}, err
		}
		if ok && len(stored) > 0 {
			startCursor = stored[0]
		}
	} else if req.Cursor != "" {
		resuming = true
		startCursor = req.Cursor
	}

	// §4.8: "a single auto-paginated batch up to L, or a single page when
	// resuming." A resumed listing fetches exactly the next page so a
	// repeated "-c last" walks forward one page at a time.
	var issues []model.Issue
	nextCursor := startCursor
	if resuming {
		page, err := p.OrgFetcher.FetchOrgPage(ctx, org, params, startCursor, req.Limit)
		if err != nil {
			return Result{}, err
		}
		issues = page.Issues
		nextCursor = page.NextCursor
	} else {
		for len(issues) < req.Limit {
			page, err := p.OrgFetcher.FetchOrgPage(ctx, org, params, nextCursor, req.Limit-len(issues))
			if err != nil {
				return Result{}, err
			}
			issues = append(issues, page.Issues...)
			nextCursor = page.NextCursor
			if nextCursor == "" {
				break
			}
		}
	}
	if len(issues) > req.Limit {
		issues = issues[:req.Limit]
	}

	if err := cursor.Persist(ctx, p.CursorStore, commandKey, contextKey, []string{nextCursor}); err != nil {
		// best-effort; persistence failure is logged as a warning, not fatal
		slog.Warn("could not persist pagination cursor", "err", err)
	}

	rows := make([]Row, 0, len(issues))
	for _, issue := range issues {
		rows = append(rows, Row{Issue: issue, ProjectSlug: issue.ProjectSlug})
	}

	return Result{
		Rows:             rows,
		HasMore:          nextCursor != "",
		NextCursor:       nextCursor,
		ContinuationHint: continuationHint(req.Limit, len(rows) == req.Limit, nextCursor != ""),
	}, nil
}

func (p *Pipeline) runMultiTarget(ctx context.Context, req Request, resolution model.TargetResolution, params fetch.Params) (Result, error) {
	targets := sortedTargets(resolution.Targets)
	pairs := make([]string, len(targets))
	for i, t := range targets {
		pairs[i] = t.Key()
	}
	contextKey := cursor.BuildMultiTargetContextKey(p.HostBase, pairs, req.Sort, req.Period, req.Query)

	start := fetch.StartCursors{}
	if req.Cursor == "last" {
		stored, ok, err := cursor.Load(ctx, p.CursorStore, commandKey, contextKey)
		if err != nil {
			return Result{}, err
		}
		if ok {
			start.Resuming = true
			start.Cursors = map[string]string{}
			for i, t := range targets {
				if i < len(stored) {
					start.Cursors[t.Key()] = stored[i]
				}
			}
		}
	}

	fingerprint := alias.Fingerprint(pairs)
	if err := alias.Persist(ctx, p.AliasStore, targets, fingerprint); err != nil {
		return Result{}, err
	}
	var aliases map[string]string
	if len(targets) >= 2 {
		aliases = alias.Assign(targets)
	}

	results, err := p.Coordinator.Fetch(ctx, targets, req.Limit, params, start, nil)
	if err != nil {
		return Result{}, err
	}

	cursors := make([]string, len(targets))
	byKey := map[string]model.FetchResult{}
	for _, r := range results {
		byKey[r.Target.Key()] = r
	}
	for i, t := range targets {
		cursors[i] = byKey[t.Key()].NextCursor
	}
	if err := cursor.Persist(ctx, p.CursorStore, commandKey, contextKey, cursors); err != nil {
		slog.Warn("could not persist pagination cursor", "err", err)
	}

	merged := fetch.Merge(results, req.Sort)
	trimmed := fetch.Trim(merged, req.Limit)

	rows := make([]Row, 0, len(trimmed))
	for _, s := range trimmed {
		rows = append(rows, Row{
			Issue:       s.Issue,
			Alias:       aliases[s.ProjectKey],
			ProjectSlug: s.Issue.ProjectSlug,
		})
	}

	anyNext := false
	for _, c := range cursors {
		if c != "" {
			anyNext = true
			break
		}
	}

	var issueErrs []IssueError
	for _, t := range targets {
		if r := byKey[t.Key()]; !r.Ok() {
			issueErrs = append(issueErrs, toIssueError(r.Err))
		}
	}

	var nextCursor string
	if anyNext {
		nextCursor = cursor.Encode(cursors)
	}

	return Result{
		Rows:              rows,
		HasMore:           anyNext,
		NextCursor:        nextCursor,
		Errors:            issueErrs,
		MultiTargetFooter: resolution.MultiTargetFooter,
		ContinuationHint:  continuationHint(req.Limit, len(merged) > len(trimmed), anyNext),
	}, nil
}

// toIssueError converts a per-target fetch failure to the §6 JSON error
// shape, preserving the status code when the cause is an ApiError.
func toIssueError(err error) IssueError {
	var apiErr *model.ApiError
	if errors.As(err, &apiErr) {
		return IssueError{Status: apiErr.Status, Message: apiErr.Error()}
	}
	return IssueError{Message: err.Error()}
}

// sortedTargets orders targets lexicographically by (org, project), the
// stable order the compound cursor is aligned to (§4.6).
func sortedTargets(targets []model.Target) []model.Target {
	out := append([]model.Target(nil), targets...)
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// continuationHint suggests a doubled limit (bounded by MaxLimit) or
// "-c last" when output was trimmed or pagination isn't exhausted.
func continuationHint(limit int, wasTrimmed, hasNext bool) string {
	if !wasTrimmed && !hasNext {
		return ""
	}
	doubled := limit * 2
	if doubled > MaxLimit {
		if limit >= MaxLimit {
			return `run again with "-c last" to continue`
		}
		return `run again with "-n ` + strconv.Itoa(MaxLimit) + `" or "-c last" to continue`
	}
	return `run again with "-n ` + strconv.Itoa(doubled) + `" or "-c last" to continue`
}
