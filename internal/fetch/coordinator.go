// Package fetch implements the two-phase budgeted parallel fetch
// coordinator (C5): per-target quota fan-out, redistribution of leftover
// budget across expandable targets, and merge/sort/trim-with-fairness of
// the flattened result.
package fetch

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/kouak/tracecli/internal/model"
)

// Params are the query parameters shared across every target in one
// invocation.
type Params struct {
	Query  string
	Sort   string // one of "date"(last_seen), "new"(first_seen), "freq"(count), "user"(user_count)
	Period string
}

// PageFetcher fetches one page of issues for a target, honoring cursor and
// the hint that no more than count issues are needed from this call.
type PageFetcher interface {
	FetchPage(ctx context.Context, target model.Target, params Params, cursor string, count int) (model.IssuesPage, error)
}

// StartCursors carries the resume state for a "--cursor last" invocation.
// When Resuming is false, every target starts fresh regardless of what a
// previous run left behind — dropping -c last intentionally does not
// honor a stored "exhausted" marker (§9 open question, preserved).
type StartCursors struct {
	Resuming bool
	Cursors  map[string]string // target.Key() -> cursor; "" means exhausted
}

// ProgressFunc is invoked after each phase with the cumulative issue count
// fetched so far.
type ProgressFunc func(fetchedSoFar int)

// Coordinator runs the budgeted multi-target fetch (C5).
type Coordinator struct {
	Fetcher PageFetcher
}

// New constructs a Coordinator.
func New(fetcher PageFetcher) *Coordinator {
	return &Coordinator{Fetcher: fetcher}
}

// Fetch runs phase 1 (per-target quota) and, if the global limit wasn't
// met, phase 2 (redistribution across expandable targets) exactly once.
// Cancelling ctx cancels in-flight requests best-effort; partial results
// are not returned from a cancelled run.
func (c *Coordinator) Fetch(ctx context.Context, targets []model.Target, limit int, params Params, start StartCursors, progress ProgressFunc) ([]model.FetchResult, error) {
	if len(targets) == 0 {
		return nil, nil
	}

	quota := perTargetQuota(limit, len(targets))
	results, err := c.fetchPhase(ctx, targets, params, start, quota)
	if err != nil {
		return nil, err
	}

	if progress != nil {
		progress(sumFetched(results))
	}

	fetched := sumFetched(results)
	if fetched < limit {
		if err := c.redistribute(ctx, results, params, quota, limit-fetched); err != nil {
			return nil, err
		}
		if progress != nil {
			progress(sumFetched(results))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if allFailed(results) {
		causes := make([]error, 0, len(results))
		for _, r := range results {
			causes = append(causes, r.Err)
		}
		return nil, model.NewCompositeFetchError(causes)
	}

	return results, nil
}

// perTargetQuota implements q = max(1, ceil(L / |T|)).
func perTargetQuota(limit, numTargets int) int {
	if numTargets == 0 {
		return 0
	}
	q := int(math.Ceil(float64(limit) / float64(numTargets)))
	if q < 1 {
		q = 1
	}
	return q
}

// fetchPhase runs phase 1: one auto-paginated fetch per target, capped at
// quota, spawned concurrently via errgroup. Only an AuthError propagates
// out of a task; every other failure becomes a Failure FetchResult so a
// single target's trouble doesn't fail the whole coordinator.
func (c *Coordinator) fetchPhase(ctx context.Context, targets []model.Target, params Params, start StartCursors, quota int) ([]model.FetchResult, error) {
	results := make([]model.FetchResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)

	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			startCursor, skip := resolvedStartCursor(start, t)
			if skip {
				results[i] = model.FetchResult{Target: t}
				return nil
			}
			issues, next, err := fetchUpTo(gctx, c.Fetcher, t, params, startCursor, quota)
			if authErr, ok := err.(*model.AuthError); ok {
				return authErr
			}
			results[i] = model.FetchResult{Target: t, Issues: issues, NextCursor: next, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// resolvedStartCursor determines the cursor a target's phase-1 fetch
// should resume from, and whether it should be skipped entirely because
// the prior invocation marked it exhausted.
func resolvedStartCursor(start StartCursors, t model.Target) (cursor string, skip bool) {
	if !start.Resuming {
		return "", false
	}
	c, ok := start.Cursors[t.Key()]
	if !ok {
		return "", false // target is new since the last invocation
	}
	if c == "" {
		return "", true // previously exhausted; don't restart from scratch
	}
	return c, false
}

// redistribute implements phase 2: targets that returned exactly quota
// issues and still have a next_cursor are "expandable"; each gets one more
// page, sized to split the remaining budget evenly, spliced onto its
// phase-1 result.
func (c *Coordinator) redistribute(ctx context.Context, results []model.FetchResult, params Params, quota, remaining int) error {
	var expandableIdx []int
	for i, r := range results {
		if r.Ok() && len(r.Issues) == quota && r.NextCursor != "" {
			expandableIdx = append(expandableIdx, i)
		}
	}
	if len(expandableIdx) == 0 {
		return nil
	}

	extra := int(math.Ceil(float64(remaining) / float64(len(expandableIdx))))
	if extra < 1 {
		extra = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, idx := range expandableIdx {
		idx := idx
		r := results[idx]
		g.Go(func() error {
			page, err := c.Fetcher.FetchPage(gctx, r.Target, params, r.NextCursor, extra)
			if authErr, ok := err.(*model.AuthError); ok {
				return authErr
			}
			if err != nil {
				return nil // phase 2 fetch trouble is not escalated; keep phase-1 data
			}
			issues := page.Issues
			if len(issues) > extra {
				issues = issues[:extra]
			}
			results[idx].Issues = append(results[idx].Issues, issues...)
			results[idx].NextCursor = page.NextCursor
			return nil
		})
	}
	return g.Wait()
}

// fetchUpTo auto-paginates a single target until cap issues are collected
// or pagination is exhausted.
func fetchUpTo(ctx context.Context, fetcher PageFetcher, t model.Target, params Params, startCursor string, cap int) ([]model.Issue, string, error) {
	var issues []model.Issue
	cursor := startCursor
	for len(issues) < cap {
		page, err := fetcher.FetchPage(ctx, t, params, cursor, cap-len(issues))
		if err != nil {
			return issues, cursor, err
		}
		issues = append(issues, page.Issues...)
		cursor = page.NextCursor
		if cursor == "" {
			break
		}
	}
	if len(issues) > cap {
		issues = issues[:cap]
	}
	return issues, cursor, nil
}

func sumFetched(results []model.FetchResult) int {
	n := 0
	for _, r := range results {
		if r.Ok() {
			n += len(r.Issues)
		}
	}
	return n
}

func allFailed(results []model.FetchResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r.Ok() {
			return false
		}
	}
	return true
}
