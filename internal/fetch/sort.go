package fetch

import (
	"sort"
	"time"

	"github.com/kouak/tracecli/internal/model"
)

// rankedIssue pairs a flattened issue with its discovery position so ties
// in the sort key break by (target index, within-target index) instead of
// an unstable sort.
type rankedIssue struct {
	issue      model.Issue
	projectKey string
	targetIdx  int
	withinIdx  int
}

// SortedIssue is one row of a merged, sorted listing, carrying the
// (org, project) identity of the target it came from so trim-with-fairness
// can group by project even when two orgs share a project slug.
type SortedIssue struct {
	Issue      model.Issue
	ProjectKey string
}

// Merge flattens results in target order, drops duplicate issues sharing
// an id (invariant 6 — the same project can surface under more than one
// detected target), and sorts by key, descending, breaking ties by
// discovery order (§4.5 "Merged ordering").
func Merge(results []model.FetchResult, key string) []SortedIssue {
	var ranked []rankedIssue
	seenID := map[string]bool{}
	for ti, r := range results {
		if !r.Ok() {
			continue
		}
		for wi, issue := range r.Issues {
			if issue.ID != "" {
				if seenID[issue.ID] {
					continue
				}
				seenID[issue.ID] = true
			}
			ranked = append(ranked, rankedIssue{issue: issue, projectKey: r.Target.Key(), targetIdx: ti, withinIdx: wi})
		}
	}

	less := lessFuncFor(key)
	sort.SliceStable(ranked, func(i, j int) bool {
		if cmp := less(ranked[i].issue, ranked[j].issue); cmp != 0 {
			return cmp > 0
		}
		if ranked[i].targetIdx != ranked[j].targetIdx {
			return ranked[i].targetIdx < ranked[j].targetIdx
		}
		return ranked[i].withinIdx < ranked[j].withinIdx
	})

	out := make([]SortedIssue, len(ranked))
	for i, r := range ranked {
		out[i] = SortedIssue{Issue: r.issue, ProjectKey: r.projectKey}
	}
	return out
}

// lessFuncFor returns a three-way comparator (positive when a ranks above
// b) for the given sort key. Missing date fields sort as the epoch;
// missing counts sort as zero.
func lessFuncFor(key string) func(a, b model.Issue) int {
	switch key {
	case "new":
		return func(a, b model.Issue) int { return compareTime(a.FirstSeen, b.FirstSeen) }
	case "freq":
		return func(a, b model.Issue) int { return compareCount(a.Count, b.Count) }
	case "user":
		return func(a, b model.Issue) int { return a.UserCount - b.UserCount }
	default: // "date"
		return func(a, b model.Issue) int { return compareTime(a.LastSeen, b.LastSeen) }
	}
}

func compareTime(a, b *time.Time) int {
	av, bv := epochOr(a), epochOr(b)
	switch {
	case av.After(bv):
		return 1
	case av.Before(bv):
		return -1
	default:
		return 0
	}
}

func epochOr(t *time.Time) time.Time {
	if t == nil {
		return time.Unix(0, 0).UTC()
	}
	return *t
}

// compareCount compares the opaque issue "count" strings numerically,
// treating an unparsable or missing value as zero.
func compareCount(a, b string) int {
	av, bv := parseCount(a), parseCount(b)
	switch {
	case av > bv:
		return 1
	case av < bv:
		return -1
	default:
		return 0
	}
}

func parseCount(s string) int64 {
	var n int64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int64(c-'0')
	}
	return n
}
