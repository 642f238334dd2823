package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kouak/tracecli/internal/model"
)

func si(id, project string) SortedIssue {
	return SortedIssue{Issue: model.Issue{ID: id}, ProjectKey: project}
}

func TestTrim_FairnessOneIssuePerProject(t *testing.T) {
	// Three projects in sorted (global rank) order: project "a" contributes
	// 5 issues that dominate the global top ranks, "b" and "c" one each.
	sorted := []SortedIssue{
		si("a1", "a"), si("a2", "a"), si("a3", "a"), si("a4", "a"), si("a5", "a"),
		si("b1", "b"),
		si("c1", "c"),
	}
	out := Trim(sorted, 3)
	assert.Len(t, out, 3)

	projects := map[string]bool{}
	for _, s := range out {
		projects[s.ProjectKey] = true
	}
	assert.Len(t, projects, 3, "every project must get at least one guaranteed slot")
}

func TestTrim_PreservesSortedOrder(t *testing.T) {
	// "3" (project a, already represented by "1") is skipped by the
	// guarantee pass in favor of reaching "4" (project c) so every
	// distinct project is represented within the limit; the result is
	// re-emitted in original sorted order.
	sorted := []SortedIssue{si("1", "a"), si("2", "b"), si("3", "a"), si("4", "c")}
	out := Trim(sorted, 3)
	assert.Equal(t, []string{"1", "2", "4"}, ids(out))
}

func TestTrim_NoTrimWhenUnderLimit(t *testing.T) {
	sorted := []SortedIssue{si("1", "a"), si("2", "b")}
	out := Trim(sorted, 10)
	assert.Equal(t, sorted, out)
}

func TestTrim_ZeroLimit(t *testing.T) {
	sorted := []SortedIssue{si("1", "a")}
	assert.Nil(t, Trim(sorted, 0))
}
