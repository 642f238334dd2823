package fetch

// Trim applies trim-with-fairness (§4.5) to an already-sorted listing:
// every project represented in sorted gets at least one "guaranteed" slot
// before remaining slots fill from the top, and the result is re-emitted
// in the original sorted order.
func Trim(sorted []SortedIssue, limit int) []SortedIssue {
	if limit <= 0 || len(sorted) == 0 {
		return nil
	}
	if len(sorted) <= limit {
		return sorted
	}

	selected := make([]bool, len(sorted))
	taken := 0

	// Step 1: one guaranteed slot per not-yet-represented project.
	seenProject := map[string]bool{}
	for i, s := range sorted {
		if taken >= limit {
			break
		}
		if seenProject[s.ProjectKey] {
			continue
		}
		seenProject[s.ProjectKey] = true
		selected[i] = true
		taken++
	}

	// Step 2: fill remaining slots from the top of the sorted list.
	for i := range sorted {
		if taken >= limit {
			break
		}
		if selected[i] {
			continue
		}
		selected[i] = true
		taken++
	}

	// Step 3: emit in original sorted order.
	out := make([]SortedIssue, 0, limit)
	for i, s := range sorted {
		if selected[i] {
			out = append(out, s)
		}
	}
	return out
}
