// Package cursor implements the context-key fingerprint and compound-cursor
// codec (§4.6) plus their persistence through the key-value store.
package cursor

import (
	"context"
	"sort"
	"strings"
)

// EscapeSegment makes a string safe to embed in a pipe-delimited context
// key: backslashes are doubled and pipes are escaped. Only encoding is
// required — the context key is a write-once fingerprint, never decoded.
func EscapeSegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '|':
			b.WriteString(`\|`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// sortedTargetFingerprint renders "org1/proj1,org2/proj2,..." with the
// pairs sorted lexicographically, independent of discovery order.
func sortedTargetFingerprint(pairs []string) string {
	sorted := append([]string(nil), pairs...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// BuildMultiTargetContextKey builds the context key for a multi-target list
// invocation. pairs are "org/project" strings; permuting their order does
// not change the result (they are sorted internally).
func BuildMultiTargetContextKey(hostBase string, pairs []string, sortKey, period, query string) string {
	var b strings.Builder
	b.WriteString("host:")
	b.WriteString(hostBase)
	b.WriteString(" | type:multi:")
	b.WriteString(sortedTargetFingerprint(pairs))
	b.WriteString(" | sort:")
	b.WriteString(sortKey)
	b.WriteString(" | period:")
	b.WriteString(EscapeSegment(period))
	if query != "" {
		b.WriteString(" | q:")
		b.WriteString(EscapeSegment(query))
	}
	return b.String()
}

// BuildOrgAllContextKey builds the context key for the org-all variant.
func BuildOrgAllContextKey(hostBase, org, sortKey, period, query string) string {
	var b strings.Builder
	b.WriteString("host:")
	b.WriteString(hostBase)
	b.WriteString(" | type:org:")
	b.WriteString(org)
	b.WriteString(" | sort:")
	b.WriteString(sortKey)
	b.WriteString(" | period:")
	b.WriteString(EscapeSegment(period))
	if query != "" {
		b.WriteString(" | q:")
		b.WriteString(EscapeSegment(query))
	}
	return b.String()
}

// Store is the subset of the key-value store the codec persists through.
// Implemented by internal/store.Store.
type Store interface {
	GetPaginationCursor(ctx context.Context, commandKey, contextKey string) (string, bool, error)
	SetPaginationCursor(ctx context.Context, commandKey, contextKey, cursor string) error
	DeletePaginationCursor(ctx context.Context, commandKey, contextKey string) error
}

// Load fetches the stored compound cursor for (commandKey, contextKey).
// Invariant 1: a cursor is only returned when the caller's computed context
// key matches exactly what was stored it under — callers must pass the
// freshly computed contextKey, never a cached one.
func Load(ctx context.Context, s Store, commandKey, contextKey string) ([]string, bool, error) {
	raw, ok, err := s.GetPaginationCursor(ctx, commandKey, contextKey)
	if err != nil || !ok {
		return nil, false, err
	}
	return Decode(raw), true, nil
}

// Persist upserts or deletes the compound cursor for (commandKey,
// contextKey) depending on whether any segment is non-empty ("next_page
// exists iff any cursor segment is non-empty").
func Persist(ctx context.Context, s Store, commandKey, contextKey string, cursors []string) error {
	if !hasNextPage(cursors) {
		return s.DeletePaginationCursor(ctx, commandKey, contextKey)
	}
	return s.SetPaginationCursor(ctx, commandKey, contextKey, Encode(cursors))
}

func hasNextPage(cursors []string) bool {
	for _, c := range cursors {
		if c != "" {
			return true
		}
	}
	return false
}
