package cursor

import "strings"

// Encode joins per-target cursor strings into the compound form stored
// against a context key: "c1|c2|...|cN". An individual empty segment means
// that target's pagination is exhausted; the segment still takes its slot
// so position stays aligned with the sorted target list.
func Encode(cursors []string) string {
	return strings.Join(cursors, "|")
}

// Decode splits a stored compound cursor back into its per-target segments.
// A legacy value from the prior JSON-array format (recognizable by a
// leading '[') no longer parses and is treated as fully exhausted, per the
// documented backward-compatibility behavior: decoding it yields no
// segments rather than an error.
func Decode(s string) []string {
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		return nil
	}
	return strings.Split(s, "|")
}
