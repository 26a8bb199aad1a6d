// Package textdiff renders classic unified patches (---/+++ headers, @@
// hunks) via github.com/pmezard/go-difflib. The sync engine attaches these
// to results so reviewers can see exactly how a cached contract changed.
package textdiff

import (
	"strings"

	difflib "github.com/pmezard/go-difflib/difflib"
)

// Unified produces a unified patch for a -> b with the given display names.
// Identical inputs yield an empty string.
func Unified(aName, bName string, a, b []byte) string {
	if string(a) == string(b) {
		return ""
	}
	u := difflib.UnifiedDiff{
		A:        splitLinesKeepNL(string(a)),
		B:        splitLinesKeepNL(string(b)),
		FromFile: aName,
		ToFile:   bName,
		Context:  3,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return ""
	}
	return s
}

// splitLinesKeepNL splits into lines keeping the trailing newline on each
// element; difflib produces cleaner hunks that way.
func splitLinesKeepNL(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.SplitAfter(s, "\n")
}
