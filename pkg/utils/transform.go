package utils

import (
	"strings"
)

// Dedup removes duplicates from a list of endpoints, ignoring trailing slashes.
func Dedup(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, e := range in {
		e = strings.TrimRight(e, "/")
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// HasDuplicates reports whether any value occurs more than once.
func HasDuplicates(in []string) bool {
	seen := make(map[string]struct{}, len(in))
	for _, e := range in {
		if _, ok := seen[e]; ok {
			return true
		}
		seen[e] = struct{}{}
	}
	return false
}
