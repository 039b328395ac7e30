package authz

import (
	"sort"
	"strings"
)

// sortKey computes the specificity key for an ACL pattern: the pattern
// with a terminal multi-level wildcard's characters stripped, trailing
// slash kept. "/a/b/**" and "/a/b/+**" both reduce to "/a/b/"; any other
// pattern is its own key. Rules are ranked by key length, so the two
// wildcard forms are equally specific for ordering even though they
// match differently.
func sortKey(pattern string) string {
	if strings.HasSuffix(pattern, "/"+strictSuffixWildcard) {
		return pattern[:len(pattern)-len(strictSuffixWildcard)]
	}
	if strings.HasSuffix(pattern, "/"+suffixWildcard) {
		return pattern[:len(pattern)-len(suffixWildcard)]
	}
	return pattern
}

// SortBySpecificity orders entries most specific first: descending
// length of the stripped sort key, longest-matching-prefix style. The
// sort is stable, so entries of equal specificity keep their insertion
// order; there is no further tie-break.
func SortBySpecificity(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return len(sortKey(entries[i].Path)) > len(sortKey(entries[j].Path))
	})
}

// MergeACL flattens per-role entry lists into a single resolved ACL,
// ordered by specificity. Duplicate entries contributed by different
// roles are kept; only the first structural match is ever consulted, so
// duplicates are harmless.
func MergeACL(perRole [][]Entry) []Entry {
	n := 0
	for _, entries := range perRole {
		n += len(entries)
	}
	merged := make([]Entry, 0, n)
	for _, entries := range perRole {
		merged = append(merged, entries...)
	}
	SortBySpecificity(merged)
	return merged
}

// Evaluate walks a resolved ACL in order and decides the requested
// action. The first structurally matching entry is final: if it does not
// grant the action the decision is deny, with no fallback to a less
// specific entry that might have granted it. No match at all is an
// implicit deny.
func Evaluate(resolved []Entry, resource string, action Action) Decision {
	for _, entry := range resolved {
		if MatchPath(entry.Path, resource) {
			return Decision{Allowed: entry.Allows(action)}
		}
	}
	return Decision{}
}
