package authz

import (
	"fmt"
	"strings"
)

// Wildcard markers recognized in ACL path patterns.
const (
	// segmentWildcard matches exactly one arbitrary, non-empty segment.
	segmentWildcard = "*"
	// suffixWildcard, as the terminal segment, matches zero or more
	// remaining segments: the pattern's prefix path itself also matches.
	suffixWildcard = "**"
	// strictSuffixWildcard, as the terminal segment, matches one or more
	// remaining segments: only proper descendants of the prefix match.
	strictSuffixWildcard = "+**"
)

// MatchPath reports whether an ACL path pattern structurally matches a
// concrete resource path. Both are slash-separated and must begin with a
// slash. Matching proceeds segment by segment, left to right, with no
// backtracking: wildcards are either single-segment or terminal. A
// malformed pattern (multi-level wildcard before the final segment) is
// treated as "does not match" rather than an error, since persisted ACL
// data has no validation phase.
func MatchPath(pattern, resource string) bool {
	if !strings.HasPrefix(pattern, "/") || !strings.HasPrefix(resource, "/") {
		return false
	}

	pat := splitPath(pattern)
	res := splitPath(resource)

	for i, seg := range pat {
		terminal := i == len(pat)-1
		switch seg {
		case suffixWildcard:
			if !terminal {
				return false
			}
			return len(res) >= i
		case strictSuffixWildcard:
			if !terminal {
				return false
			}
			return len(res) > i
		case segmentWildcard:
			if i >= len(res) || res[i] == "" {
				return false
			}
		default:
			if i >= len(res) || res[i] != seg {
				return false
			}
		}
	}

	// No terminal multi-level wildcard: segment counts must agree
	// exactly, so "/organization/45678" never matches
	// "/organization/45678/site/9".
	return len(res) == len(pat)
}

// ValidatePattern rejects patterns the matcher would never match:
// missing leading slash, empty segments, or a multi-level wildcard in a
// non-terminal position. Used at the admin write path so unmatched
// garbage never reaches the ACL tables.
func ValidatePattern(pattern string) error {
	if !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("pattern must begin with '/': %q", pattern)
	}
	segments := splitPath(pattern)
	for i, seg := range segments {
		terminal := i == len(segments)-1
		switch {
		case seg == "":
			return fmt.Errorf("pattern has an empty segment: %q", pattern)
		case (seg == suffixWildcard || seg == strictSuffixWildcard) && !terminal:
			return fmt.Errorf("multi-level wildcard must be the final segment: %q", pattern)
		}
	}
	return nil
}

// splitPath splits a leading-slash path into segments. The root path "/"
// has zero segments.
func splitPath(p string) []string {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
