package gateway

import "strings"

// matchGlobPattern matches a value against a glob pattern with ** support.
// Used for the argument half of permission rules ("Write:secrets/**").
func matchGlobPattern(value, pattern string) bool {
	valueParts := strings.Split(value, "/")
	patternParts := strings.Split(pattern, "/")
	return matchParts(valueParts, patternParts)
}

// matchParts recursively matches value segments against pattern segments.
func matchParts(value, pattern []string) bool {
	if len(pattern) == 0 {
		return len(value) == 0
	}

	p := pattern[0]
	rest := pattern[1:]

	switch p {
	case "**":
		if len(rest) == 0 {
			return true
		}
		for i := 0; i <= len(value); i++ {
			if matchParts(value[i:], rest) {
				return true
			}
		}
		return false

	default:
		if len(value) == 0 {
			return false
		}
		if !matchSegment(value[0], p) {
			return false
		}
		return matchParts(value[1:], rest)
	}
}

// matchSegment matches a single segment against a pattern segment.
func matchSegment(segment, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if pattern == segment {
		return true
	}
	if strings.Contains(pattern, "*") {
		return matchWildcard(segment, pattern)
	}
	return false
}

// matchWildcard matches a segment against a pattern containing * wildcards.
func matchWildcard(s, pattern string) bool {
	parts := strings.Split(pattern, "*")
	pos := 0

	for i, part := range parts {
		if part == "" {
			continue
		}

		if i == 0 {
			if !strings.HasPrefix(s, part) {
				return false
			}
			pos = len(part)
			continue
		}

		if i == len(parts)-1 && !strings.HasSuffix(pattern, "*") {
			if !strings.HasSuffix(s, part) {
				return false
			}
			continue
		}

		idx := strings.Index(s[pos:], part)
		if idx == -1 {
			return false
		}
		pos += idx + len(part)
	}

	return true
}
