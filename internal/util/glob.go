package util

import (
	"path/filepath"
	"strings"
)

// MatchPattern matches a key against a glob-style pattern ("users:*",
// "session:*:live", "?"). Common single-wildcard shapes take the fast path;
// everything else falls back to filepath.Match semantics.
func MatchPattern(key, pattern string) bool {
	if pattern == "" {
		return key == ""
	}
	if pattern == "*" {
		return true
	}
	if !strings.ContainsAny(pattern, "*?[") {
		return key == pattern
	}

	// Single '*' with no other metacharacters: prefix/suffix/infix match.
	if star := strings.IndexByte(pattern, '*'); star >= 0 &&
		strings.LastIndexByte(pattern, '*') == star &&
		!strings.ContainsAny(pattern, "?[") {
		prefix, suffix := pattern[:star], pattern[star+1:]
		return len(key) >= len(prefix)+len(suffix) &&
			strings.HasPrefix(key, prefix) &&
			strings.HasSuffix(key, suffix)
	}

	ok, err := filepath.Match(pattern, key)
	if err != nil {
		return false
	}
	return ok
}

// ValidPattern reports whether pattern is syntactically usable.
func ValidPattern(pattern string) bool {
	_, err := filepath.Match(pattern, "")
	return err == nil
}
