package role

import (
	"strings"

	"github.com/bmatcuk/doublestar"
)

// MatchGlob reports whether a key path matches a forbidden-key pattern.
// Path segments are matched like directories: '*' stays within one
// segment and a "**" segment spans any depth. Patterns without
// wildcards require an exact match; malformed patterns match nothing.
func MatchGlob(pattern, path string) bool {
	if !strings.ContainsAny(pattern, "*?[{") {
		return pattern == path
	}
	ok, err := doublestar.Match(segments(pattern), segments(path))
	return err == nil && ok
}

func segments(p string) string { return strings.ReplaceAll(p, ".", "/") }
