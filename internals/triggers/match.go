package triggers

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// MatchEventType tests a dot-delimited event type against a trigger pattern
// using segment-aware glob semantics: `*` matches exactly one dot segment,
// `**` matches any number of segments (including zero). So
// "external.webhook.*" matches "external.webhook.stripe" but not
// "external.webhook.stripe.charge"; "external.**" matches both.
//
// Implemented by mapping the dot hierarchy onto path segments, where the glob
// library already enforces that `*` never crosses a separator.
func MatchEventType(pattern, eventType string) bool {
	if pattern == "" || eventType == "" {
		return false
	}
	p := strings.ReplaceAll(pattern, ".", "/")
	e := strings.ReplaceAll(eventType, ".", "/")
	ok, err := doublestar.Match(p, e)
	return err == nil && ok
}

// ValidPattern reports whether the pattern is well-formed glob syntax.
func ValidPattern(pattern string) bool {
	if pattern == "" {
		return false
	}
	return doublestar.ValidatePattern(strings.ReplaceAll(pattern, ".", "/"))
}
