package telemetry

import (
	"strings"
)

// ContextDelimiter separates the segments of a context key.
const ContextDelimiter = ":"

// ScoreKeySeparator separates context and tool in a cumulative score key.
const ScoreKeySeparator = "::"

// ContextKey builds a normalized context key from 2-3 segments, e.g.
// ContextKey("Search", "File") -> "search:file". Empty segments are dropped.
func ContextKey(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ContextDelimiter)
}

// contextPrefix returns the first segment of a context key. Keys sharing a
// prefix are related for borrowing purposes.
func contextPrefix(key string) string {
	if i := strings.Index(key, ContextDelimiter); i >= 0 {
		return key[:i]
	}
	return key
}

// relatedContexts reports whether two distinct context keys share a prefix.
func relatedContexts(a, b string) bool {
	return a != b && contextPrefix(a) == contextPrefix(b)
}

// ScoreKey identifies a cumulative GRPO score: one tool's running score
// within one context. The canonical string encoding is "context::tool";
// the struct form exists so lookups and pruning compare fields instead of
// re-splitting strings.
type ScoreKey struct {
	Context string
	Tool    string
}

// String returns the canonical storage encoding.
func (k ScoreKey) String() string {
	return k.Context + ScoreKeySeparator + k.Tool
}

// ParseScoreKey decodes a canonical "context::tool" encoding. The second
// return value is false when the encoding has no separator.
func ParseScoreKey(s string) (ScoreKey, bool) {
	i := strings.LastIndex(s, ScoreKeySeparator)
	if i < 0 {
		return ScoreKey{}, false
	}
	return ScoreKey{Context: s[:i], Tool: s[i+len(ScoreKeySeparator):]}, true
}
