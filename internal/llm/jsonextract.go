package llm

import (
	"encoding/json"
	"strings"
)

// ExtractJSONArray finds the first well-formed JSON array in text and returns
// it. Providers are not guaranteed to return only JSON: replies arrive inside
// markdown fences, with preambles, or with trailing commentary. Returns false
// when no parseable array exists.
func ExtractJSONArray(text string) (json.RawMessage, bool) {
	for start := strings.IndexByte(text, '['); start >= 0; {
		candidate := balancedFrom(text[start:], '[', ']')
		if candidate != "" && json.Valid([]byte(candidate)) {
			return json.RawMessage(candidate), true
		}
		next := strings.IndexByte(text[start+1:], '[')
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return nil, false
}

// balancedFrom returns the prefix of s spanning from its first rune to the
// matching close delimiter, honoring JSON string literals and escapes.
// Empty when unbalanced.
func balancedFrom(s string, open, close byte) string {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
