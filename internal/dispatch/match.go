package dispatch

import "strings"

// Matches reports whether a concrete topic matches a subscription
// pattern. Both are "/"-delimited token sequences. Patterns may use
// MQTT-style wildcards:
//
//   - "+" matches exactly one topic token at its position
//   - "#" matches the remaining topic suffix of any length, including
//     zero tokens, and is only valid as the final pattern token
//
// Matches is pure and never errors. A malformed pattern (e.g. "#" in a
// non-final position) simply fails to match anything beyond literal
// equality.
func Matches(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patternTokens := strings.Split(pattern, "/")
	topicTokens := strings.Split(topic, "/")

	for i, pt := range patternTokens {
		if pt == "#" {
			// Multi-level wildcard only matches as the final token.
			return i == len(patternTokens)-1
		}
		if i >= len(topicTokens) {
			return false
		}
		if pt == "+" {
			continue
		}
		if pt != topicTokens[i] {
			return false
		}
	}

	return len(patternTokens) == len(topicTokens)
}
