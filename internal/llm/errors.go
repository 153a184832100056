package llm

import "strings"

// contextOverflowMarkers are substrings seen in provider error text when
// a request exceeded the model's context window. Matching is
// best-effort: providers don't expose a typed error for this, so we
// keyword-scan like the teacher does for its own transport errors.
var contextOverflowMarkers = []string{
	"context_length_exceeded",
	"maximum context length",
	"context window",
	"token limit",
	"too many tokens",
	"reduce the length of the messages",
}

// IsContextOverflow reports whether err's text looks like a
// context-window overflow rather than a generic transport failure, so
// internal/agent can route it to truncation recovery instead of a plain
// retry.
func IsContextOverflow(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range contextOverflowMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
