package engine

import (
	"strings"
)

// DefaultCompletionToken is the sentinel an agent prints to signal it finished
// the task. The prompt builder instructs the agent to emit it verbatim.
const DefaultCompletionToken = "AUTOPILOT_TASK_COMPLETE"

// CompletionScanner watches a chunked output stream for the sentinel token.
// It keeps a small tail buffer so a token split across two chunks still
// matches.
type CompletionScanner struct {
	token string
	tail  string
	found bool
}

// NewCompletionScanner creates a scanner for the given sentinel token.
// An empty token falls back to DefaultCompletionToken.
func NewCompletionScanner(token string) *CompletionScanner {
	if token == "" {
		token = DefaultCompletionToken
	}
	return &CompletionScanner{token: token}
}

// Feed consumes one output chunk and reports whether the sentinel has been
// seen so far.
func (s *CompletionScanner) Feed(chunk string) bool {
	if s.found {
		return true
	}

	window := s.tail + chunk
	if strings.Contains(window, s.token) {
		s.found = true
		return true
	}

	// Keep len(token)-1 trailing bytes for cross-chunk matches
	keep := len(s.token) - 1
	if keep > len(window) {
		keep = len(window)
	}
	s.tail = window[len(window)-keep:]

	return false
}

// Found reports whether the sentinel has been seen.
func (s *CompletionScanner) Found() bool {
	return s.found
}
