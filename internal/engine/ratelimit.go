package engine

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Detection is the rate-limit classifier's verdict on one agent failure.
type Detection struct {
	IsRateLimit bool
	Message     string        // The matched output line, for operator context
	RetryAfter  time.Duration // Explicit wait parsed from the agent's output; zero if none
}

// Exit codes some CLIs map HTTP 429 onto. Checked only when the process also
// produced no contradicting signal.
var rateLimitExitCodes = map[int]bool{
	429: true,
}

// retryAfterPatterns extract an explicit wait from agent output, e.g.
// "retry after 30s", "Retry-After: 120", "try again in 2 minutes".
var retryAfterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)retry[- ]after[:\s]+(\d+)\s*(ms|milliseconds?|s|seconds?|m|minutes?|h|hours?)?`),
	regexp.MustCompile(`(?i)try again in\s+(\d+)\s*(ms|milliseconds?|s|seconds?|m|minutes?|h|hours?)?`),
	regexp.MustCompile(`(?i)resets? in\s+(\d+)\s*(ms|milliseconds?|s|seconds?|m|minutes?|h|hours?)?`),
}

// Classify inspects an agent's stderr output and exit code against the
// agent's ordered recognition patterns. Patterns match case-insensitively as
// substrings. An explicit retry-after value found in the output is parsed and
// returned so it can override computed backoff.
func Classify(patterns []string, stderr string, exitCode int) Detection {
	lower := strings.ToLower(stderr)

	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		idx := strings.Index(lower, p)
		if idx < 0 {
			continue
		}

		return Detection{
			IsRateLimit: true,
			Message:     matchedLine(stderr, idx),
			RetryAfter:  parseRetryAfter(stderr),
		}
	}

	if rateLimitExitCodes[exitCode] {
		return Detection{
			IsRateLimit: true,
			Message:     "exit code " + strconv.Itoa(exitCode),
			RetryAfter:  parseRetryAfter(stderr),
		}
	}

	return Detection{}
}

// matchedLine returns the full output line containing byte offset idx.
func matchedLine(s string, idx int) string {
	start := strings.LastIndexByte(s[:idx], '\n') + 1
	end := strings.IndexByte(s[idx:], '\n')
	if end < 0 {
		end = len(s)
	} else {
		end += idx
	}
	return strings.TrimSpace(s[start:end])
}

// parseRetryAfter scans output for an explicit wait duration. A bare number
// is treated as seconds, matching the HTTP Retry-After convention.
func parseRetryAfter(s string) time.Duration {
	for _, re := range retryAfterPatterns {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}

		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			continue
		}

		suffix := strings.ToLower(m[2])
		unit := time.Second
		switch {
		case strings.HasPrefix(suffix, "ms"), strings.HasPrefix(suffix, "milli"):
			unit = time.Millisecond
		case strings.HasPrefix(suffix, "m"):
			unit = time.Minute
		case strings.HasPrefix(suffix, "h"):
			unit = time.Hour
		}

		return time.Duration(n) * unit
	}
	return 0
}
