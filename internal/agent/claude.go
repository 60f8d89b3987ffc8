package agent

import (
	"context"
)

// claudeRateLimitPatterns are the stderr fragments the Claude CLI emits when
// the provider is throttling. Ordered most-specific first; matched
// case-insensitively by the detector.
var claudeRateLimitPatterns = []string{
	"rate_limit_error",
	"usage limit reached",
	"rate limit",
	"too many requests",
	"overloaded_error",
	"429",
}

// ClaudeAdapter runs the Claude Code CLI in non-interactive print mode.
type ClaudeAdapter struct {
	id       string
	command  string
	args     []string
	model    string
	patterns []string
	procMgr  *ProcessManager
}

// NewClaudeAdapter creates a new Claude Code agent adapter.
// The ProcessManager is optional - if nil, subprocesses won't be tracked.
func NewClaudeAdapter(cfg Config, procMgr *ProcessManager) *ClaudeAdapter {
	command := cfg.Command
	if command == "" {
		command = "claude"
	}
	id := cfg.ID
	if id == "" {
		id = "claude"
	}

	return &ClaudeAdapter{
		id:       id,
		command:  command,
		args:     append([]string(nil), cfg.Args...),
		model:    cfg.Model,
		patterns: append(append([]string(nil), claudeRateLimitPatterns...), cfg.RateLimitPatterns...),
		procMgr:  procMgr,
	}
}

// ID returns the agent's registry key.
func (a *ClaudeAdapter) ID() string {
	return a.id
}

// Detect reports whether the claude CLI is installed and responsive.
func (a *ClaudeAdapter) Detect(ctx context.Context) DetectResult {
	return detectCLI(ctx, a.command)
}

// Execute runs `claude -p <prompt>` in the configured working directory and
// returns a streaming handle.
func (a *ClaudeAdapter) Execute(ctx context.Context, prompt string, opts Options) (Handle, error) {
	args := append([]string(nil), a.args...)
	args = append(args, "-p", prompt)

	model := opts.Model
	if model == "" {
		model = a.model
	}
	if model != "" {
		args = append(args, "--model", model)
	}

	return executeStreaming(ctx, a.procMgr, opts.Timeout, opts.WorkDir, a.command, args...)
}

// RateLimitPatterns returns the ordered rate-limit recognition patterns.
func (a *ClaudeAdapter) RateLimitPatterns() []string {
	return a.patterns
}
