package agent

import (
	"context"
)

// codexRateLimitPatterns are the stderr fragments the Codex CLI emits under
// provider throttling.
var codexRateLimitPatterns = []string{
	"rate_limit_exceeded",
	"rate limit reached",
	"rate limit",
	"too many requests",
	"insufficient_quota",
	"429",
}

// CodexAdapter runs the Codex CLI in non-interactive exec mode.
type CodexAdapter struct {
	id       string
	command  string
	args     []string
	model    string
	patterns []string
	procMgr  *ProcessManager
}

// NewCodexAdapter creates a new Codex agent adapter.
func NewCodexAdapter(cfg Config, procMgr *ProcessManager) *CodexAdapter {
	command := cfg.Command
	if command == "" {
		command = "codex"
	}
	id := cfg.ID
	if id == "" {
		id = "codex"
	}

	return &CodexAdapter{
		id:       id,
		command:  command,
		args:     append([]string(nil), cfg.Args...),
		model:    cfg.Model,
		patterns: append(append([]string(nil), codexRateLimitPatterns...), cfg.RateLimitPatterns...),
		procMgr:  procMgr,
	}
}

// ID returns the agent's registry key.
func (a *CodexAdapter) ID() string {
	return a.id
}

// Detect reports whether the codex CLI is installed and responsive.
func (a *CodexAdapter) Detect(ctx context.Context) DetectResult {
	return detectCLI(ctx, a.command)
}

// Execute runs `codex exec <prompt>` and returns a streaming handle.
func (a *CodexAdapter) Execute(ctx context.Context, prompt string, opts Options) (Handle, error) {
	args := append([]string(nil), a.args...)
	args = append(args, "exec", prompt)

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
func (a *CodexAdapter) RateLimitPatterns() []string {
	return a.patterns
}
