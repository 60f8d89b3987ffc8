package agent

import (
	"context"
)

// gooseRateLimitPatterns cover both hosted providers and local LLM servers
// that Goose can sit in front of.
var gooseRateLimitPatterns = []string{
	"rate limit exceeded",
	"rate limit",
	"too many requests",
	"server busy",
	"429",
}

// GooseAdapter runs the Goose CLI in headless run mode.
type GooseAdapter struct {
	id       string
	command  string
	args     []string
	model    string
	patterns []string
	procMgr  *ProcessManager
}

// NewGooseAdapter creates a new Goose agent adapter.
func NewGooseAdapter(cfg Config, procMgr *ProcessManager) *GooseAdapter {
	command := cfg.Command
	if command == "" {
		command = "goose"
	}
	id := cfg.ID
	if id == "" {
		id = "goose"
	}

	return &GooseAdapter{
		id:       id,
		command:  command,
		args:     append([]string(nil), cfg.Args...),
		model:    cfg.Model,
		patterns: append(append([]string(nil), gooseRateLimitPatterns...), cfg.RateLimitPatterns...),
		procMgr:  procMgr,
	}
}

// ID returns the agent's registry key.
func (a *GooseAdapter) ID() string {
	return a.id
}

// Detect reports whether the goose CLI is installed and responsive.
func (a *GooseAdapter) Detect(ctx context.Context) DetectResult {
	return detectCLI(ctx, a.command)
}

// Execute runs `goose run -t <prompt>` and returns a streaming handle.
func (a *GooseAdapter) Execute(ctx context.Context, prompt string, opts Options) (Handle, error) {
	args := append([]string(nil), a.args...)
	args = append(args, "run", "-t", prompt)

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
func (a *GooseAdapter) RateLimitPatterns() []string {
	return a.patterns
}
