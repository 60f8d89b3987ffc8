package agent

import (
	"context"
	"fmt"
	"strings"
)

// genericRateLimitPatterns are the fallback recognition patterns for agents
// declared in the catalog without their own list.
var genericRateLimitPatterns = []string{
	"rate limit",
	"too many requests",
	"429",
}

// promptPlaceholder is replaced with the rendered prompt in a generic agent's
// argument list. If absent, the prompt is appended as the final argument.
const promptPlaceholder = "{prompt}"

// GenericAdapter executes a catalog-defined CLI agent.
type GenericAdapter struct {
	id       string
	command  string
	args     []string
	model    string
	patterns []string
	procMgr  *ProcessManager
}

// NewGenericAdapter creates an adapter for a user-defined agent definition.
func NewGenericAdapter(cfg Config, procMgr *ProcessManager) (*GenericAdapter, error) {
	if strings.TrimSpace(cfg.ID) == "" {
		return nil, fmt.Errorf("generic agent requires an id")
	}
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("generic agent %q requires a command", cfg.ID)
	}

	patterns := cfg.RateLimitPatterns
	if len(patterns) == 0 {
		patterns = genericRateLimitPatterns
	}

	return &GenericAdapter{
		id:       cfg.ID,
		command:  cfg.Command,
		args:     append([]string(nil), cfg.Args...),
		model:    cfg.Model,
		patterns: append([]string(nil), patterns...),
		procMgr:  procMgr,
	}, nil
}

// ID returns the agent's registry key.
func (a *GenericAdapter) ID() string {
	return a.id
}

// Detect reports whether the configured binary is installed and responsive.
func (a *GenericAdapter) Detect(ctx context.Context) DetectResult {
	return detectCLI(ctx, a.command)
}

// Execute substitutes the prompt into the configured argument list and runs
// the binary.
func (a *GenericAdapter) Execute(ctx context.Context, prompt string, opts Options) (Handle, error) {
	args := make([]string, 0, len(a.args)+1)
	substituted := false
	for _, arg := range a.args {
		if strings.Contains(arg, promptPlaceholder) {
			arg = strings.ReplaceAll(arg, promptPlaceholder, prompt)
			substituted = true
		}
		args = append(args, arg)
	}
	if !substituted {
		args = append(args, prompt)
	}

	return executeStreaming(ctx, a.procMgr, opts.Timeout, opts.WorkDir, a.command, args...)
}

// RateLimitPatterns returns the ordered rate-limit recognition patterns.
func (a *GenericAdapter) RateLimitPatterns() []string {
	return a.patterns
}
