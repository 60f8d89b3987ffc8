package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Agent defines the interface that all agent adapters must implement.
type Agent interface {
	// ID returns the agent's registry key (e.g., "claude", "codex").
	ID() string

	// Detect reports whether the agent CLI is installed and responsive.
	Detect(ctx context.Context) DetectResult

	// Execute starts the agent with the given prompt and returns a streaming
	// handle. The process runs until completion, interruption, or context
	// cancellation.
	Execute(ctx context.Context, prompt string, opts Options) (Handle, error)

	// RateLimitPatterns returns the ordered list of stderr patterns that
	// identify this agent's rate-limit responses. Matched case-insensitively.
	RateLimitPatterns() []string
}

// Config defines the configuration for an agent adapter.
type Config struct {
	ID                string
	Type              string // "claude", "codex", "goose", or "generic"
	Command           string // CLI binary name (defaults to Type)
	Args              []string
	Model             string
	RateLimitPatterns []string // Extra patterns appended to the adapter's built-ins
}

// New creates an agent adapter based on the provided configuration.
// This factory function switches on cfg.Type and returns the appropriate adapter.
func New(cfg Config, pm *ProcessManager) (Agent, error) {
	switch cfg.Type {
	case "claude":
		return NewClaudeAdapter(cfg, pm), nil
	case "codex":
		return NewCodexAdapter(cfg, pm), nil
	case "goose":
		return NewGooseAdapter(cfg, pm), nil
	case "generic":
		return NewGenericAdapter(cfg, pm)
	default:
		return nil, fmt.Errorf("unknown agent type: %s", cfg.Type)
	}
}

// Registry holds the agent adapters available to the engine, keyed by id.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds an agent to the registry. Returns an error on duplicate ids.
func (r *Registry) Register(a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.ID()]; exists {
		return fmt.Errorf("agent %q already registered", a.ID())
	}
	r.agents[a.ID()] = a
	return nil
}

// Get returns the agent with the given id.
func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	return a, ok
}

// IDs returns all registered agent ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
