package config

// AgentDefinition configures one CLI coding agent.
type AgentDefinition struct {
	Type              string   `json:"type"`                          // Adapter type: "claude", "codex", "goose", "generic"
	Command           string   `json:"command"`                       // CLI binary name
	Args              []string `json:"args,omitempty"`                // Extra args appended to every invocation
	Model             string   `json:"model,omitempty"`               // Model override
	RateLimitPatterns []string `json:"rate_limit_patterns,omitempty"` // Extra stderr patterns, checked before built-ins
}

// AgentsConfig selects the primary agent and the ordered fallback chain.
// Fallbacks are consulted in list order when the primary exhausts its retry
// budget.
type AgentsConfig struct {
	Primary     string                     `json:"primary"`
	Fallbacks   []string                   `json:"fallbacks,omitempty"`
	Definitions map[string]AgentDefinition `json:"definitions"`
}

// BackoffConfig tunes the rate-limit retry schedule.
type BackoffConfig struct {
	BaseMS     int `json:"base_ms"`
	MaxMS      int `json:"max_ms"`
	MaxRetries int `json:"max_retries"`
}

// ProbeConfig tunes the primary-recovery probe.
type ProbeConfig struct {
	Enabled   bool `json:"enabled"`
	TimeoutMS int  `json:"timeout_ms"`
}

// EngineConfig is the iteration controller's configuration.
type EngineConfig struct {
	MaxIterations   int           `json:"max_iterations"`
	FailureStrategy string        `json:"failure_strategy"` // "retry", "skip", "abort"
	MaxTaskRetries  int           `json:"max_task_retries"`
	CompletionToken string        `json:"completion_token"`
	ExecTimeoutMS   int           `json:"exec_timeout_ms"` // Zero disables the per-execution bound
	Backoff         BackoffConfig `json:"backoff"`
	Probe           ProbeConfig   `json:"probe"`
}

// TrackerConfig selects the task tracker adapter.
type TrackerConfig struct {
	Kind string `json:"kind"` // Adapter kind registered with the tracker factory
	Path string `json:"path"` // Task file path for the file adapter
}

// SessionConfig locates the durable session snapshot.
type SessionConfig struct {
	Path string `json:"path"` // SQLite database path
}

// RemoteConfig configures the websocket control server.
type RemoteConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	Token   string `json:"token,omitempty"` // AUTOPILOT_REMOTE_TOKEN takes precedence
}

// Config is the top-level configuration.
type Config struct {
	Engine  EngineConfig  `json:"engine"`
	Agents  AgentsConfig  `json:"agents"`
	Tracker TrackerConfig `json:"tracker"`
	Session SessionConfig `json:"session"`
	Remote  RemoteConfig  `json:"remote"`
}
