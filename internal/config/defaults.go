package config

// DefaultConfig returns the default configuration with built-in agents for
// the common CLI coding tools.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxIterations:   10,
			FailureStrategy: "retry",
			MaxTaskRetries:  2,
			CompletionToken: "AUTOPILOT_TASK_COMPLETE",
			Backoff: BackoffConfig{
				BaseMS:     5000,
				MaxMS:      60000,
				MaxRetries: 3,
			},
			Probe: ProbeConfig{
				Enabled:   true,
				TimeoutMS: 5000,
			},
		},
		Agents: AgentsConfig{
			Primary:   "claude",
			Fallbacks: []string{"codex", "goose"},
			Definitions: map[string]AgentDefinition{
				"claude": {
					Type:    "claude",
					Command: "claude",
				},
				"codex": {
					Type:    "codex",
					Command: "codex",
				},
				"goose": {
					Type:    "goose",
					Command: "goose",
				},
			},
		},
		Tracker: TrackerConfig{
			Kind: "file",
			Path: ".autopilot/tasks.yaml",
		},
		Session: SessionConfig{
			Path: ".autopilot/session.db",
		},
		Remote: RemoteConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8765",
		},
	}
}
