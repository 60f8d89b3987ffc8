package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): environment, project config,
// global config, defaults. Missing files are not errors; malformed JSON
// returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Merge global config if exists
	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	// Merge project config if exists (highest file precedence)
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.autopilot/config.json
// Project: .autopilot/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".autopilot", "config.json")
	projectPath := filepath.Join(".autopilot", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it over the base
// config. Unmarshaling into the populated struct overlays only the fields
// the file sets; agent definitions merge per-key. Missing files are silently
// skipped.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Missing file is not an error
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, base); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays secrets from the environment. Secrets stay out of
// config files so they cannot leak through project checkouts.
func applyEnv(cfg *Config) {
	if token := os.Getenv("AUTOPILOT_REMOTE_TOKEN"); token != "" {
		cfg.Remote.Token = token
	}
	if addr := os.Getenv("AUTOPILOT_REMOTE_ADDR"); addr != "" {
		cfg.Remote.Addr = addr
	}
}

// Validate rejects configurations the engine cannot run with.
func Validate(cfg *Config) error {
	if cfg.Agents.Primary == "" {
		return fmt.Errorf("config: agents.primary is required")
	}
	if _, ok := cfg.Agents.Definitions[cfg.Agents.Primary]; !ok {
		return fmt.Errorf("config: primary agent %q has no definition", cfg.Agents.Primary)
	}
	for _, id := range cfg.Agents.Fallbacks {
		if _, ok := cfg.Agents.Definitions[id]; !ok {
			return fmt.Errorf("config: fallback agent %q has no definition", id)
		}
		if id == cfg.Agents.Primary {
			return fmt.Errorf("config: primary agent %q cannot also be a fallback", id)
		}
	}

	switch cfg.Engine.FailureStrategy {
	case "retry", "skip", "abort":
	default:
		return fmt.Errorf("config: unknown failure strategy %q", cfg.Engine.FailureStrategy)
	}

	if cfg.Engine.MaxIterations <= 0 {
		return fmt.Errorf("config: engine.max_iterations must be positive")
	}
	if cfg.Engine.Backoff.BaseMS <= 0 || cfg.Engine.Backoff.MaxMS < cfg.Engine.Backoff.BaseMS {
		return fmt.Errorf("config: backoff base/max out of range")
	}

	if cfg.Remote.Enabled && cfg.Remote.Token == "" {
		return fmt.Errorf("config: remote control requires a token (set AUTOPILOT_REMOTE_TOKEN)")
	}
	return nil
}
