package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

// TestLoad_Defaults verifies missing files fall through to a valid default
// configuration.
func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(
		filepath.Join(t.TempDir(), "absent.json"),
		filepath.Join(t.TempDir(), "absent.json"),
	)
	if err != nil {
		t.Fatalf("load with missing files: %v", err)
	}

	if cfg.Agents.Primary == "" {
		t.Error("defaults must name a primary agent")
	}
	if _, ok := cfg.Agents.Definitions[cfg.Agents.Primary]; !ok {
		t.Error("defaults must define the primary agent")
	}
	if cfg.Engine.MaxIterations <= 0 {
		t.Errorf("defaults must set a positive iteration budget, got %d", cfg.Engine.MaxIterations)
	}
	if cfg.Remote.Enabled {
		t.Error("remote control must default to off")
	}
}

// TestLoad_ProjectOverridesGlobal verifies precedence: project file beats
// global file beats defaults, while untouched fields keep their values.
func TestLoad_ProjectOverridesGlobal(t *testing.T) {
	global := writeConfig(t, "global.json", `{
		"engine": {"max_iterations": 25, "completion_token": "GLOBAL_DONE"}
	}`)
	project := writeConfig(t, "project.json", `{
		"engine": {"max_iterations": 3}
	}`)

	cfg, err := Load(global, project)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Engine.MaxIterations != 3 {
		t.Errorf("max_iterations = %d, want project value 3", cfg.Engine.MaxIterations)
	}
	if cfg.Engine.CompletionToken != "GLOBAL_DONE" {
		t.Errorf("completion_token = %q, want global value", cfg.Engine.CompletionToken)
	}
	if cfg.Engine.FailureStrategy != DefaultConfig().Engine.FailureStrategy {
		t.Errorf("failure_strategy lost its default: %q", cfg.Engine.FailureStrategy)
	}
}

// TestLoad_DefinitionsMergePerKey verifies a file can add one agent
// definition without erasing the built-in ones.
func TestLoad_DefinitionsMergePerKey(t *testing.T) {
	project := writeConfig(t, "project.json", `{
		"agents": {
			"definitions": {
				"aider": {"type": "generic", "command": "aider"}
			}
		}
	}`)

	cfg, err := Load("", project)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if _, ok := cfg.Agents.Definitions["aider"]; !ok {
		t.Error("added definition missing")
	}
	if _, ok := cfg.Agents.Definitions[cfg.Agents.Primary]; !ok {
		t.Error("built-in primary definition erased by merge")
	}
}

// TestLoad_MalformedJSON verifies a present but broken file is an error, not
// a silent skip.
func TestLoad_MalformedJSON(t *testing.T) {
	broken := writeConfig(t, "broken.json", `{"engine": `)

	if _, err := Load(broken, ""); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

// TestLoad_EnvOverridesFile verifies environment secrets beat file values.
func TestLoad_EnvOverridesFile(t *testing.T) {
	project := writeConfig(t, "project.json", `{
		"remote": {"enabled": true, "token": "file-token", "addr": "0.0.0.0:9999"}
	}`)
	t.Setenv("AUTOPILOT_REMOTE_TOKEN", "env-token")
	t.Setenv("AUTOPILOT_REMOTE_ADDR", "127.0.0.1:4242")

	cfg, err := Load("", project)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Remote.Token != "env-token" {
		t.Errorf("token = %q, want env value", cfg.Remote.Token)
	}
	if cfg.Remote.Addr != "127.0.0.1:4242" {
		t.Errorf("addr = %q, want env value", cfg.Remote.Addr)
	}
}

// TestValidate_Rejections covers the configurations the engine refuses to
// start with.
func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing primary", func(c *Config) { c.Agents.Primary = "" }},
		{"undefined primary", func(c *Config) { c.Agents.Primary = "ghost" }},
		{"undefined fallback", func(c *Config) { c.Agents.Fallbacks = []string{"ghost"} }},
		{"primary as fallback", func(c *Config) { c.Agents.Fallbacks = append(c.Agents.Fallbacks, c.Agents.Primary) }},
		{"unknown strategy", func(c *Config) { c.Engine.FailureStrategy = "panic" }},
		{"zero iterations", func(c *Config) { c.Engine.MaxIterations = 0 }},
		{"inverted backoff", func(c *Config) { c.Engine.Backoff.BaseMS = 1000; c.Engine.Backoff.MaxMS = 10 }},
		{"remote without token", func(c *Config) { c.Remote.Enabled = true; c.Remote.Token = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Errorf("expected validation failure")
			}
		})
	}
}

// TestSave_RoundTrip verifies a saved config loads back identically through
// the merge path.
func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := DefaultConfig()
	cfg.Engine.MaxIterations = 7
	cfg.Tracker.Path = "work/tasks.yaml"
	if err := Save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Engine.MaxIterations != 7 {
		t.Errorf("max_iterations = %d, want 7", loaded.Engine.MaxIterations)
	}
	if loaded.Tracker.Path != "work/tasks.yaml" {
		t.Errorf("tracker path = %q", loaded.Tracker.Path)
	}
}
