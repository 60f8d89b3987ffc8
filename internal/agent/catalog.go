package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// catalogRelPath is where user-defined agent definitions live, relative to the
// project root.
const catalogRelPath = ".autopilot/agents"

// Definition is a user-supplied agent declaration loaded from the catalog.
type Definition struct {
	ID                string   `yaml:"id"`
	Type              string   `yaml:"type,omitempty"` // Defaults to "generic"
	Command           string   `yaml:"command"`
	Args              []string `yaml:"args,omitempty"`
	Model             string   `yaml:"model,omitempty"`
	RateLimitPatterns []string `yaml:"rate_limit_patterns,omitempty"`
}

// LoadCatalog reads agent definitions from .autopilot/agents/*.yaml under the
// given root and registers them. Unknown extensions are skipped; a missing
// directory is not an error.
func LoadCatalog(root string, reg *Registry, pm *ProcessManager) error {
	dir := filepath.Join(root, catalogRelPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cannot read agent catalog %q: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read agent definition %q: %w", path, err)
		}

		def, err := parseDefinition(data)
		if err != nil {
			return fmt.Errorf("parse agent definition %q: %w", path, err)
		}

		a, err := New(def.toConfig(), pm)
		if err != nil {
			return fmt.Errorf("invalid agent definition %q: %w", path, err)
		}
		if err := reg.Register(a); err != nil {
			return fmt.Errorf("register agent from %q: %w", path, err)
		}
	}

	return nil
}

// parseDefinition unmarshals and validates a single catalog entry.
func parseDefinition(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, err
	}

	def.ID = strings.TrimSpace(def.ID)
	def.Type = strings.ToLower(strings.TrimSpace(def.Type))
	def.Command = strings.TrimSpace(def.Command)

	if def.ID == "" {
		return Definition{}, fmt.Errorf("agent id is required")
	}
	if def.Type == "" {
		def.Type = "generic"
	}
	if def.Command == "" && def.Type == "generic" {
		return Definition{}, fmt.Errorf("agent %q: command is required", def.ID)
	}

	return def, nil
}

func (d Definition) toConfig() Config {
	return Config{
		ID:                d.ID,
		Type:              d.Type,
		Command:           d.Command,
		Args:              d.Args,
		Model:             d.Model,
		RateLimitPatterns: d.RateLimitPatterns,
	}
}
