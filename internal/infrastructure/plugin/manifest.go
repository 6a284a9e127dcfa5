package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest represents a plugin's manifest — plugin.yaml/plugin.yml (Sila
// rule sets and Dana gift thresholds are hand-authored, so YAML is the
// primary format) or plugin.json/manifest.json for generated manifests.
type Manifest struct {
	// Identity
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description" yaml:"description"`
	Author      string `json:"author" yaml:"author"`

	// Entry points
	Main string `json:"main" yaml:"main"` // Main executable/script path

	// Capabilities
	Tools    []ManifestTool    `json:"tools,omitempty" yaml:"tools,omitempty"`
	Commands []ManifestCommand `json:"commands,omitempty" yaml:"commands,omitempty"`
	Hooks    []ManifestHook    `json:"hooks,omitempty" yaml:"hooks,omitempty"`

	// Requirements
	MinGatewayVersion string   `json:"min_gateway_version,omitempty" yaml:"min_gateway_version,omitempty"`
	Dependencies      []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	// Runtime
	Config map[string]ManifestConfigField `json:"config,omitempty" yaml:"config,omitempty"`
}

// ManifestTool defines a tool provided by the plugin
type ManifestTool struct {
	Name        string                 `json:"name" yaml:"name"`
	Description string                 `json:"description" yaml:"description"`
	Schema      map[string]interface{} `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// ManifestCommand defines a chat command provided by the plugin
type ManifestCommand struct {
	Name        string   `json:"name" yaml:"name"`
	Aliases     []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Description string   `json:"description" yaml:"description"`
	Usage       string   `json:"usage,omitempty" yaml:"usage,omitempty"`
}

// ManifestHook defines a lifecycle hook
type ManifestHook struct {
	Event   string `json:"event" yaml:"event"` // on_load, on_unload, on_message, on_command
	Handler string `json:"handler" yaml:"handler"`
}

// ManifestConfigField defines a configurable field
type ManifestConfigField struct {
	Type        string      `json:"type" yaml:"type"` // string, int, bool
	Default     interface{} `json:"default,omitempty" yaml:"default,omitempty"`
	Description string      `json:"description" yaml:"description"`
	Required    bool        `json:"required" yaml:"required"`
}

// LoadManifest loads and validates a plugin manifest from a directory. YAML
// manifests are preferred (plugin.yaml/plugin.yml) since the Sila rule list
// and Dana gift thresholds are meant to be hand-edited; plugin.json and
// manifest.json remain supported for generated manifests.
func LoadManifest(pluginDir string) (*Manifest, error) {
	names := []string{"plugin.yaml", "plugin.yml", "plugin.json", "manifest.json"}
	var data []byte
	var matched string
	var err error

	for _, name := range names {
		path := filepath.Join(pluginDir, name)
		data, err = os.ReadFile(path)
		if err == nil {
			matched = name
			break
		}
	}

	if data == nil {
		return nil, fmt.Errorf("no manifest found in %s (tried: %v)", pluginDir, names)
	}

	var m Manifest
	if strings.HasSuffix(matched, ".yaml") || strings.HasSuffix(matched, ".yml") {
		err = yaml.Unmarshal(data, &m)
	} else {
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", matched, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	return &m, nil
}

// Validate checks that required fields are present
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("missing required field: name")
	}
	if m.Version == "" {
		return fmt.Errorf("missing required field: version")
	}
	return nil
}

// HasTools returns true if the plugin provides tools
func (m *Manifest) HasTools() bool {
	return len(m.Tools) > 0
}

// HasCommands returns true if the plugin provides commands
func (m *Manifest) HasCommands() bool {
	return len(m.Commands) > 0
}

// HasHooks returns true if the plugin has lifecycle hooks
func (m *Manifest) HasHooks() bool {
	return len(m.Hooks) > 0
}
