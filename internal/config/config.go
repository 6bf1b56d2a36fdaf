// Package config handles deva's global configuration and state directories.
//
// Settings live in ~/.deva/config.yaml; every field has a usable default so
// the file is optional. DEVA_HOME relocates the whole state directory, which
// tests rely on to stay out of the real home.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds global deva settings from ~/.deva/config.yaml.
type Config struct {
	// Image is the sandbox image used for created containers.
	Image string `yaml:"image"`
	// DefaultAgent is launched when no agent subcommand is given.
	DefaultAgent string `yaml:"defaultAgent"`
	// Mounts are extra volume specs ("src:dst[:ro|rw]") applied to every launch.
	Mounts []string `yaml:"mounts,omitempty"`
	// Env lists host environment variable names passed through to containers.
	Env []string `yaml:"env,omitempty"`

	History HistoryConfig `yaml:"history,omitempty"`
	Copilot CopilotConfig `yaml:"copilot,omitempty"`
	Bedrock BedrockConfig `yaml:"bedrock,omitempty"`
	Vertex  VertexConfig  `yaml:"vertex,omitempty"`
}

// HistoryConfig controls the lifecycle event log.
type HistoryConfig struct {
	// RetentionDays is how long event rows are kept (0 = forever).
	RetentionDays int `yaml:"retentionDays"`
}

// CopilotConfig holds settings for the host-side Copilot auth proxy.
type CopilotConfig struct {
	// ProxyCommand is the executable started before a copilot launch.
	ProxyCommand string `yaml:"proxyCommand"`
}

// BedrockConfig holds settings for Claude's bedrock auth method.
type BedrockConfig struct {
	// Region overrides AWS_REGION for the in-container agent.
	Region string `yaml:"region,omitempty"`
}

// VertexConfig holds settings for Claude's vertex auth method.
type VertexConfig struct {
	Project string `yaml:"project,omitempty"`
	Region  string `yaml:"region,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Image:        "ghcr.io/devadev/deva-sandbox:latest",
		DefaultAgent: "claude",
		History:      HistoryConfig{RetentionDays: 30},
		Copilot:      CopilotConfig{ProxyCommand: "deva-copilot-proxy"},
	}
}

// Load reads ~/.deva/config.yaml and applies environment overrides.
// A missing file yields defaults; a malformed file is an error.
func Load() (*Config, error) {
	cfg := Default()

	path := Path()
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	// Apply environment overrides
	if image := os.Getenv("DEVA_IMAGE"); image != "" {
		cfg.Image = image
	}
	if agent := os.Getenv("DEVA_DEFAULT_AGENT"); agent != "" {
		cfg.DefaultAgent = agent
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks config field values, naming the offending field.
func (c *Config) Validate() error {
	if c.Image == "" {
		return fmt.Errorf("config field image: must not be empty")
	}
	if c.DefaultAgent == "" {
		return fmt.Errorf("config field defaultAgent: must not be empty")
	}
	if c.History.RetentionDays < 0 {
		return fmt.Errorf("config field history.retentionDays: must not be negative")
	}
	for _, spec := range c.Mounts {
		if _, err := ParseMount(spec); err != nil {
			return fmt.Errorf("config field mounts: %w", err)
		}
	}
	return nil
}

// Dir returns the deva state directory, ~/.deva by default.
// DEVA_HOME overrides it entirely.
func Dir() string {
	if dir := os.Getenv("DEVA_HOME"); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".deva")
	}
	return filepath.Join(homeDir, ".deva")
}

// Path returns the global config file path.
func Path() string {
	return filepath.Join(Dir(), "config.yaml")
}

// SessionsDir returns the session record directory.
func SessionsDir() string {
	return filepath.Join(Dir(), "sessions")
}

// LogsDir returns the debug log directory.
func LogsDir() string {
	return filepath.Join(Dir(), "logs")
}

// HistoryPath returns the lifecycle event database path.
func HistoryPath() string {
	return filepath.Join(Dir(), "history.db")
}
