// Package config loads and validates the unified module configuration from
// YAML with environment variable expansion.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the unified module configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	ALEXOS    ALEXOSConfig    `yaml:"alex_os"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	MacLink   MacLinkConfig   `yaml:"maclink"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Security  SecurityConfig  `yaml:"security"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Agent     AgentConfig     `yaml:"agent"`
	Audit     AuditConfig     `yaml:"audit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type section interface {
	SetDefaults()
	Validate() error
}

func (c *Config) sections() []section {
	return []section{
		&c.Server,
		&c.ALEXOS,
		&c.OpenAI,
		&c.MacLink,
		&c.WebSocket,
		&c.Security,
		&c.Workflow,
		&c.Agent,
		&c.Audit,
		&c.Logging,
	}
}

// SetDefaults fills zero values in every section.
func (c *Config) SetDefaults() {
	for _, s := range c.sections() {
		s.SetDefaults()
	}
}

// Validate checks every section after defaults are applied.
func (c *Config) Validate() error {
	for _, s := range c.sections() {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// Load reads a YAML config file, expands environment variables in the raw
// document, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML config bytes. Environment variables are expanded in the
// decoded tree before it is bound to the typed config.
func Parse(data []byte) (*Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expanded := ExpandEnvVarsInData(raw)

	// Round-trip through YAML to bind the expanded tree to the typed config.
	rebound, err := yaml.Marshal(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to rebind config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(rebound, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
