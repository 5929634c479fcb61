package config

import (
	"fmt"
	"time"
)

// ============================================================================
// CONFIGURATION SECTIONS
// ============================================================================

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 9000
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// ALEXOSConfig configures registration with the host platform.
type ALEXOSConfig struct {
	Enabled             bool   `yaml:"enabled"`
	ModuleRegistryURL   string `yaml:"module_registry_url"`
	EventBusURL         string `yaml:"event_bus_url"`
	WebhookURL          string `yaml:"webhook_url"`
	HealthCheckInterval int    `yaml:"health_check_interval"` // seconds
}

func (c *ALEXOSConfig) SetDefaults() {
	if c.ModuleRegistryURL == "" {
		c.ModuleRegistryURL = "http://10.42.69.208:8000"
	}
	if c.EventBusURL == "" {
		c.EventBusURL = "ws://localhost:8000/ws/events"
	}
	if c.WebhookURL == "" {
		c.WebhookURL = "http://127.0.0.1:9000/api/webhooks/chainbot"
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = 30
	}
}

func (c *ALEXOSConfig) Validate() error {
	if c.Enabled && c.ModuleRegistryURL == "" {
		return fmt.Errorf("alex_os.module_registry_url is required when enabled")
	}
	return nil
}

func (c *ALEXOSConfig) HealthInterval() time.Duration {
	return time.Duration(c.HealthCheckInterval) * time.Second
}

// OpenAIConfig configures the remote completion provider.
type OpenAIConfig struct {
	APIKeys        []string `yaml:"api_keys"`
	OrganizationID string   `yaml:"organization_id"`
	BaseURL        string   `yaml:"base_url"`
	DefaultModel   string   `yaml:"default_model"`
	Timeout        int      `yaml:"timeout"`     // seconds
	MaxRetries     int      `yaml:"max_retries"` // per request
	RequestsPerMin int      `yaml:"requests_per_minute"`
}

func (c *OpenAIConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "gpt-4o"
	}
	if c.Timeout == 0 {
		c.Timeout = 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RequestsPerMin == 0 {
		c.RequestsPerMin = 60
	}
}

func (c *OpenAIConfig) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("openai.timeout cannot be negative")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("openai.max_retries cannot be negative")
	}
	return nil
}

func (c *OpenAIConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// RuntimeEndpoint names a local model runtime and its base URL.
type RuntimeEndpoint struct {
	Kind string `yaml:"kind"` // ollama, llama_cpp, lm_studio, text_generation_webui, custom
	URL  string `yaml:"url"`
}

// MacLinkConfig configures local runtime discovery and health monitoring.
// Discovery always runs; the provider simply reports no models when no
// runtime answers.
type MacLinkConfig struct {
	Endpoints           []RuntimeEndpoint `yaml:"endpoints"`
	HealthCheckInterval int               `yaml:"health_check_interval"` // seconds
	Timeout             int               `yaml:"timeout"`               // seconds
}

func (c *MacLinkConfig) SetDefaults() {
	if len(c.Endpoints) == 0 {
		c.Endpoints = []RuntimeEndpoint{
			{Kind: "ollama", URL: "http://localhost:11434"},
		}
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = 30
	}
	if c.Timeout == 0 {
		c.Timeout = 60
	}
}

func (c *MacLinkConfig) Validate() error {
	for _, ep := range c.Endpoints {
		if ep.URL == "" {
			return fmt.Errorf("maclink endpoint %q has no url", ep.Kind)
		}
	}
	return nil
}

func (c *MacLinkConfig) HealthInterval() time.Duration {
	return time.Duration(c.HealthCheckInterval) * time.Second
}

func (c *MacLinkConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// WebSocketConfig configures the realtime fanout bus.
type WebSocketConfig struct {
	IdleTimeoutMinutes int `yaml:"idle_timeout_minutes"`
	SendBuffer         int `yaml:"send_buffer"`
	ReadLimit          int `yaml:"read_limit"`     // bytes
	SweepInterval      int `yaml:"sweep_interval"` // seconds
}

func (c *WebSocketConfig) SetDefaults() {
	if c.IdleTimeoutMinutes == 0 {
		c.IdleTimeoutMinutes = 30
	}
	if c.SendBuffer == 0 {
		c.SendBuffer = 32
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = 1 << 20
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 60
	}
}

func (c *WebSocketConfig) Validate() error {
	if c.IdleTimeoutMinutes < 1 {
		return fmt.Errorf("websocket.idle_timeout_minutes must be at least 1")
	}
	return nil
}

func (c *WebSocketConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}

func (c *WebSocketConfig) Sweep() time.Duration {
	return time.Duration(c.SweepInterval) * time.Second
}

// SecurityConfig configures redaction and origin checks.
type SecurityConfig struct {
	RedactKeys     []string `yaml:"redact_keys"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func (c *SecurityConfig) SetDefaults() {
	if len(c.RedactKeys) == 0 {
		c.RedactKeys = []string{"password", "token", "secret", "api_key"}
	}
}

func (c *SecurityConfig) Validate() error {
	return nil
}

// WorkflowConfig configures the orchestrator.
type WorkflowConfig struct {
	MaxParallel    int `yaml:"max_parallel"`
	DefaultTimeout int `yaml:"default_timeout"` // seconds
	MaxRetries     int `yaml:"max_retries"`
	EventBuffer    int `yaml:"event_buffer"`
}

func (c *WorkflowConfig) SetDefaults() {
	if c.MaxParallel == 0 {
		c.MaxParallel = 5
	}
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = 300
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = 100
	}
}

func (c *WorkflowConfig) Validate() error {
	if c.MaxParallel < 1 {
		return fmt.Errorf("workflow.max_parallel must be at least 1")
	}
	return nil
}

func (c *WorkflowConfig) StepTimeout() time.Duration {
	return time.Duration(c.DefaultTimeout) * time.Second
}

// AgentConfig configures the agent brain.
type AgentConfig struct {
	HistoryWindow  int    `yaml:"history_window"`
	DefaultPersona string `yaml:"default_persona"`
}

func (c *AgentConfig) SetDefaults() {
	if c.HistoryWindow == 0 {
		c.HistoryWindow = 20
	}
	if c.DefaultPersona == "" {
		c.DefaultPersona = "general_assistant"
	}
}

func (c *AgentConfig) Validate() error {
	if c.HistoryWindow < 2 {
		return fmt.Errorf("agent.history_window must be at least 2")
	}
	return nil
}

// AuditConfig configures the audit trail. Auditing is on unless
// explicitly disabled.
type AuditConfig struct {
	Disabled   bool `yaml:"disabled"`
	BufferSize int  `yaml:"buffer_size"`
}

func (c *AuditConfig) SetDefaults() {
	if c.BufferSize == 0 {
		c.BufferSize = 10000
	}
}

func (c *AuditConfig) Validate() error {
	if c.BufferSize < 1 {
		return fmt.Errorf("audit.buffer_size must be at least 1")
	}
	return nil
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
}

func (c *LoggingConfig) Validate() error {
	switch c.Format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Format)
	}
}
