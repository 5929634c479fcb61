// Package alexos registers the module with the host platform, keeps the
// registration fresh with a heartbeat, and pushes platform events to the
// host webhook. Host outages are logged and retried, never fatal.
package alexos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alexos/chainbot/config"
	"github.com/alexos/chainbot/internal/httpclient"
	"github.com/alexos/chainbot/pkg/logger"
)

// EventType labels events pushed to the host platform.
type EventType string

const (
	EventAgentSpawn        EventType = "agent_spawn"
	EventAgentKill         EventType = "agent_kill"
	EventWorkflowStart     EventType = "workflow_start"
	EventWorkflowComplete  EventType = "workflow_complete"
	EventWorkflowError     EventType = "workflow_error"
	EventSystemHealth      EventType = "system_health"
	EventUserAction        EventType = "user_action"
	EventBlockerDetected   EventType = "blocker_detected"
	EventRequiresAttention EventType = "requires_attention"
)

// ModuleInfo is the registration payload the host indexes modules by.
type ModuleInfo struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	Port         int      `json:"port"`
	Capabilities []string `json:"capabilities"`
	Endpoints    []string `json:"endpoints"`
	UIFeatures   []string `json:"ui_features"`
}

// DefaultModuleInfo describes this module to the host.
func DefaultModuleInfo(port int) ModuleInfo {
	return ModuleInfo{
		Name:        "chainbot",
		Version:     "1.0.0",
		Description: "Workflow orchestration with managed AI agents",
		Port:        port,
		Capabilities: []string{
			"workflow_orchestration",
			"agent_management",
			"chatgpt_integration",
			"local_model_integration",
		},
		Endpoints: []string{
			"/health",
			"/metrics",
			"/ws",
		},
		UIFeatures: []string{
			"chat",
			"watchtower",
			"workflow_builder",
			"agent_map",
			"code_agent",
			"harmony",
		},
	}
}

// Client talks to the host platform.
type Client struct {
	cfg    config.ALEXOSConfig
	info   ModuleInfo
	http   *httpclient.Client
	logger *slog.Logger

	startedAt time.Time

	mu         sync.RWMutex
	registered bool
}

func NewClient(cfg config.ALEXOSConfig, info ModuleInfo) *Client {
	return &Client{
		cfg:       cfg,
		info:      info,
		startedAt: time.Now(),
		// The health loop already retries on an interval, so individual
		// requests fail fast.
		http: httpclient.New(
			httpclient.WithMaxRetries(0),
			httpclient.WithLogger(logger.New("alexos")),
		),
		logger: logger.New("alexos"),
	}
}

// Registered reports whether the last registration attempt succeeded.
func (c *Client) Registered() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registered
}

// Register announces the module to the host registry.
func (c *Client) Register(ctx context.Context) error {
	err := c.post(ctx, c.cfg.ModuleRegistryURL+"/api/modules/register", c.info)

	c.mu.Lock()
	c.registered = err == nil
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("module registration failed: %w", err)
	}
	c.logger.Info("module registered", "name", c.info.Name, "registry", c.cfg.ModuleRegistryURL)
	return nil
}

// RunHealthLoop re-registers on the configured interval until the context
// ends. A host outage downgrades to a warning; the loop keeps trying.
func (c *Client) RunHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HealthInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Register(ctx); err != nil {
				c.logger.Warn("health re-registration failed", "error", err)
				continue
			}
			c.EmitEvent(ctx, EventSystemHealth, map[string]interface{}{
				"status": "healthy",
				"module": c.info.Name,
				"uptime": time.Since(c.startedAt).Seconds(),
			})
		}
	}
}

// EmitEvent pushes a platform event to the host webhook. Failures are
// logged, not returned: event delivery must never break the caller.
func (c *Client) EmitEvent(ctx context.Context, eventType EventType, data map[string]interface{}) {
	envelope := map[string]interface{}{
		"event":     string(eventType),
		"source":    c.info.Name,
		"timestamp": time.Now().Format(time.RFC3339),
		"data":      data,
	}
	if err := c.post(ctx, c.cfg.WebhookURL, envelope); err != nil {
		c.logger.Warn("event delivery failed", "event", eventType, "error", err)
	}
}

func (c *Client) post(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("host returned HTTP %d", resp.StatusCode)
	}
	return nil
}
