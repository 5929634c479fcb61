// Package component assembles the application: it builds every subsystem
// from the configuration, wires them together, and owns their lifecycle.
package component

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alexos/chainbot/agents"
	"github.com/alexos/chainbot/alexos"
	"github.com/alexos/chainbot/audit"
	"github.com/alexos/chainbot/brain"
	"github.com/alexos/chainbot/config"
	"github.com/alexos/chainbot/entangle"
	"github.com/alexos/chainbot/fanout"
	"github.com/alexos/chainbot/internal/httpclient"
	"github.com/alexos/chainbot/llms"
	"github.com/alexos/chainbot/pkg/logger"
	"github.com/alexos/chainbot/workflow"
)

// ============================================================================
// CORE
// ============================================================================

// Core holds every wired subsystem.
type Core struct {
	cfg    *config.Config
	logger *slog.Logger

	hub          *fanout.Hub
	sink         *audit.Sink
	providers    *llms.ProviderSet
	maclink      *llms.MacLinkProvider
	brain        *brain.Brain
	agents       *agents.Manager
	orchestrator *workflow.Orchestrator
	entangle     *entangle.Manager
	host         *alexos.Client

	cancel context.CancelFunc
}

// New builds the full component graph from the configuration. Nothing
// starts running until Start.
func New(cfg *config.Config) (*Core, error) {
	core := &Core{
		cfg:    cfg,
		logger: logger.New("core"),
	}

	core.hub = fanout.NewHub(cfg.WebSocket)
	core.sink = audit.NewSink(cfg.Audit, cfg.Security, core.hub)

	core.providers = llms.NewProviderSet()
	if len(cfg.OpenAI.APIKeys) > 0 {
		if err := core.providers.RegisterProvider(llms.NewOpenAIProvider(cfg.OpenAI)); err != nil {
			return nil, fmt.Errorf("failed to register openai provider: %w", err)
		}
	}
	core.maclink = llms.NewMacLinkProvider(cfg.MacLink)
	if err := core.providers.RegisterProvider(core.maclink); err != nil {
		return nil, fmt.Errorf("failed to register maclink provider: %w", err)
	}

	core.host = alexos.NewClient(cfg.ALEXOS, alexos.DefaultModuleInfo(cfg.Server.Port))

	// Lifecycle broadcasts also go to the host platform when attached.
	bus := &hostBridge{hub: core.hub, host: core.host, enabled: cfg.ALEXOS.Enabled}

	core.brain = brain.New(core.providers, cfg.Agent)
	core.agents = agents.NewManager(core.brain, bus, core.sink)
	core.entangle = entangle.NewManager(core.agents, core.hub)

	handlers := workflow.NewHandlerRegistry()
	workflow.RegisterBuiltins(handlers, core.agents, core.hub, httpclient.New(
		httpclient.WithLogger(logger.New("workflow")),
	))
	core.orchestrator = workflow.NewOrchestrator(cfg.Workflow, handlers, bus, core.sink)

	core.registerCommands()

	return core, nil
}

// Start launches the background loops: local model discovery, the idle
// connection reaper, and host platform registration.
func (c *Core) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	if err := c.maclink.Discover(ctx); err != nil {
		c.logger.Warn("local model discovery failed", "error", err)
	}
	go c.maclink.RunHealthLoop(ctx)
	go c.hub.RunReaper(ctx)

	if c.cfg.ALEXOS.Enabled {
		if err := c.host.Register(ctx); err != nil {
			c.logger.Warn("host registration failed, will keep retrying", "error", err)
		}
		go c.host.RunHealthLoop(ctx)
		c.host.EmitEvent(ctx, alexos.EventSystemHealth, map[string]interface{}{
			"status": "started",
			"port":   c.cfg.Server.Port,
		})
	}

	c.logger.Info("core started",
		"providers", c.providers.Names(),
		"alexos_enabled", c.cfg.ALEXOS.Enabled)
	return nil
}

// Stop ends the background loops and tells the host the module is going
// away.
func (c *Core) Stop(ctx context.Context) {
	if c.cfg.ALEXOS.Enabled {
		c.host.EmitEvent(ctx, alexos.EventSystemHealth, map[string]interface{}{
			"status": "stopping",
		})
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.logger.Info("core stopped")
}

// ============================================================================
// HOST BRIDGE
// ============================================================================

// hostEvents maps UI broadcast types onto host platform events.
var hostEvents = map[fanout.MessageType]alexos.EventType{
	fanout.MessageAgentSpawn:        alexos.EventAgentSpawn,
	fanout.MessageAgentKill:         alexos.EventAgentKill,
	fanout.MessageWorkflowStarted:   alexos.EventWorkflowStart,
	fanout.MessageWorkflowCompleted: alexos.EventWorkflowComplete,
	fanout.MessageWorkflowFailed:    alexos.EventWorkflowError,
}

// hostBridge fans lifecycle broadcasts out to the host platform in
// addition to the connected windows. Host delivery is asynchronous so a
// slow host never stalls a broadcast.
type hostBridge struct {
	hub     *fanout.Hub
	host    *alexos.Client
	enabled bool
}

func (b *hostBridge) BroadcastToWindow(window fanout.WindowType, msg fanout.Message) int {
	n := b.hub.BroadcastToWindow(window, msg)
	if b.enabled {
		if event, ok := hostEvents[msg.Type]; ok {
			go b.host.EmitEvent(context.Background(), event, msg.Data)
		}
	}
	return n
}

// ============================================================================
// SLASH COMMANDS
// ============================================================================

// registerCommands binds the chat slash commands to the subsystems.
func (c *Core) registerCommands() {
	c.hub.OnCommand("run", func(ctx context.Context, conn *fanout.Connection, args []string) (string, error) {
		if len(args) == 0 {
			return "", fmt.Errorf("usage: /run <workflow_id> [key=value ...]")
		}
		vars := parseAssignments(args[1:])
		exec, err := c.orchestrator.ExecuteByID(ctx, args[0], vars)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("started workflow %s, execution %s", args[0], exec.ID), nil
	})

	c.hub.OnCommand("spawn", func(ctx context.Context, conn *fanout.Connection, args []string) (string, error) {
		if len(args) == 0 {
			return "", fmt.Errorf("usage: /spawn <type> [name]")
		}
		req := agents.SpawnRequest{Type: agents.AgentType(args[0])}
		if len(args) > 1 {
			req.Name = strings.Join(args[1:], " ")
		}
		agent, err := c.agents.Spawn(ctx, req)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("spawned %s agent %s (%s)", agent.Type, agent.Name, agent.ID), nil
	})

	c.hub.OnCommand("kill", func(ctx context.Context, conn *fanout.Connection, args []string) (string, error) {
		if len(args) == 0 {
			return "", fmt.Errorf("usage: /kill <agent_id>")
		}
		if err := c.agents.Kill(ctx, args[0], ""); err != nil {
			return "", err
		}
		c.entangle.RemoveAgentEverywhere(args[0])
		return fmt.Sprintf("killed agent %s", args[0]), nil
	})
}

// parseAssignments turns key=value arguments into workflow variables.
func parseAssignments(args []string) map[string]interface{} {
	vars := make(map[string]interface{}, len(args))
	for _, arg := range args {
		key, value, found := strings.Cut(arg, "=")
		if found && key != "" {
			vars[key] = value
		}
	}
	return vars
}

// ============================================================================
// ACCESSORS
// ============================================================================

func (c *Core) Config() *config.Config               { return c.cfg }
func (c *Core) Hub() *fanout.Hub                     { return c.hub }
func (c *Core) Audit() *audit.Sink                   { return c.sink }
func (c *Core) Providers() *llms.ProviderSet         { return c.providers }
func (c *Core) Brain() *brain.Brain                  { return c.brain }
func (c *Core) Agents() *agents.Manager              { return c.agents }
func (c *Core) Orchestrator() *workflow.Orchestrator { return c.orchestrator }
func (c *Core) Entangle() *entangle.Manager          { return c.entangle }
func (c *Core) Host() *alexos.Client                 { return c.host }

// Health summarizes subsystem state for the health endpoint.
func (c *Core) Health() map[string]interface{} {
	providers := make(map[string]bool)
	for _, name := range c.providers.Names() {
		if p, ok := c.providers.Get(name); ok {
			providers[name] = p.Available()
		}
	}

	return map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().Format(time.RFC3339),
		"providers":       providers,
		"agents":          len(c.agents.List()),
		"entanglements":   len(c.entangle.List()),
		"websocket":       c.hub.Stats(),
		"alexos_attached": c.host.Registered(),
	}
}
