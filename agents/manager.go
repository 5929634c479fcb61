package agents

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alexos/chainbot/brain"
	"github.com/alexos/chainbot/fanout"
	"github.com/alexos/chainbot/pkg/logger"
)

// Completer generates a completion for an agent prompt.
type Completer interface {
	Process(ctx context.Context, req brain.Request) (*brain.Response, error)
}

// Bus is the slice of the fanout hub the manager needs.
type Bus interface {
	BroadcastToWindow(window fanout.WindowType, msg fanout.Message) int
}

// Auditor records agent lifecycle events.
type Auditor interface {
	LogAgent(ctx context.Context, agentID, action, actorID string, meta map[string]interface{})
}

// SpawnRequest asks for a new agent.
type SpawnRequest struct {
	Name      string
	Type      AgentType
	Config    map[string]interface{}
	SessionID string
	ActorID   string
}

// ChainHop records one agent's contribution to a chain run.
type ChainHop struct {
	AgentID    string  `json:"agent_id"`
	Prompt     string  `json:"prompt"`
	Response   string  `json:"response"`
	Confidence float64 `json:"confidence"`
}

// Manager owns the live agents.
type Manager struct {
	completer Completer
	bus       Bus
	sink      Auditor
	logger    *slog.Logger

	mu     sync.RWMutex
	agents map[string]*Agent
}

func NewManager(completer Completer, bus Bus, sink Auditor) *Manager {
	return &Manager{
		completer: completer,
		bus:       bus,
		sink:      sink,
		logger:    logger.New("agents"),
		agents:    make(map[string]*Agent),
	}
}

// Spawn validates the per-type config, registers the agent idle, announces
// it on the agent map, and audits the creation.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) (*Agent, error) {
	if !req.Type.Valid() {
		return nil, &ManagerError{Operation: "Spawn", Message: fmt.Sprintf("unknown agent type %q", req.Type)}
	}
	if err := validateSpawnConfig(req.Type, req.Config); err != nil {
		return nil, &ManagerError{Operation: "Spawn", Message: "invalid config", Err: err}
	}

	capabilities := capabilitiesFor(req.Type, req.Config)

	agent := &Agent{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Type:         req.Type,
		Status:       StatusIdle,
		Config:       req.Config,
		Capabilities: capabilities,
		SessionID:    req.SessionID,
		CreatedAt:    time.Now(),
		LastActive:   time.Now(),
	}
	if agent.Name == "" {
		agent.Name = fmt.Sprintf("%s-%s", req.Type, agent.ID[:8])
	}

	m.mu.Lock()
	m.agents[agent.ID] = agent
	m.mu.Unlock()

	m.logger.Info("agent spawned", "agent_id", agent.ID, "type", agent.Type, "name", agent.Name)

	m.bus.BroadcastToWindow(fanout.WindowAgentMap, fanout.Message{
		Type:    fanout.MessageAgentSpawn,
		AgentID: agent.ID,
		Data: map[string]interface{}{
			"agent_id":     agent.ID,
			"name":         agent.Name,
			"type":         string(agent.Type),
			"capabilities": agent.Capabilities,
		},
	})
	m.sink.LogAgent(ctx, agent.ID, "spawned", req.ActorID, map[string]interface{}{
		"type": string(agent.Type),
		"name": agent.Name,
	})

	return agent, nil
}

// Send routes a message to an agent through its persona. The agent is
// thinking for the duration of the call, then idle, or error on failure.
func (m *Manager) Send(ctx context.Context, agentID, message, sessionID string) (*brain.Response, error) {
	agent, err := m.Get(agentID)
	if err != nil {
		return nil, err
	}

	if sessionID == "" {
		sessionID = agent.SessionID
	}

	m.setStatus(agent.ID, StatusThinking)

	resp, err := m.completer.Process(ctx, brain.Request{
		AgentID:   agent.ID,
		SessionID: sessionID,
		Prompt:    message,
		Persona:   personaFor(agent),
	})
	if err != nil {
		m.setStatus(agent.ID, StatusError)
		m.sink.LogAgent(ctx, agent.ID, "message_failed", "", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, &ManagerError{Operation: "Send", AgentID: agent.ID, Message: "completion failed", Err: err}
	}

	m.mu.Lock()
	if a, ok := m.agents[agent.ID]; ok {
		a.Status = StatusIdle
		a.LastActive = time.Now()
		a.Messages++
	}
	m.mu.Unlock()
	m.broadcastStatus(agent.ID, StatusIdle)

	m.sink.LogAgent(ctx, agent.ID, "message_processed", "", map[string]interface{}{
		"message_length":  len(message),
		"response_length": len(resp.Content),
		"provider":        resp.Provider,
		"model":           resp.Model,
		"tokens_used":     resp.TokensUsed,
		"confidence":      resp.Confidence,
	})

	m.bus.BroadcastToWindow(fanout.WindowChat, fanout.Message{
		Type:      fanout.MessageAgentResponse,
		AgentID:   agent.ID,
		SessionID: sessionID,
		Data: map[string]interface{}{
			"agent_id":   agent.ID,
			"response":   resp.Content,
			"confidence": resp.Confidence,
		},
	})

	return resp, nil
}

// Chain pipes a message through agents in order: each agent's response
// becomes the next agent's prompt. Returns the final response and the
// per-hop records.
func (m *Manager) Chain(ctx context.Context, agentIDs []string, initial, sessionID string) (*brain.Response, []ChainHop, error) {
	if len(agentIDs) == 0 {
		return nil, nil, &ManagerError{Operation: "Chain", Message: "no agents in chain"}
	}

	hops := make([]ChainHop, 0, len(agentIDs))
	prompt := initial
	var final *brain.Response

	for _, agentID := range agentIDs {
		resp, err := m.Send(ctx, agentID, prompt, sessionID)
		if err != nil {
			return nil, hops, fmt.Errorf("chain broke at agent %s: %w", agentID, err)
		}
		hops = append(hops, ChainHop{
			AgentID:    agentID,
			Prompt:     prompt,
			Response:   resp.Content,
			Confidence: resp.Confidence,
		})
		prompt = resp.Content
		final = resp
	}

	m.sink.LogAgent(ctx, agentIDs[len(agentIDs)-1], "chain_completed", "", map[string]interface{}{
		"chain_length": len(agentIDs),
		"agents":       agentIDs,
	})

	return final, hops, nil
}

// Kill takes an agent offline and removes it.
func (m *Manager) Kill(ctx context.Context, agentID, actorID string) error {
	m.mu.Lock()
	agent, ok := m.agents[agentID]
	if ok {
		agent.Status = StatusOffline
		delete(m.agents, agentID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}

	m.logger.Info("agent killed", "agent_id", agentID)
	m.bus.BroadcastToWindow(fanout.WindowAgentMap, fanout.Message{
		Type:    fanout.MessageAgentKill,
		AgentID: agentID,
		Data:    map[string]interface{}{"agent_id": agentID},
	})
	m.sink.LogAgent(ctx, agentID, "killed", actorID, nil)

	return nil
}

// Get returns a copy of the agent.
func (m *Manager) Get(agentID string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agent, ok := m.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	copied := *agent
	return &copied, nil
}

// List returns copies of all live agents.
func (m *Manager) List() []*Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Agent, 0, len(m.agents))
	for _, agent := range m.agents {
		copied := *agent
		out = append(out, &copied)
	}
	return out
}

// UpdateStatus sets an agent's status and broadcasts the transition.
func (m *Manager) UpdateStatus(agentID string, status AgentStatus) error {
	m.mu.Lock()
	agent, ok := m.agents[agentID]
	if ok {
		agent.Status = status
		agent.LastActive = time.Now()
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	m.broadcastStatus(agentID, status)
	return nil
}

// FindByCapability returns agents advertising a capability.
func (m *Manager) FindByCapability(capability string) []*Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Agent
	for _, agent := range m.agents {
		for _, c := range agent.Capabilities {
			if c == capability {
				copied := *agent
				out = append(out, &copied)
				break
			}
		}
	}
	return out
}

func (m *Manager) setStatus(agentID string, status AgentStatus) {
	m.mu.Lock()
	if agent, ok := m.agents[agentID]; ok {
		agent.Status = status
		agent.LastActive = time.Now()
	}
	m.mu.Unlock()
	m.broadcastStatus(agentID, status)
}

func (m *Manager) broadcastStatus(agentID string, status AgentStatus) {
	m.bus.BroadcastToWindow(fanout.WindowAgentMap, fanout.Message{
		Type:    fanout.MessageAgentStatusUpdate,
		AgentID: agentID,
		Data: map[string]interface{}{
			"agent_id": agentID,
			"status":   string(status),
		},
	})
}

func capabilitiesFor(agentType AgentType, cfg map[string]interface{}) []string {
	if agentType == TypeALEXOS {
		if raw, ok := cfg["capabilities"].([]interface{}); ok {
			out := make([]string, 0, len(raw))
			for _, c := range raw {
				if s, ok := c.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
		if caps, ok := cfg["capabilities"].([]string); ok {
			return caps
		}
		return nil
	}

	caps := typeCapabilities[agentType]
	out := make([]string, len(caps))
	copy(out, caps)
	return out
}
