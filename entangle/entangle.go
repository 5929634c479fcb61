// Package entangle implements shared contexts between agents: membership,
// message passing scoped to a shared context, and fan-out coordination of
// a task across all members.
package entangle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alexos/chainbot/agents"
	"github.com/alexos/chainbot/brain"
	"github.com/alexos/chainbot/fanout"
	"github.com/alexos/chainbot/pkg/logger"
)

var (
	ErrEntanglementNotFound = errors.New("entanglement not found")
	ErrNotMember            = errors.New("agent is not a member")
	ErrNotEnoughMembers     = errors.New("coordination needs at least two members")
)

// maxMessages bounds the per-entanglement message history.
const maxMessages = 1000

// AgentDirectory is the slice of the agent manager the entangle manager
// needs: existence checks and message delivery.
type AgentDirectory interface {
	Get(agentID string) (*agents.Agent, error)
	Send(ctx context.Context, agentID, message, sessionID string) (*brain.Response, error)
}

// Bus is the slice of the fanout hub the manager needs.
type Bus interface {
	BroadcastToWindow(window fanout.WindowType, msg fanout.Message) int
}

// Message is one exchange inside an entanglement. An empty ToAgent means
// it went to every other member.
type Message struct {
	ID             string                 `json:"id"`
	EntanglementID string                 `json:"entanglement_id"`
	FromAgent      string                 `json:"from_agent"`
	ToAgent        string                 `json:"to_agent,omitempty"`
	Type           string                 `json:"type"` // direct, broadcast, coordination
	Content        string                 `json:"content"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// Entanglement is a shared context a set of agents communicates through.
type Entanglement struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`

	members  map[string]struct{}
	messages []Message
}

// CoordinationResult is one member's answer to a coordinated task.
type CoordinationResult struct {
	AgentID    string  `json:"agent_id"`
	Response   string  `json:"response"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

// Manager owns the entanglements.
type Manager struct {
	directory AgentDirectory
	bus       Bus
	logger    *slog.Logger

	mu            sync.RWMutex
	entanglements map[string]*Entanglement
}

func NewManager(directory AgentDirectory, bus Bus) *Manager {
	return &Manager{
		directory:     directory,
		bus:           bus,
		logger:        logger.New("entangle"),
		entanglements: make(map[string]*Entanglement),
	}
}

// Create starts a new, empty entanglement.
func (m *Manager) Create(name, description string) *Entanglement {
	ent := &Entanglement{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now(),
		members:     make(map[string]struct{}),
	}

	m.mu.Lock()
	m.entanglements[ent.ID] = ent
	m.mu.Unlock()

	m.logger.Info("entanglement created", "entanglement_id", ent.ID, "name", name)
	m.announce(ent.ID, "created", map[string]interface{}{"name": name})
	return ent
}

// AddAgent joins a live agent to the entanglement.
func (m *Manager) AddAgent(entID, agentID string) error {
	if _, err := m.directory.Get(agentID); err != nil {
		return err
	}

	m.mu.Lock()
	ent, ok := m.entanglements[entID]
	if ok {
		ent.members[agentID] = struct{}{}
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrEntanglementNotFound, entID)
	}

	m.announce(entID, "agent_added", map[string]interface{}{"agent_id": agentID})
	return nil
}

// RemoveAgent drops an agent from the entanglement.
func (m *Manager) RemoveAgent(entID, agentID string) error {
	m.mu.Lock()
	ent, ok := m.entanglements[entID]
	var member bool
	if ok {
		_, member = ent.members[agentID]
		delete(ent.members, agentID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrEntanglementNotFound, entID)
	}
	if !member {
		return fmt.Errorf("%w: %s", ErrNotMember, agentID)
	}

	m.announce(entID, "agent_removed", map[string]interface{}{"agent_id": agentID})
	return nil
}

// Send delivers a message from one member to another. Both agents must
// share the entanglement.
func (m *Manager) Send(ctx context.Context, entID, fromAgent, toAgent, content string) (*brain.Response, error) {
	if err := m.requireMembers(entID, fromAgent, toAgent); err != nil {
		return nil, err
	}

	resp, err := m.directory.Send(ctx, toAgent, content, entID)
	if err != nil {
		return nil, fmt.Errorf("delivery to %s failed: %w", toAgent, err)
	}

	m.record(entID, Message{
		FromAgent: fromAgent,
		ToAgent:   toAgent,
		Type:      "direct",
		Content:   content,
	})
	return resp, nil
}

// Broadcast delivers a message from one member to every other member and
// collects their responses.
func (m *Manager) Broadcast(ctx context.Context, entID, fromAgent, content string) ([]CoordinationResult, error) {
	if err := m.requireMembers(entID, fromAgent); err != nil {
		return nil, err
	}

	targets := m.membersExcept(entID, fromAgent)
	results := m.fanOut(ctx, entID, targets, content)

	m.record(entID, Message{
		FromAgent: fromAgent,
		Type:      "broadcast",
		Content:   content,
	})
	return results, nil
}

// Coordinate sends the same task to every member and gathers the
// answers. It refuses to run with fewer than two members.
func (m *Manager) Coordinate(ctx context.Context, entID, task string) ([]CoordinationResult, error) {
	members := m.membersExcept(entID, "")
	if members == nil {
		return nil, fmt.Errorf("%w: %s", ErrEntanglementNotFound, entID)
	}
	if len(members) < 2 {
		return nil, ErrNotEnoughMembers
	}

	results := m.fanOut(ctx, entID, members, task)

	m.record(entID, Message{
		Type:     "coordination",
		Content:  task,
		Metadata: map[string]interface{}{"members": len(members)},
	})
	m.announce(entID, "coordinated", map[string]interface{}{
		"members": len(members),
		"task":    task,
	})
	return results, nil
}

func (m *Manager) fanOut(ctx context.Context, entID string, targets []string, content string) []CoordinationResult {
	results := make([]CoordinationResult, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, agentID := range targets {
		i, agentID := i, agentID
		g.Go(func() error {
			resp, err := m.directory.Send(gctx, agentID, content, entID)
			if err != nil {
				results[i] = CoordinationResult{AgentID: agentID, Error: err.Error()}
				return nil
			}
			results[i] = CoordinationResult{
				AgentID:    agentID,
				Response:   resp.Content,
				Confidence: resp.Confidence,
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Messages returns the newest messages first, capped at limit.
func (m *Manager) Messages(entID string, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ent, ok := m.entanglements[entID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntanglementNotFound, entID)
	}

	if limit <= 0 || limit > len(ent.messages) {
		limit = len(ent.messages)
	}
	out := make([]Message, 0, limit)
	for i := len(ent.messages) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, ent.messages[i])
	}
	return out, nil
}

// Status reports one entanglement's membership and traffic.
func (m *Manager) Status(entID string) (map[string]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ent, ok := m.entanglements[entID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntanglementNotFound, entID)
	}

	members := make([]string, 0, len(ent.members))
	for id := range ent.members {
		members = append(members, id)
	}

	return map[string]interface{}{
		"entanglement_id": ent.ID,
		"name":            ent.Name,
		"members":         members,
		"message_count":   len(ent.messages),
		"created_at":      ent.CreatedAt,
	}, nil
}

// List returns all entanglements.
func (m *Manager) List() []*Entanglement {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Entanglement, 0, len(m.entanglements))
	for _, ent := range m.entanglements {
		out = append(out, ent)
	}
	return out
}

// Cleanup removes an entanglement and its history.
func (m *Manager) Cleanup(entID string) error {
	m.mu.Lock()
	_, ok := m.entanglements[entID]
	delete(m.entanglements, entID)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrEntanglementNotFound, entID)
	}

	m.announce(entID, "cleaned_up", nil)
	return nil
}

// RemoveAgentEverywhere drops an agent from every entanglement, for use
// when the agent is killed.
func (m *Manager) RemoveAgentEverywhere(agentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ent := range m.entanglements {
		delete(ent.members, agentID)
	}
}

func (m *Manager) requireMembers(entID string, agentIDs ...string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ent, ok := m.entanglements[entID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntanglementNotFound, entID)
	}
	for _, agentID := range agentIDs {
		if _, member := ent.members[agentID]; !member {
			return fmt.Errorf("%w: %s", ErrNotMember, agentID)
		}
	}
	return nil
}

// membersExcept returns the member ids minus the excluded one, or nil if
// the entanglement does not exist.
func (m *Manager) membersExcept(entID, exclude string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ent, ok := m.entanglements[entID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(ent.members))
	for id := range ent.members {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}

func (m *Manager) record(entID string, msg Message) {
	msg.ID = uuid.New().String()
	msg.EntanglementID = entID
	msg.Timestamp = time.Now()

	m.mu.Lock()
	if ent, ok := m.entanglements[entID]; ok {
		ent.messages = append(ent.messages, msg)
		if len(ent.messages) > maxMessages {
			ent.messages = ent.messages[len(ent.messages)-maxMessages:]
		}
	}
	m.mu.Unlock()
}

func (m *Manager) announce(entID, action string, data map[string]interface{}) {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["entanglement_id"] = entID
	data["action"] = action
	m.bus.BroadcastToWindow(fanout.WindowAgentMap, fanout.Message{
		Type: fanout.MessageEntanglement,
		Data: data,
	})
}
