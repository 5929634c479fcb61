// Package agents manages agent lifecycle: spawn, messaging through the
// brain, chain routing, and kill, with status broadcast to the agent map.
package agents

import (
	"errors"
	"fmt"
	"time"
)

// AgentType classifies what an agent is backed by.
type AgentType string

const (
	TypeChatGPT    AgentType = "chatgpt"
	TypeCustomGPT  AgentType = "custom_gpt"
	TypeALEXOS     AgentType = "alex_os_agent"
	TypeGPT5       AgentType = "gpt5"
	TypeWorkflow   AgentType = "workflow_agent"
	TypeSupervisor AgentType = "supervisor_agent"
)

// Valid reports whether the agent type is known.
func (t AgentType) Valid() bool {
	switch t {
	case TypeChatGPT, TypeCustomGPT, TypeALEXOS, TypeGPT5, TypeWorkflow, TypeSupervisor:
		return true
	}
	return false
}

// AgentStatus is the lifecycle state of an agent.
type AgentStatus string

const (
	StatusIdle          AgentStatus = "idle"
	StatusBusy          AgentStatus = "busy"
	StatusThinking      AgentStatus = "thinking"
	StatusCommunicating AgentStatus = "communicating"
	StatusError         AgentStatus = "error"
	StatusOffline       AgentStatus = "offline"
)

// Agent is one managed agent instance.
type Agent struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Type         AgentType              `json:"type"`
	Status       AgentStatus            `json:"status"`
	Config       map[string]interface{} `json:"config,omitempty"`
	Capabilities []string               `json:"capabilities"`
	SessionID    string                 `json:"session_id,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	LastActive   time.Time              `json:"last_active"`
	Messages     int                    `json:"messages"`
}

var ErrAgentNotFound = errors.New("agent not found")

// ManagerError is a typed error raised by manager operations.
type ManagerError struct {
	Operation string
	AgentID   string
	Message   string
	Err       error
}

func (e *ManagerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[agents:%s] %s (agent=%s): %v", e.Operation, e.Message, e.AgentID, e.Err)
	}
	return fmt.Sprintf("[agents:%s] %s (agent=%s)", e.Operation, e.Message, e.AgentID)
}

func (e *ManagerError) Unwrap() error {
	return e.Err
}

// typeCapabilities is what each agent type can do out of the box.
// alex_os_agent capabilities come from its config instead.
var typeCapabilities = map[AgentType][]string{
	TypeChatGPT:    {"conversation", "text_generation", "qa"},
	TypeCustomGPT:  {"conversation", "custom_instructions", "specialized_tasks"},
	TypeGPT5:       {"conversation", "advanced_reasoning", "multimodal"},
	TypeWorkflow:   {"workflow_execution", "task_automation", "data_processing"},
	TypeSupervisor: {"agent_supervision", "task_delegation", "conflict_resolution"},
}

// typePersonas maps each agent type to the persona it talks through.
var typePersonas = map[AgentType]string{
	TypeChatGPT:    "general_assistant",
	TypeCustomGPT:  "general_assistant",
	TypeALEXOS:     "code_assistant",
	TypeGPT5:       "general_assistant",
	TypeWorkflow:   "analyst",
	TypeSupervisor: "analyst",
}

// personaFor resolves the persona an agent talks through. A custom_gpt may
// name its own persona in config.
func personaFor(agent *Agent) string {
	if agent.Type == TypeCustomGPT {
		if persona, ok := agent.Config["persona"].(string); ok && persona != "" {
			return persona
		}
	}
	if persona, ok := typePersonas[agent.Type]; ok {
		return persona
	}
	return "general_assistant"
}

// validateSpawnConfig enforces the per-type required config keys.
func validateSpawnConfig(agentType AgentType, cfg map[string]interface{}) error {
	requireKeys := func(keys ...string) error {
		for _, key := range keys {
			if _, ok := cfg[key]; !ok {
				return fmt.Errorf("agent type %s requires config key %q", agentType, key)
			}
		}
		return nil
	}

	switch agentType {
	case TypeCustomGPT:
		return requireKeys("gpt_id", "instructions")
	case TypeChatGPT:
		return requireKeys("api_key")
	case TypeALEXOS:
		return requireKeys("agent_type", "capabilities")
	default:
		return nil
	}
}
