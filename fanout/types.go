// Package fanout implements the realtime bus: typed messages fanned out to
// websocket connections grouped by UI window, with inbound dispatch, slash
// commands, and an idle connection reaper.
package fanout

import (
	"time"
)

// ============================================================================
// WINDOW AND MESSAGE TAXONOMY
// ============================================================================

// WindowType identifies which UI window a connection belongs to.
type WindowType string

const (
	WindowAgentMap        WindowType = "agent_map"
	WindowCodeAgent       WindowType = "code_agent"
	WindowChat            WindowType = "chat"
	WindowWatchtower      WindowType = "watchtower"
	WindowWorkflowBuilder WindowType = "workflow_builder"
	WindowDataImporter    WindowType = "data_importer"
)

// Valid reports whether the window type is known.
func (w WindowType) Valid() bool {
	switch w {
	case WindowAgentMap, WindowCodeAgent, WindowChat,
		WindowWatchtower, WindowWorkflowBuilder, WindowDataImporter:
		return true
	}
	return false
}

// MessageType identifies the payload of a bus message.
type MessageType string

const (
	MessageAgentStatusUpdate MessageType = "agent_status_update"
	MessageAgentSpawn        MessageType = "agent_spawn"
	MessageAgentKill         MessageType = "agent_kill"
	MessageAgentResponse     MessageType = "agent_response"
	MessageWorkflowUpdate    MessageType = "workflow_update"
	MessageWorkflowStarted   MessageType = "workflow_started"
	MessageWorkflowCompleted MessageType = "workflow_completed"
	MessageWorkflowFailed    MessageType = "workflow_failed"
	MessageWindowOpen        MessageType = "window_open"
	MessageWindowClose       MessageType = "window_close"
	MessageWindowFocus       MessageType = "window_focus"
	MessageHotSwap           MessageType = "hot_swap"
	MessageSlashCommand      MessageType = "slash_command"
	MessageCommandResponse   MessageType = "command_response"
	MessageAuditEvent        MessageType = "audit_event"
	MessageEntanglement      MessageType = "entanglement_event"
	MessageError             MessageType = "error"
	MessagePing              MessageType = "ping"
	MessagePong              MessageType = "pong"
	MessageHealthCheck       MessageType = "health_check"
)

// Message is the wire format for every bus payload.
type Message struct {
	Type       MessageType            `json:"type"`
	WindowType WindowType             `json:"window_type,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Data       map[string]interface{} `json:"data,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
	AgentID    string                 `json:"agent_id,omitempty"`
	WorkflowID string                 `json:"workflow_id,omitempty"`
}

// windowCapabilities lists what each window can do; sent with the welcome
// message so clients can enable features.
var windowCapabilities = map[WindowType][]string{
	WindowAgentMap:        {"agent_visualization", "agent_control", "topology_view", "real_time_updates"},
	WindowCodeAgent:       {"code_editing", "file_management", "terminal_access", "git_operations"},
	WindowChat:            {"messaging", "slash_commands", "agent_interaction", "file_sharing"},
	WindowWatchtower:      {"monitoring", "alerts", "metrics", "system_health"},
	WindowWorkflowBuilder: {"workflow_design", "node_editing", "execution_control", "template_management"},
	WindowDataImporter:    {"data_import", "format_conversion", "validation", "preview"},
}

// Capabilities returns the capability list for a window.
func Capabilities(w WindowType) []string {
	caps := windowCapabilities[w]
	out := make([]string, len(caps))
	copy(out, caps)
	return out
}
