package fanout

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// INBOUND DISPATCH AND SLASH COMMANDS
// ============================================================================

// dispatch routes one inbound message: protocol messages are handled here,
// then any registered handlers for the type run.
func (h *Hub) dispatch(conn *Connection, msg Message) {
	switch msg.Type {
	case MessagePing:
		h.sendToConn(conn, Message{Type: MessagePong, Timestamp: time.Now()})

	case MessageHealthCheck:
		h.sendToConn(conn, Message{
			Type:      MessageHealthCheck,
			Timestamp: time.Now(),
			Data:      h.Stats(),
		})

	case MessageWindowFocus:
		// Let the rest of the window know who has focus
		h.BroadcastToWindow(conn.Window, Message{
			Type: MessageWindowFocus,
			Data: map[string]interface{}{
				"connection_id": conn.ID,
				"user":          conn.UserID,
			},
		})

	case MessageHotSwap:
		h.handleHotSwap(conn, msg)

	case MessageSlashCommand:
		h.handleSlashCommand(conn, msg)
	}

	h.mu.RLock()
	handlers := h.handlers[msg.Type]
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn(conn, msg)
	}
}

// handleHotSwap forwards content from one window to another.
func (h *Hub) handleHotSwap(conn *Connection, msg Message) {
	target, _ := msg.Data["target_window"].(string)
	targetWindow := WindowType(target)
	if !targetWindow.Valid() {
		h.sendError(conn, fmt.Sprintf("hot_swap: unknown target window %q", target))
		return
	}

	h.BroadcastToWindow(targetWindow, Message{
		Type: MessageHotSwap,
		Data: map[string]interface{}{
			"source_window": string(conn.Window),
			"content":       msg.Data["content"],
		},
		SessionID: msg.SessionID,
	})
}

// handleSlashCommand parses "/name arg arg..." and runs the registered
// command, answering with a command_response either way.
func (h *Hub) handleSlashCommand(conn *Connection, msg Message) {
	raw, _ := msg.Data["command"].(string)
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "/") {
		h.sendError(conn, "commands must start with /")
		return
	}

	fields := strings.Fields(raw[1:])
	if len(fields) == 0 {
		h.sendError(conn, "empty command")
		return
	}
	name, args := fields[0], fields[1:]

	h.mu.RLock()
	fn, ok := h.commands[name]
	h.mu.RUnlock()
	if !ok {
		h.sendCommandResponse(conn, raw, "", fmt.Sprintf("unknown command /%s", name))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result, err := fn(ctx, conn, args)
	if err != nil {
		h.sendCommandResponse(conn, raw, "", err.Error())
		return
	}
	h.sendCommandResponse(conn, raw, result, "")
}

func (h *Hub) sendCommandResponse(conn *Connection, command, result, errMsg string) {
	data := map[string]interface{}{
		"command": command,
	}
	if result != "" {
		data["result"] = result
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	h.sendToConn(conn, Message{
		Type:      MessageCommandResponse,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func (h *Hub) sendError(conn *Connection, message string) {
	h.sendToConn(conn, Message{
		Type:      MessageError,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"message": message},
	})
}
