package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alexos/chainbot/config"
	"github.com/alexos/chainbot/pkg/logger"
)

var (
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chainbot_ws_active_connections",
		Help: "Number of open websocket connections.",
	})
	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainbot_ws_messages_sent_total",
		Help: "Messages written to websocket connections.",
	}, []string{"type"})
)

// Connection is one websocket client bound to a window.
type Connection struct {
	ID     string
	Window WindowType
	UserID string

	conn *websocket.Conn
	send chan Message
	done chan struct{}

	mu           sync.Mutex
	lastActivity time.Time
	closed       bool
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// LastActivity returns the time of the last inbound or outbound message.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	_ = c.conn.Close()
}

// HandlerFunc consumes an inbound message from a connection.
type HandlerFunc func(conn *Connection, msg Message)

// CommandFunc executes a slash command and returns the response text.
type CommandFunc func(ctx context.Context, conn *Connection, args []string) (string, error)

// Hub owns all websocket connections and fans messages out to them.
type Hub struct {
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu       sync.RWMutex
	conns    map[string]*Connection
	windows  map[WindowType]map[string]*Connection
	handlers map[MessageType][]HandlerFunc
	commands map[string]CommandFunc
	started  time.Time
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is enforced by the fronting HTTP layer.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:   logger.New("fanout"),
		conns:    make(map[string]*Connection),
		windows:  make(map[WindowType]map[string]*Connection),
		handlers: make(map[MessageType][]HandlerFunc),
		commands: make(map[string]CommandFunc),
		started:  time.Now(),
	}
}

// OnMessage registers a handler for an inbound message type.
func (h *Hub) OnMessage(t MessageType, fn HandlerFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[t] = append(h.handlers[t], fn)
}

// OnCommand registers a slash command by name, without the leading slash.
func (h *Hub) OnCommand(name string, fn CommandFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands[name] = fn
}

// ServeHTTP upgrades the request to a websocket connection. The target
// window comes from the "window" query parameter, the user from "user".
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	window := WindowType(r.URL.Query().Get("window"))
	if !window.Valid() {
		http.Error(w, fmt.Sprintf("unknown window type %q", window), http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	ws.SetReadLimit(int64(h.cfg.ReadLimit))

	conn := h.register(ws, window, r.URL.Query().Get("user"))

	go h.writePump(conn)
	go h.readPump(conn)
}

func (h *Hub) register(ws *websocket.Conn, window WindowType, userID string) *Connection {
	conn := &Connection{
		ID:           uuid.New().String(),
		Window:       window,
		UserID:       userID,
		conn:         ws,
		send:         make(chan Message, h.cfg.SendBuffer),
		done:         make(chan struct{}),
		lastActivity: time.Now(),
	}

	h.mu.Lock()
	h.conns[conn.ID] = conn
	if h.windows[window] == nil {
		h.windows[window] = make(map[string]*Connection)
	}
	h.windows[window][conn.ID] = conn
	h.mu.Unlock()

	activeConnections.Inc()
	h.logger.Info("connection opened", "connection_id", conn.ID, "window", window)

	// Welcome message with the window's capabilities
	h.sendToConn(conn, Message{
		Type:       MessageWindowOpen,
		WindowType: window,
		Timestamp:  time.Now(),
		Data: map[string]interface{}{
			"connection_id": conn.ID,
			"capabilities":  Capabilities(window),
			"server_time":   time.Now().Format(time.RFC3339),
		},
	})

	return conn
}

// Disconnect closes and unregisters a connection.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	conn, ok := h.conns[connID]
	if ok {
		delete(h.conns, connID)
		if wins := h.windows[conn.Window]; wins != nil {
			delete(wins, connID)
		}
	}
	h.mu.Unlock()

	if !ok {
		return
	}

	conn.close()
	activeConnections.Dec()
	h.logger.Info("connection closed", "connection_id", connID, "window", conn.Window)
}

// SendTo queues a message for one connection. A full or closed connection
// is disconnected rather than blocking the caller.
func (h *Hub) SendTo(connID string, msg Message) bool {
	h.mu.RLock()
	conn, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return h.sendToConn(conn, msg)
}

func (h *Hub) sendToConn(conn *Connection, msg Message) bool {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	select {
	case conn.send <- msg:
		conn.touch()
		messagesSent.WithLabelValues(string(msg.Type)).Inc()
		return true
	case <-conn.done:
		return false
	default:
		// Send buffer full: the client is not draining, drop it.
		h.logger.Warn("send buffer full, dropping connection", "connection_id", conn.ID)
		h.Disconnect(conn.ID)
		return false
	}
}

// BroadcastToWindow fans a message out to every connection on one window.
func (h *Hub) BroadcastToWindow(window WindowType, msg Message) int {
	msg.WindowType = window

	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.windows[window]))
	for _, c := range h.windows[window] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range conns {
		if h.sendToConn(c, msg) {
			sent++
		}
	}
	return sent
}

// BroadcastToUser fans a message out to every connection of one user,
// across all windows.
func (h *Hub) BroadcastToUser(userID string, msg Message) int {
	h.mu.RLock()
	var conns []*Connection
	for _, c := range h.conns {
		if c.UserID == userID {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range conns {
		if h.sendToConn(c, msg) {
			sent++
		}
	}
	return sent
}

// BroadcastAll fans a message out to every connection on every window.
func (h *Hub) BroadcastAll(msg Message) int {
	h.mu.RLock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range conns {
		if h.sendToConn(c, msg) {
			sent++
		}
	}
	return sent
}

func (h *Hub) writePump(conn *Connection) {
	for {
		select {
		case msg := <-conn.send:
			if err := conn.conn.WriteJSON(msg); err != nil {
				h.logger.Debug("write failed", "connection_id", conn.ID, "error", err)
				h.Disconnect(conn.ID)
				return
			}
		case <-conn.done:
			return
		}
	}
}

func (h *Hub) readPump(conn *Connection) {
	defer h.Disconnect(conn.ID)

	for {
		var msg Message
		if err := conn.conn.ReadJSON(&msg); err != nil {
			return
		}
		conn.touch()
		h.dispatch(conn, msg)
	}
}

// RunReaper sweeps idle connections until the context is cancelled.
// Connections whose last activity is older than the idle timeout are closed.
func (h *Hub) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.Sweep())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.reapIdle(h.cfg.IdleTimeout())
		}
	}
}

func (h *Hub) reapIdle(idleTimeout time.Duration) {
	cutoff := time.Now().Add(-idleTimeout)

	h.mu.RLock()
	var idle []string
	for id, conn := range h.conns {
		if conn.LastActivity().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range idle {
		h.logger.Info("reaping idle connection", "connection_id", id)
		h.Disconnect(id)
	}
}

// Stats reports connection totals per window and hub uptime.
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	byWindow := make(map[string]int, len(h.windows))
	for window, conns := range h.windows {
		byWindow[string(window)] = len(conns)
	}

	return map[string]interface{}{
		"total_connections": len(h.conns),
		"by_window":         byWindow,
		"uptime":            time.Since(h.started).String(),
	}
}
