package brain

import (
	"sync"

	"github.com/alexos/chainbot/llms"
)

// HistoryStore keeps bounded per-agent conversation windows. The window
// never exceeds the configured size: oldest turns are dropped first.
type HistoryStore struct {
	mu            sync.RWMutex
	window        int
	conversations map[string][]llms.Turn
}

func NewHistoryStore(window int) *HistoryStore {
	if window < 2 {
		window = 2
	}
	return &HistoryStore{
		window:        window,
		conversations: make(map[string][]llms.Turn),
	}
}

// Recent returns a copy of the agent's conversation window.
func (h *HistoryStore) Recent(agentID string) []llms.Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	turns := h.conversations[agentID]
	out := make([]llms.Turn, len(turns))
	copy(out, turns)
	return out
}

// Append records turns and truncates the window to its bound.
func (h *HistoryStore) Append(agentID string, turns ...llms.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conversation := append(h.conversations[agentID], turns...)
	if len(conversation) > h.window {
		conversation = conversation[len(conversation)-h.window:]
	}
	h.conversations[agentID] = conversation
}

// Len returns the number of turns held for an agent.
func (h *HistoryStore) Len(agentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conversations[agentID])
}

// Clear drops an agent's history.
func (h *HistoryStore) Clear(agentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conversations, agentID)
}
