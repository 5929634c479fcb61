package llms

import (
	"sync"
	"time"
)

// ============================================================================
// API KEY MANAGEMENT
// ============================================================================

// APIKey tracks one credential and its usage.
type APIKey struct {
	ID             string
	Key            string
	OrganizationID string
	CreatedAt      time.Time
	LastUsed       time.Time
	UsageCount     int
}

// KeyManager holds a rotating set of API credentials. The active key serves
// all requests until it is rotated or removed.
type KeyManager struct {
	mu     sync.Mutex
	order  []string
	keys   map[string]*APIKey
	active string
}

func NewKeyManager() *KeyManager {
	return &KeyManager{
		keys: make(map[string]*APIKey),
	}
}

// Add registers a credential. The first key added becomes active.
func (m *KeyManager) Add(id, key, organizationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.keys[id]; !exists {
		m.order = append(m.order, id)
	}
	m.keys[id] = &APIKey{
		ID:             id,
		Key:            key,
		OrganizationID: organizationID,
		CreatedAt:      time.Now(),
	}
	if m.active == "" {
		m.active = id
	}
}

// Remove drops a credential. If it was active, the next key becomes active.
func (m *KeyManager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.keys[id]; !exists {
		return false
	}
	delete(m.keys, id)
	for i, kid := range m.order {
		if kid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.active == id {
		m.active = ""
		if len(m.order) > 0 {
			m.active = m.order[0]
		}
	}
	return true
}

// Active returns the active credential, recording the use.
func (m *KeyManager) Active() (*APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.keys[m.active]
	if !ok {
		return nil, ErrNoActiveKey
	}
	key.LastUsed = time.Now()
	key.UsageCount++

	// Copy so callers cannot race with later mutations.
	copied := *key
	return &copied, nil
}

// Rotate advances to the next credential. Returns false with a single key.
func (m *KeyManager) Rotate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.order) < 2 {
		return false
	}
	current := 0
	for i, id := range m.order {
		if id == m.active {
			current = i
			break
		}
	}
	m.active = m.order[(current+1)%len(m.order)]
	return true
}

// Count returns the number of registered credentials.
func (m *KeyManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

// Status reports per-key usage without exposing key material.
func (m *KeyManager) Status() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make(map[string]interface{}, len(m.keys))
	for id, key := range m.keys {
		keys[id] = map[string]interface{}{
			"created_at":  key.CreatedAt,
			"last_used":   key.LastUsed,
			"usage_count": key.UsageCount,
		}
	}
	return map[string]interface{}{
		"active_key_id": m.active,
		"total_keys":    len(m.keys),
		"keys":          keys,
	}
}
