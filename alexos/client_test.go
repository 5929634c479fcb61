package alexos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexos/chainbot/config"
)

type hostRecorder struct {
	mu       sync.Mutex
	requests []map[string]interface{}
	paths    []string
	status   int
}

func (h *hostRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&payload)

	h.mu.Lock()
	h.requests = append(h.requests, payload)
	h.paths = append(h.paths, r.URL.Path)
	status := h.status
	h.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func (h *hostRecorder) last() map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.requests) == 0 {
		return nil
	}
	return h.requests[len(h.requests)-1]
}

func newTestClient(t *testing.T, host *hostRecorder) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(host)
	t.Cleanup(server.Close)

	cfg := config.ALEXOSConfig{
		Enabled:             true,
		ModuleRegistryURL:   server.URL,
		WebhookURL:          server.URL + "/api/webhooks/chainbot",
		HealthCheckInterval: 30,
	}
	return NewClient(cfg, DefaultModuleInfo(9000)), server
}

func TestRegister(t *testing.T) {
	host := &hostRecorder{}
	client, _ := newTestClient(t, host)

	require.NoError(t, client.Register(context.Background()))
	assert.True(t, client.Registered())

	assert.Equal(t, "/api/modules/register", host.paths[0])
	payload := host.last()
	assert.Equal(t, "chainbot", payload["name"])
	assert.Equal(t, float64(9000), payload["port"])
	assert.Contains(t, payload["capabilities"], "workflow_orchestration")
	assert.Contains(t, payload["ui_features"], "watchtower")
}

func TestRegister_HostDown(t *testing.T) {
	host := &hostRecorder{status: http.StatusServiceUnavailable}
	client, _ := newTestClient(t, host)

	err := client.Register(context.Background())
	require.Error(t, err)
	assert.False(t, client.Registered())

	// a later success flips the flag back
	host.mu.Lock()
	host.status = http.StatusOK
	host.mu.Unlock()
	require.NoError(t, client.Register(context.Background()))
	assert.True(t, client.Registered())
}

func TestEmitEvent(t *testing.T) {
	host := &hostRecorder{}
	client, _ := newTestClient(t, host)

	client.EmitEvent(context.Background(), EventAgentSpawn, map[string]interface{}{
		"agent_id": "a1",
	})

	payload := host.last()
	require.NotNil(t, payload)
	assert.Equal(t, "agent_spawn", payload["event"])
	assert.Equal(t, "chainbot", payload["source"])
	assert.NotEmpty(t, payload["timestamp"])
	assert.Equal(t, "a1", payload["data"].(map[string]interface{})["agent_id"])
}

func TestEmitEvent_FailureDoesNotPanic(t *testing.T) {
	cfg := config.ALEXOSConfig{
		WebhookURL:          "http://127.0.0.1:1/unreachable",
		ModuleRegistryURL:   "http://127.0.0.1:1",
		HealthCheckInterval: 30,
	}
	client := NewClient(cfg, DefaultModuleInfo(9000))

	// delivery failure is swallowed and logged
	client.EmitEvent(context.Background(), EventSystemHealth, nil)
}
