package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexos/chainbot/brain"
	"github.com/alexos/chainbot/fanout"
)

type fakeCompleter struct {
	responses map[string]string // prompt -> response
	err       error
	requests  []brain.Request
}

func (f *fakeCompleter) Process(ctx context.Context, req brain.Request) (*brain.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	content, ok := f.responses[req.Prompt]
	if !ok {
		content = "echo: " + req.Prompt
	}
	return &brain.Response{Content: content, Provider: "openai", Model: "gpt-4o", Confidence: 0.8}, nil
}

type fakeBus struct {
	messages []fanout.Message
	windows  []fanout.WindowType
}

func (f *fakeBus) BroadcastToWindow(window fanout.WindowType, msg fanout.Message) int {
	f.windows = append(f.windows, window)
	f.messages = append(f.messages, msg)
	return 1
}

func (f *fakeBus) byType(t fanout.MessageType) []fanout.Message {
	var out []fanout.Message
	for _, m := range f.messages {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

type fakeAuditor struct {
	actions []string
	metas   []map[string]interface{}
}

func (f *fakeAuditor) LogAgent(ctx context.Context, agentID, action, actorID string, meta map[string]interface{}) {
	f.actions = append(f.actions, action)
	f.metas = append(f.metas, meta)
}

func newTestManager() (*Manager, *fakeCompleter, *fakeBus, *fakeAuditor) {
	completer := &fakeCompleter{responses: map[string]string{}}
	bus := &fakeBus{}
	auditor := &fakeAuditor{}
	return NewManager(completer, bus, auditor), completer, bus, auditor
}

func TestSpawn_ValidatesPerTypeConfig(t *testing.T) {
	m, _, _, _ := newTestManager()
	ctx := context.Background()

	// custom_gpt needs gpt_id and instructions
	_, err := m.Spawn(ctx, SpawnRequest{Type: TypeCustomGPT, Config: map[string]interface{}{"gpt_id": "g1"}})
	assert.Error(t, err)

	// chatgpt needs api_key
	_, err = m.Spawn(ctx, SpawnRequest{Type: TypeChatGPT, Config: map[string]interface{}{}})
	assert.Error(t, err)

	// unknown type rejected
	_, err = m.Spawn(ctx, SpawnRequest{Type: AgentType("robot")})
	assert.Error(t, err)

	agent, err := m.Spawn(ctx, SpawnRequest{
		Type:   TypeChatGPT,
		Config: map[string]interface{}{"api_key": "sk-x"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, agent.Status)
	assert.Contains(t, agent.Capabilities, "conversation")
	assert.NotEmpty(t, agent.Name)
}

func TestSpawn_BroadcastsAndAudits(t *testing.T) {
	m, _, bus, auditor := newTestManager()

	agent, err := m.Spawn(context.Background(), SpawnRequest{
		Name:   "helper",
		Type:   TypeWorkflow,
		Config: map[string]interface{}{},
	})
	require.NoError(t, err)

	spawns := bus.byType(fanout.MessageAgentSpawn)
	require.Len(t, spawns, 1)
	assert.Equal(t, fanout.WindowAgentMap, bus.windows[0])
	assert.Equal(t, agent.ID, spawns[0].AgentID)

	assert.Contains(t, auditor.actions, "spawned")
}

func TestSend_RoutesThroughTypePersona(t *testing.T) {
	m, completer, bus, _ := newTestManager()
	ctx := context.Background()

	alexAgent, err := m.Spawn(ctx, SpawnRequest{
		Type: TypeALEXOS,
		Config: map[string]interface{}{
			"agent_type":   "builder",
			"capabilities": []interface{}{"compile"},
		},
	})
	require.NoError(t, err)

	resp, err := m.Send(ctx, alexAgent.ID, "build it", "s1")
	require.NoError(t, err)
	assert.Equal(t, "echo: build it", resp.Content)

	// alex_os_agent talks through the code_assistant persona
	require.Len(t, completer.requests, 1)
	assert.Equal(t, "code_assistant", completer.requests[0].Persona)

	// response lands on the chat window
	responses := bus.byType(fanout.MessageAgentResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, "echo: build it", responses[0].Data["response"])

	got, err := m.Get(alexAgent.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, got.Status)
	assert.Equal(t, 1, got.Messages)
}

func TestSend_CustomPersonaFromConfig(t *testing.T) {
	m, completer, _, _ := newTestManager()
	ctx := context.Background()

	agent, err := m.Spawn(ctx, SpawnRequest{
		Type: TypeCustomGPT,
		Config: map[string]interface{}{
			"gpt_id":       "g1",
			"instructions": "be terse",
			"persona":      "analyst",
		},
	})
	require.NoError(t, err)

	_, err = m.Send(ctx, agent.ID, "analyze", "")
	require.NoError(t, err)
	assert.Equal(t, "analyst", completer.requests[0].Persona)
}

func TestSend_FailureSetsErrorStatus(t *testing.T) {
	m, completer, _, auditor := newTestManager()
	completer.err = errors.New("provider down")
	ctx := context.Background()

	agent, err := m.Spawn(ctx, SpawnRequest{Type: TypeGPT5})
	require.NoError(t, err)

	_, err = m.Send(ctx, agent.ID, "hi", "")
	require.Error(t, err)

	got, err := m.Get(agent.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Contains(t, auditor.actions, "message_failed")
}

func TestChain_PipesResponses(t *testing.T) {
	m, completer, _, _ := newTestManager()
	ctx := context.Background()

	completer.responses["start"] = "first out"
	completer.responses["first out"] = "second out"

	a1, err := m.Spawn(ctx, SpawnRequest{Type: TypeWorkflow})
	require.NoError(t, err)
	a2, err := m.Spawn(ctx, SpawnRequest{Type: TypeWorkflow})
	require.NoError(t, err)

	final, hops, err := m.Chain(ctx, []string{a1.ID, a2.ID}, "start", "s1")
	require.NoError(t, err)

	assert.Equal(t, "second out", final.Content)
	require.Len(t, hops, 2)
	assert.Equal(t, "start", hops[0].Prompt)
	assert.Equal(t, "first out", hops[0].Response)
	assert.Equal(t, "first out", hops[1].Prompt)
	assert.Equal(t, "second out", hops[1].Response)
}

func TestChain_UnknownAgentBreaksChain(t *testing.T) {
	m, _, _, _ := newTestManager()

	_, _, err := m.Chain(context.Background(), []string{"missing"}, "go", "")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestKill_RemovesAndBroadcasts(t *testing.T) {
	m, _, bus, _ := newTestManager()
	ctx := context.Background()

	agent, err := m.Spawn(ctx, SpawnRequest{Type: TypeGPT5})
	require.NoError(t, err)

	require.NoError(t, m.Kill(ctx, agent.ID, "u1"))

	_, err = m.Get(agent.ID)
	assert.ErrorIs(t, err, ErrAgentNotFound)

	kills := bus.byType(fanout.MessageAgentKill)
	require.Len(t, kills, 1)
	assert.Equal(t, agent.ID, kills[0].AgentID)

	assert.ErrorIs(t, m.Kill(ctx, agent.ID, "u1"), ErrAgentNotFound)
}

func TestFindByCapability(t *testing.T) {
	m, _, _, _ := newTestManager()
	ctx := context.Background()

	_, err := m.Spawn(ctx, SpawnRequest{Type: TypeWorkflow})
	require.NoError(t, err)
	_, err = m.Spawn(ctx, SpawnRequest{Type: TypeSupervisor})
	require.NoError(t, err)

	found := m.FindByCapability("task_automation")
	require.Len(t, found, 1)
	assert.Equal(t, TypeWorkflow, found[0].Type)
}
