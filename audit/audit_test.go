package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexos/chainbot/config"
	"github.com/alexos/chainbot/fanout"
)

type captureBus struct {
	messages []fanout.Message
	windows  []fanout.WindowType
}

func (c *captureBus) BroadcastToWindow(window fanout.WindowType, msg fanout.Message) int {
	c.windows = append(c.windows, window)
	c.messages = append(c.messages, msg)
	return 1
}

func newTestSink(bus Broadcaster) *Sink {
	auditCfg := config.AuditConfig{}
	auditCfg.SetDefaults()
	secCfg := config.SecurityConfig{}
	secCfg.SetDefaults()
	return NewSink(auditCfg, secCfg, bus)
}

func TestLog_RedactsSensitiveKeysAtAnyDepth(t *testing.T) {
	sink := newTestSink(nil)

	sink.Log(context.Background(), Record{
		Action:     "agent.created",
		ActorID:    "u1",
		TargetType: "agent",
		TargetID:   "a1",
		Meta: map[string]interface{}{
			"name":    "helper",
			"api_key": "sk-secret",
			"nested": map[string]interface{}{
				"Password": "hunter2",
				"safe":     "visible",
			},
			"list": []interface{}{
				map[string]interface{}{"TOKEN": "abc", "id": 7},
				"plain",
			},
		},
	})

	trail := sink.Trail(Filter{})
	require.Len(t, trail, 1)
	meta := trail[0].Meta

	assert.Equal(t, "[REDACTED]", meta["api_key"])
	assert.Equal(t, "helper", meta["name"])

	nested := meta["nested"].(map[string]interface{})
	assert.Equal(t, "[REDACTED]", nested["Password"])
	assert.Equal(t, "visible", nested["safe"])

	list := meta["list"].([]interface{})
	inner := list[0].(map[string]interface{})
	assert.Equal(t, "[REDACTED]", inner["TOKEN"])
	assert.Equal(t, 7, inner["id"])
	assert.Equal(t, "plain", list[1])
}

func TestLog_BroadcastsToWatchtower(t *testing.T) {
	bus := &captureBus{}
	sink := newTestSink(bus)

	sink.LogAgent(context.Background(), "a1", "spawned", "u1", map[string]interface{}{"secret": "x"})

	require.Len(t, bus.messages, 1)
	assert.Equal(t, fanout.WindowWatchtower, bus.windows[0])
	assert.Equal(t, fanout.MessageAuditEvent, bus.messages[0].Type)
	assert.Equal(t, "agent.spawned", bus.messages[0].Data["action"])

	meta := bus.messages[0].Data["meta"].(map[string]interface{})
	assert.Equal(t, "[REDACTED]", meta["secret"])
}

func TestLog_DisabledSinkRecordsNothing(t *testing.T) {
	cfg := config.AuditConfig{Disabled: true}
	cfg.SetDefaults()
	secCfg := config.SecurityConfig{}
	secCfg.SetDefaults()
	sink := NewSink(cfg, secCfg, nil)

	sink.Log(context.Background(), Record{Action: "x"})
	assert.Empty(t, sink.Trail(Filter{}))
}

func TestTrail_FiltersAndOrdersNewestFirst(t *testing.T) {
	sink := newTestSink(nil)
	ctx := context.Background()

	sink.LogWorkflow(ctx, "w1", "started", "u1", nil)
	sink.LogWorkflow(ctx, "w1", "completed", "u1", nil)
	sink.LogAgent(ctx, "a1", "spawned", "u2", nil)

	workflows := sink.Trail(Filter{TargetType: "workflow"})
	require.Len(t, workflows, 2)
	assert.Equal(t, "workflow.completed", workflows[0].Action)
	assert.Equal(t, "workflow.started", workflows[1].Action)

	byActor := sink.Trail(Filter{ActorID: "u2"})
	require.Len(t, byActor, 1)
	assert.Equal(t, "agent.spawned", byActor[0].Action)

	limited := sink.Trail(Filter{Limit: 1})
	require.Len(t, limited, 1)
}

func TestSink_RingStaysBounded(t *testing.T) {
	cfg := config.AuditConfig{BufferSize: 5}
	secCfg := config.SecurityConfig{}
	secCfg.SetDefaults()
	sink := NewSink(cfg, secCfg, nil)

	for i := 0; i < 20; i++ {
		sink.Log(context.Background(), Record{Action: "tick", ActorID: "u1"})
	}

	trail := sink.Trail(Filter{Limit: 100})
	assert.Len(t, trail, 5)
}

func TestStats(t *testing.T) {
	sink := newTestSink(nil)
	ctx := context.Background()

	sink.LogWorkflow(ctx, "w1", "started", "u1", nil)
	sink.LogWorkflow(ctx, "w2", "started", "u1", nil)
	sink.LogAgent(ctx, "a1", "spawned", "u2", nil)

	stats := sink.Stats(time.Time{}, time.Time{})
	assert.Equal(t, 3, stats["total_events"])

	actions := stats["action_distribution"].(map[string]int)
	assert.Equal(t, 2, actions["workflow.started"])

	actors := stats["actor_activity"].(map[string]int)
	assert.Equal(t, 2, actors["u1"])
	assert.Equal(t, 1, actors["u2"])
}
