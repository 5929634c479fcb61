package component

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexos/chainbot/agents"
	"github.com/alexos/chainbot/config"
)

func TestNew_WiresEverySubsystem(t *testing.T) {
	cfg := config.Default()
	cfg.OpenAI.APIKeys = []string{"sk-test"}

	core, err := New(cfg)
	require.NoError(t, err)

	assert.NotNil(t, core.Hub())
	assert.NotNil(t, core.Audit())
	assert.NotNil(t, core.Brain())
	assert.NotNil(t, core.Agents())
	assert.NotNil(t, core.Orchestrator())
	assert.NotNil(t, core.Entangle())
	assert.NotNil(t, core.Host())
	assert.Equal(t, cfg, core.Config())

	// both providers registered when keys are present
	assert.ElementsMatch(t, []string{"openai", "maclink"}, core.Providers().Names())
}

func TestNew_SkipsOpenAIWithoutKeys(t *testing.T) {
	core, err := New(config.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{"maclink"}, core.Providers().Names())
}

func TestHealth(t *testing.T) {
	core, err := New(config.Default())
	require.NoError(t, err)

	_, err = core.Agents().Spawn(context.Background(), agents.SpawnRequest{Type: agents.TypeWorkflow})
	require.NoError(t, err)

	health := core.Health()
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, 1, health["agents"])
	assert.Contains(t, health["providers"], "maclink")
	assert.NotNil(t, health["websocket"])
	assert.Equal(t, false, health["alexos_attached"])
}

func TestParseAssignments(t *testing.T) {
	vars := parseAssignments([]string{"env=prod", "count=3", "notanassignment", "=bad"})
	assert.Equal(t, map[string]interface{}{
		"env":   "prod",
		"count": "3",
	}, vars)
}
