package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  port: 9100
`))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.DefaultModel)
	assert.Equal(t, 30, cfg.MacLink.HealthCheckInterval)
	assert.Equal(t, 30, cfg.WebSocket.IdleTimeoutMinutes)
	assert.Equal(t, 20, cfg.Agent.HistoryWindow)
	assert.Equal(t, 5, cfg.Workflow.MaxParallel)
	assert.Equal(t, []string{"password", "token", "secret", "api_key"}, cfg.Security.RedactKeys)
}

func TestParse_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("CHAINBOT_TEST_KEY", "sk-test-123")

	cfg, err := Parse([]byte(`
openai:
  api_keys:
    - ${CHAINBOT_TEST_KEY}
  default_model: ${CHAINBOT_TEST_MODEL:-gpt-4o-mini}
`))
	require.NoError(t, err)

	require.Len(t, cfg.OpenAI.APIKeys, 1)
	assert.Equal(t, "sk-test-123", cfg.OpenAI.APIKeys[0])
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.DefaultModel)
}

func TestParse_RejectsInvalidValues(t *testing.T) {
	_, err := Parse([]byte(`
server:
  port: 99999
`))
	assert.Error(t, err)

	_, err = Parse([]byte(`
logging:
  format: xml
`))
	assert.Error(t, err)
}

func TestExpandEnvVarsInData_RetypesValues(t *testing.T) {
	t.Setenv("CHAINBOT_TEST_PORT", "8088")
	t.Setenv("CHAINBOT_TEST_FLAG", "true")

	data := map[string]interface{}{
		"port": "${CHAINBOT_TEST_PORT}",
		"flag": "$CHAINBOT_TEST_FLAG",
		"list": []interface{}{"${CHAINBOT_TEST_PORT}"},
	}

	out := ExpandEnvVarsInData(data).(map[string]interface{})

	assert.Equal(t, 8088, out["port"])
	assert.Equal(t, true, out["flag"])
	assert.Equal(t, []interface{}{8088}, out["list"])
}
