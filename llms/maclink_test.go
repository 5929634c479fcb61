package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexos/chainbot/config"
)

func fakeOllama(t *testing.T, online *atomic.Bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !online.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		switch r.URL.Path {
		case "/api/tags":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"models": []map[string]string{{"name": "llama2"}, {"name": "mistral"}},
			})
		case "/api/generate":
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, false, payload["stream"])
			json.NewEncoder(w).Encode(map[string]interface{}{
				"response":   "local says hi",
				"eval_count": 9,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func maclinkConfig(url string) config.MacLinkConfig {
	cfg := config.MacLinkConfig{
		Endpoints: []config.RuntimeEndpoint{{Kind: "ollama", URL: url}},
	}
	cfg.SetDefaults()
	return cfg
}

func TestMacLinkProvider_DiscoverAndGenerate(t *testing.T) {
	var online atomic.Bool
	online.Store(true)
	srv := fakeOllama(t, &online)
	defer srv.Close()

	p := NewMacLinkProvider(maclinkConfig(srv.URL))
	require.NoError(t, p.Discover(context.Background()))

	assert.Equal(t, []string{"llama2", "mistral"}, p.Models())
	assert.True(t, p.Available())

	status, ok := p.ModelStatusOf("llama2")
	require.True(t, ok)
	assert.Equal(t, ModelOnline, status)

	resp, err := p.Generate(context.Background(), Request{
		Prompt: "hello",
		Model:  "llama2",
	})
	require.NoError(t, err)
	assert.Equal(t, "local says hi", resp.Content)
	assert.Equal(t, 9, resp.TokensUsed)

	status, _ = p.ModelStatusOf("llama2")
	assert.Equal(t, ModelOnline, status)
}

func TestMacLinkProvider_UnknownModel(t *testing.T) {
	p := NewMacLinkProvider(maclinkConfig("http://127.0.0.1:0"))

	_, err := p.Generate(context.Background(), Request{Prompt: "hi", Model: "nope"})
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestMacLinkProvider_MarksVanishedModelsOffline(t *testing.T) {
	var online atomic.Bool
	online.Store(true)
	srv := fakeOllama(t, &online)
	defer srv.Close()

	p := NewMacLinkProvider(maclinkConfig(srv.URL))
	require.NoError(t, p.Discover(context.Background()))
	require.True(t, p.Available())

	// The runtime goes away; the next probe marks its models offline
	online.Store(false)
	require.NoError(t, p.Discover(context.Background()))

	status, ok := p.ModelStatusOf("llama2")
	require.True(t, ok)
	assert.Equal(t, ModelOffline, status)
	assert.False(t, p.Available())

	_, err := p.Generate(context.Background(), Request{Prompt: "hi", Model: "llama2"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestProviderSet_FirstAvailable(t *testing.T) {
	var online atomic.Bool
	online.Store(true)
	srv := fakeOllama(t, &online)
	defer srv.Close()

	local := NewMacLinkProvider(maclinkConfig(srv.URL))
	require.NoError(t, local.Discover(context.Background()))

	remote := NewOpenAIProvider(openAIConfig("http://unused")) // no keys, unavailable

	set := NewProviderSet()
	require.NoError(t, set.RegisterProvider(remote))
	require.NoError(t, set.RegisterProvider(local))

	assert.Equal(t, []string{ProviderMacLink}, set.Available())

	// Preferred provider is unavailable, so selection falls through
	p, ok := set.FirstAvailable(ProviderOpenAI)
	require.True(t, ok)
	assert.Equal(t, ProviderMacLink, p.Name())
}
