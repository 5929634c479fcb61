package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/alexos/chainbot/config"
	"github.com/alexos/chainbot/pkg/logger"
)

// ============================================================================
// MACLINK LOCAL RUNTIME PROVIDER
// ============================================================================

// RuntimeKind identifies a local model runtime.
type RuntimeKind string

const (
	RuntimeOllama       RuntimeKind = "ollama"
	RuntimeLlamaCpp     RuntimeKind = "llama_cpp"
	RuntimeLMStudio     RuntimeKind = "lm_studio"
	RuntimeTextGenWebUI RuntimeKind = "text_generation_webui"
	RuntimeCustom       RuntimeKind = "custom"
)

// ModelStatus is the health state of a discovered local model.
type ModelStatus string

const (
	ModelOffline  ModelStatus = "offline"
	ModelStarting ModelStatus = "starting"
	ModelOnline   ModelStatus = "online"
	ModelBusy     ModelStatus = "busy"
	ModelError    ModelStatus = "error"
)

// LocalModel is a model served by a local runtime.
type LocalModel struct {
	Name     string
	Kind     RuntimeKind
	Endpoint string
	Status   ModelStatus
	LastUsed time.Time
}

// MacLinkProvider routes completions to local model runtimes. Models are
// found by probing the configured runtime endpoints; a background loop
// re-probes them and flips model status as runtimes come and go.
type MacLinkProvider struct {
	cfg    config.MacLinkConfig
	http   *http.Client
	logger *slog.Logger

	mu     sync.RWMutex
	models map[string]*LocalModel
}

func NewMacLinkProvider(cfg config.MacLinkConfig) *MacLinkProvider {
	return &MacLinkProvider{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout()},
		logger: logger.New("llms.maclink"),
		models: make(map[string]*LocalModel),
	}
}

func (p *MacLinkProvider) Name() string {
	return ProviderMacLink
}

// Available reports whether any discovered model is currently online.
func (p *MacLinkProvider) Available() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, m := range p.models {
		if m.Status == ModelOnline || m.Status == ModelBusy {
			return true
		}
	}
	return false
}

func (p *MacLinkProvider) Models() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.models))
	for name := range p.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ModelStatusOf returns the status of a named model.
func (p *MacLinkProvider) ModelStatusOf(name string) (ModelStatus, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.models[name]
	if !ok {
		return "", false
	}
	return m.Status, true
}

// Discover probes every configured runtime endpoint and registers the
// models it serves. Models that disappeared are marked offline.
func (p *MacLinkProvider) Discover(ctx context.Context) error {
	found := make(map[string]*LocalModel)

	for _, ep := range p.cfg.Endpoints {
		names, err := p.probeEndpoint(ctx, RuntimeKind(ep.Kind), ep.URL)
		if err != nil {
			p.logger.Debug("runtime probe failed", "kind", ep.Kind, "url", ep.URL, "error", err)
			continue
		}
		for _, name := range names {
			found[name] = &LocalModel{
				Name:     name,
				Kind:     RuntimeKind(ep.Kind),
				Endpoint: ep.URL,
				Status:   ModelOnline,
			}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for name, m := range p.models {
		if _, ok := found[name]; !ok {
			m.Status = ModelOffline
		}
	}
	for name, m := range found {
		if existing, ok := p.models[name]; ok {
			if existing.Status != ModelBusy {
				existing.Status = ModelOnline
			}
			existing.Endpoint = m.Endpoint
			existing.Kind = m.Kind
		} else {
			p.models[name] = m
		}
	}

	p.logger.Info("local model discovery complete", "models", len(found))
	return nil
}

// RunHealthLoop re-probes runtimes on the configured interval until the
// context is cancelled.
func (p *MacLinkProvider) RunHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.HealthInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Discover(ctx); err != nil {
				p.logger.Warn("health probe failed", "error", err)
			}
		}
	}
}

// Generate routes the request to the runtime serving the requested model.
// The model is marked busy for the duration of the call.
func (p *MacLinkProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	p.mu.Lock()
	model, ok := p.models[req.Model]
	if !ok {
		p.mu.Unlock()
		return nil, NewProviderError(ProviderMacLink, "Generate",
			fmt.Sprintf("model %q", req.Model), ErrModelNotFound)
	}
	if model.Status == ModelOffline || model.Status == ModelError {
		p.mu.Unlock()
		return nil, NewProviderError(ProviderMacLink, "Generate",
			fmt.Sprintf("model %q is %s", req.Model, model.Status), ErrUnavailable)
	}
	model.Status = ModelBusy
	model.LastUsed = time.Now()
	kind, endpoint := model.Kind, model.Endpoint
	p.mu.Unlock()

	start := time.Now()
	var (
		content string
		tokens  int
		err     error
	)
	switch kind {
	case RuntimeOllama:
		content, tokens, err = p.generateOllama(ctx, endpoint, req)
	default:
		// llama.cpp, LM Studio and text-generation-webui all expose an
		// OpenAI-compatible chat endpoint.
		content, tokens, err = p.generateOpenAICompatible(ctx, endpoint, req)
	}

	p.mu.Lock()
	if m, ok := p.models[req.Model]; ok {
		if err != nil {
			m.Status = ModelError
		} else {
			m.Status = ModelOnline
		}
	}
	p.mu.Unlock()

	if err != nil {
		return nil, NewProviderError(ProviderMacLink, "Generate", "inference failed", err)
	}

	return &Response{
		Content:    content,
		Model:      req.Model,
		TokensUsed: tokens,
		Duration:   time.Since(start),
		Metadata: map[string]interface{}{
			"runtime": string(kind),
		},
	}, nil
}

func (p *MacLinkProvider) probeEndpoint(ctx context.Context, kind RuntimeKind, url string) ([]string, error) {
	switch kind {
	case RuntimeOllama:
		var parsed struct {
			Models []struct {
				Name string `json:"name"`
			} `json:"models"`
		}
		if err := p.getJSON(ctx, url+"/api/tags", &parsed); err != nil {
			return nil, err
		}
		names := make([]string, 0, len(parsed.Models))
		for _, m := range parsed.Models {
			names = append(names, m.Name)
		}
		return names, nil

	default:
		var parsed struct {
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := p.getJSON(ctx, url+"/v1/models", &parsed); err != nil {
			return nil, err
		}
		names := make([]string, 0, len(parsed.Data))
		for _, m := range parsed.Data {
			names = append(names, m.ID)
		}
		return names, nil
	}
}

func (p *MacLinkProvider) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (p *MacLinkProvider) generateOllama(ctx context.Context, endpoint string, req Request) (string, int, error) {
	prompt := req.Prompt
	if req.SystemMessage != "" {
		prompt = req.SystemMessage + "\n\n" + prompt
	}

	payload := map[string]interface{}{
		"model":  req.Model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": req.Temperature,
			"top_p":       req.TopP,
			"num_predict": req.MaxTokens,
		},
	}

	var parsed struct {
		Response  string `json:"response"`
		EvalCount int    `json:"eval_count"`
	}
	if err := p.postJSON(ctx, endpoint+"/api/generate", payload, &parsed); err != nil {
		return "", 0, err
	}
	return parsed.Response, parsed.EvalCount, nil
}

func (p *MacLinkProvider) generateOpenAICompatible(ctx context.Context, endpoint string, req Request) (string, int, error) {
	messages := make([]map[string]string, 0, len(req.History)+2)
	if req.SystemMessage != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.SystemMessage})
	}
	for _, turn := range req.History {
		messages = append(messages, map[string]string{"role": turn.Role, "content": turn.Content})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.Prompt})

	payload := map[string]interface{}{
		"model":       req.Model,
		"messages":    messages,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
		"stream":      false,
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := p.postJSON(ctx, endpoint+"/v1/chat/completions", payload, &parsed); err != nil {
		return "", 0, err
	}
	if len(parsed.Choices) == 0 {
		return "", 0, fmt.Errorf("response contained no choices")
	}
	return parsed.Choices[0].Message.Content, parsed.Usage.TotalTokens, nil
}

func (p *MacLinkProvider) postJSON(ctx context.Context, url string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
