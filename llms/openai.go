package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alexos/chainbot/config"
	"github.com/alexos/chainbot/internal/httpclient"
	"github.com/alexos/chainbot/pkg/logger"
)

// ============================================================================
// OPENAI PROVIDER
// ============================================================================

type modelLimit struct {
	maxTokens       int
	costPer1KTokens float64
}

// Per-model token caps and pricing used for request clamping and cost
// estimates.
var openAIModelLimits = map[string]modelLimit{
	"gpt-4":               {8192, 0.03},
	"gpt-4-turbo-preview": {128000, 0.01},
	"gpt-4o":              {128000, 0.005},
	"gpt-4o-mini":         {128000, 0.00015},
	"gpt-3.5-turbo":       {4096, 0.002},
	"gpt-3.5-turbo-16k":   {16384, 0.003},
}

// OpenAIProvider is a chat completion client with credential rotation,
// sliding-window rate accounting and retry on transient failures.
type OpenAIProvider struct {
	cfg    config.OpenAIConfig
	keys   *KeyManager
	http   *httpclient.Client
	logger *slog.Logger

	mu       sync.Mutex
	requests []time.Time
	tokens   int
}

func NewOpenAIProvider(cfg config.OpenAIConfig) *OpenAIProvider {
	keys := NewKeyManager()
	for i, key := range cfg.APIKeys {
		keys.Add(fmt.Sprintf("key-%d", i), key, cfg.OrganizationID)
	}

	return &OpenAIProvider{
		cfg:  cfg,
		keys: keys,
		http: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout()}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders),
		),
		logger: logger.New("llms.openai"),
	}
}

func (p *OpenAIProvider) Name() string {
	return ProviderOpenAI
}

// Available reports whether a credential is configured.
func (p *OpenAIProvider) Available() bool {
	return p.keys.Count() > 0
}

func (p *OpenAIProvider) Models() []string {
	models := make([]string, 0, len(openAIModelLimits))
	for model := range openAIModelLimits {
		models = append(models, model)
	}
	return models
}

// Keys exposes the credential manager for rotation and status.
func (p *OpenAIProvider) Keys() *KeyManager {
	return p.keys
}

// EstimateCost returns the estimated dollar cost for a token count.
func (p *OpenAIProvider) EstimateCost(model string, tokens int) float64 {
	limit, ok := openAIModelLimits[model]
	if !ok {
		return 0
	}
	return float64(tokens) / 1000 * limit.costPer1KTokens
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	TopP        float64         `json:"top_p,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	Stream      bool            `json:"stream"`
}

type openAIChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate sends a chat completion request. The credential and model are
// resolved at call time; the sliding rate window may delay the request.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	key, err := p.keys.Active()
	if err != nil {
		return nil, NewProviderError(ProviderOpenAI, "Generate", "no credential configured", err)
	}

	if err := p.waitForRateWindow(ctx); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}

	maxTokens := req.MaxTokens
	if limit, ok := openAIModelLimits[model]; ok && maxTokens > limit.maxTokens {
		maxTokens = limit.maxTokens
	}

	messages := make([]openAIMessage, 0, len(req.History)+2)
	if req.SystemMessage != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.SystemMessage})
	}
	for _, turn := range req.History {
		messages = append(messages, openAIMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.Prompt})

	payload := openAIChatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewProviderError(ProviderOpenAI, "Generate", "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError(ProviderOpenAI, "Generate", "failed to build request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key.Key)
	httpReq.Header.Set("Content-Type", "application/json")
	if key.OrganizationID != "" {
		httpReq.Header.Set("OpenAI-Organization", key.OrganizationID)
	}

	start := time.Now()
	resp, err := p.http.Do(httpReq)
	if err != nil {
		if httpclient.StatusCodeOf(err) == http.StatusUnauthorized && p.keys.Rotate() {
			p.logger.Warn("credential rejected, rotated to next key")
		}
		return nil, NewProviderError(ProviderOpenAI, "Generate", "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewProviderError(ProviderOpenAI, "Generate", "failed to read response", err)
	}

	var parsed openAIChatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, NewProviderError(ProviderOpenAI, "Generate", "failed to decode response", err)
	}
	if parsed.Error != nil {
		return nil, NewProviderError(ProviderOpenAI, "Generate", parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return nil, NewProviderError(ProviderOpenAI, "Generate", "response contained no choices", nil)
	}

	p.recordRequest(parsed.Usage.TotalTokens)

	return &Response{
		Content:      parsed.Choices[0].Message.Content,
		Model:        parsed.Model,
		TokensUsed:   parsed.Usage.TotalTokens,
		FinishReason: parsed.Choices[0].FinishReason,
		Duration:     time.Since(start),
		Metadata: map[string]interface{}{
			"temperature": req.Temperature,
			"max_tokens":  maxTokens,
		},
	}, nil
}

// ListModels fetches the account's model list, validating the credential.
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]string, error) {
	key, err := p.keys.Active()
	if err != nil {
		return nil, NewProviderError(ProviderOpenAI, "ListModels", "no credential configured", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/models", nil)
	if err != nil {
		return nil, NewProviderError(ProviderOpenAI, "ListModels", "failed to build request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key.Key)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, NewProviderError(ProviderOpenAI, "ListModels", "request failed", err)
	}
	defer resp.Body.Close()

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, NewProviderError(ProviderOpenAI, "ListModels", "failed to decode response", err)
	}

	models := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

// waitForRateWindow blocks until the sliding 60s request window has room.
func (p *OpenAIProvider) waitForRateWindow(ctx context.Context) error {
	for {
		p.mu.Lock()
		now := time.Now()
		cutoff := now.Add(-time.Minute)
		kept := p.requests[:0]
		for _, t := range p.requests {
			if t.After(cutoff) {
				kept = append(kept, t)
			}
		}
		p.requests = kept

		if len(p.requests) < p.cfg.RequestsPerMin {
			p.mu.Unlock()
			return nil
		}
		wait := time.Until(p.requests[0].Add(time.Minute))
		p.mu.Unlock()

		p.logger.Warn("rate window full, waiting", "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (p *OpenAIProvider) recordRequest(tokens int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, time.Now())
	p.tokens += tokens
}
