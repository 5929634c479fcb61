// Package brain routes agent prompts to completion providers. It resolves a
// persona, selects a provider and model with availability fallback, carries a
// bounded conversation window, and scores each response with a confidence
// heuristic.
package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alexos/chainbot/config"
	"github.com/alexos/chainbot/llms"
	"github.com/alexos/chainbot/pkg/logger"
)

var (
	ErrNoProvider     = errors.New("no completion provider available")
	ErrUnknownPersona = errors.New("unknown persona")
)

// Request asks the brain for one completion on behalf of an agent.
type Request struct {
	AgentID     string
	SessionID   string
	Prompt      string
	Persona     string
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
	Context     map[string]interface{}
}

// Response is the scored completion returned to the caller.
type Response struct {
	Content    string
	Provider   string
	Model      string
	TokensUsed int
	Duration   time.Duration
	Confidence float64
	Metadata   map[string]interface{}
}

// ProviderStats accumulates per-provider outcome counts.
type ProviderStats struct {
	Requests  int
	Successes int
	Failures  int
	Tokens    int
}

// Brain is the completion router.
type Brain struct {
	providers *llms.ProviderSet
	personas  *PersonaStore
	history   *HistoryStore
	cfg       config.AgentConfig
	logger    *slog.Logger

	mu         sync.Mutex
	stats      map[string]*ProviderStats
	agentLocks map[string]*sync.Mutex
}

func New(providers *llms.ProviderSet, cfg config.AgentConfig) *Brain {
	return &Brain{
		providers:  providers,
		personas:   NewPersonaStore(),
		history:    NewHistoryStore(cfg.HistoryWindow),
		cfg:        cfg,
		logger:     logger.New("brain"),
		stats:      make(map[string]*ProviderStats),
		agentLocks: make(map[string]*sync.Mutex),
	}
}

// Personas exposes the persona store.
func (b *Brain) Personas() *PersonaStore {
	return b.personas
}

// History exposes the conversation store.
func (b *Brain) History() *HistoryStore {
	return b.history
}

// Process resolves the persona, selects a provider and model, and generates
// one completion. Provider fallback happens here, at selection time only:
// once a provider is chosen, a mid-call failure surfaces to the caller.
// Calls for the same agent are serialized so its conversation window sees
// at most one completion in flight.
func (b *Brain) Process(ctx context.Context, req Request) (*Response, error) {
	persona, err := b.resolvePersona(req.Persona)
	if err != nil {
		return nil, err
	}

	unlock := b.lockAgent(req.AgentID)
	defer unlock()

	provider, model, requested, err := b.selectProviderAndModel(req, persona)
	if err != nil {
		return nil, err
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = persona.MaxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = persona.Temperature
	}

	llmReq := llms.Request{
		Prompt:        req.Prompt,
		Model:         model,
		SystemMessage: persona.SystemPrompt,
		History:       b.history.Recent(req.AgentID),
		MaxTokens:     maxTokens,
		Temperature:   temperature,
	}

	b.recordRequest(provider.Name())

	resp, err := provider.Generate(ctx, llmReq)
	if err != nil {
		b.recordFailure(provider.Name())
		return nil, fmt.Errorf("completion failed: %w", err)
	}
	b.recordSuccess(provider.Name(), resp.TokensUsed)

	if req.AgentID != "" {
		b.history.Append(req.AgentID,
			llms.Turn{Role: "user", Content: req.Prompt},
			llms.Turn{Role: "assistant", Content: resp.Content},
		)
	}

	metadata := map[string]interface{}{
		"persona": persona.Name,
		"agent":   req.AgentID,
	}
	if requested != "" && requested != provider.Name() {
		metadata["requested_provider"] = requested
		metadata["provider_substituted"] = true
	}

	return &Response{
		Content:    resp.Content,
		Provider:   provider.Name(),
		Model:      model,
		TokensUsed: resp.TokensUsed,
		Duration:   resp.Duration,
		Confidence: confidenceScore(resp.Content),
		Metadata:   metadata,
	}, nil
}

// lockAgent serializes completions per agent. Requests without an agent id
// run unserialized.
func (b *Brain) lockAgent(agentID string) func() {
	if agentID == "" {
		return func() {}
	}
	b.mu.Lock()
	l, ok := b.agentLocks[agentID]
	if !ok {
		l = &sync.Mutex{}
		b.agentLocks[agentID] = l
	}
	b.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (b *Brain) resolvePersona(name string) (*Persona, error) {
	if name == "" {
		name = b.cfg.DefaultPersona
	}
	persona, ok := b.personas.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPersona, name)
	}
	return persona, nil
}

// selectProviderAndModel applies the selection precedence: request override,
// then persona preference, then any available provider with its default
// model. An unavailable preference falls back with a warning; the preferred
// name comes back so the caller can report the substitution.
func (b *Brain) selectProviderAndModel(req Request, persona *Persona) (llms.Provider, string, string, error) {
	preferred := req.Provider
	model := req.Model
	if preferred == "" {
		preferred = persona.Provider
	}
	if model == "" {
		model = persona.Model
	}

	provider, ok := b.providers.FirstAvailable(preferred)
	if !ok {
		return nil, "", "", ErrNoProvider
	}

	if provider.Name() != preferred {
		b.logger.Warn("preferred provider unavailable, falling back",
			"preferred", preferred, "selected", provider.Name())
		// The preferred model belongs to the preferred provider; pick one
		// the fallback can serve.
		if models := provider.Models(); len(models) > 0 {
			model = models[0]
		}
	}

	return provider, model, preferred, nil
}

// Stats returns a copy of the per-provider outcome counters.
func (b *Brain) Stats() map[string]ProviderStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]ProviderStats, len(b.stats))
	for name, s := range b.stats {
		out[name] = *s
	}
	return out
}

func (b *Brain) statsFor(provider string) *ProviderStats {
	s, ok := b.stats[provider]
	if !ok {
		s = &ProviderStats{}
		b.stats[provider] = s
	}
	return s
}

func (b *Brain) recordRequest(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statsFor(provider).Requests++
}

func (b *Brain) recordSuccess(provider string, tokens int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.statsFor(provider)
	s.Successes++
	s.Tokens += tokens
}

func (b *Brain) recordFailure(provider string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statsFor(provider).Failures++
}

// confidenceScore is a cheap response-quality heuristic in [0, 1].
func confidenceScore(content string) float64 {
	score := 0.5

	if len(content) > 50 {
		score += 0.1
	}

	trimmed := strings.TrimSpace(content)
	if strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "!") || strings.HasSuffix(trimmed, "?") {
		score += 0.1
	}

	words := strings.Fields(content)
	if len(words) > 10 {
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[strings.ToLower(w)] = struct{}{}
		}
		diversity := float64(len(unique)) / float64(len(words))
		score += diversity * 0.2
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
