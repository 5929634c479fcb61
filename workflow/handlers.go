package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/alexos/chainbot/brain"
	"github.com/alexos/chainbot/expr"
	"github.com/alexos/chainbot/fanout"
	"github.com/alexos/chainbot/internal/httpclient"
	"github.com/alexos/chainbot/pkg/registry"
)

// ============================================================================
// STEP HANDLER REGISTRY
// ============================================================================

// StepContext is what a handler sees: the step with its interpolated
// config, and a snapshot of the execution variables.
type StepContext struct {
	Execution *ExecutionContext
	Step      *Step
	Config    map[string]interface{}
	Variables map[string]interface{}

	runner nestedRunner
}

// nestedRunner lets composite handlers (loop, parallel) execute nested
// steps through the orchestrator. With concurrent set the steps run
// side by side under the configured parallelism cap, otherwise in order.
type nestedRunner interface {
	runNested(ctx context.Context, exec *ExecutionContext, steps []Step, overlay map[string]interface{}, concurrent bool) (map[string]interface{}, error)
}

// Handler executes one step type.
type Handler interface {
	Name() string
	Execute(ctx context.Context, sc *StepContext) (map[string]interface{}, error)
}

// HandlerRegistry holds the step handlers by type name.
type HandlerRegistry struct {
	*registry.BaseRegistry[Handler]
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		BaseRegistry: registry.NewBaseRegistry[Handler](),
	}
}

// RegisterHandler adds a handler under its own name, replacing any
// previous registration so extensions can override built-ins.
func (r *HandlerRegistry) RegisterHandler(h Handler) error {
	if h == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	return r.Replace(h.Name(), h)
}

// AgentCaller is the slice of the agent manager the handlers need.
type AgentCaller interface {
	Send(ctx context.Context, agentID, message, sessionID string) (*brain.Response, error)
}

// Bus is the slice of the fanout hub the handlers need.
type Bus interface {
	BroadcastToWindow(window fanout.WindowType, msg fanout.Message) int
}

// RegisterBuiltins wires the built-in step handlers.
func RegisterBuiltins(r *HandlerRegistry, agents AgentCaller, bus Bus, httpc *httpclient.Client) {
	builtins := []Handler{
		&AgentTaskHandler{agents: agents},
		&APICallHandler{client: httpc},
		&ConditionHandler{},
		&LoopHandler{},
		&ParallelHandler{},
		&WaitHandler{},
		&TransformHandler{},
		&WebhookHandler{client: httpc},
		&NotificationHandler{bus: bus},
	}
	for _, h := range builtins {
		_ = r.RegisterHandler(h)
	}
}

func decodeConfig(config map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(config)
}

// ============================================================================
// AGENT TASK
// ============================================================================

// AgentTaskHandler sends a task to a managed agent and records its answer.
type AgentTaskHandler struct {
	agents AgentCaller
}

func (h *AgentTaskHandler) Name() string { return "agent_task" }

func (h *AgentTaskHandler) Execute(ctx context.Context, sc *StepContext) (map[string]interface{}, error) {
	var cfg struct {
		AgentID   string `mapstructure:"agent_id"`
		Task      string `mapstructure:"task"`
		SessionID string `mapstructure:"session_id"`
	}
	if err := decodeConfig(sc.Config, &cfg); err != nil {
		return nil, fmt.Errorf("invalid agent_task config: %w", err)
	}
	if cfg.AgentID == "" || cfg.Task == "" {
		return nil, fmt.Errorf("agent_task requires agent_id and task")
	}

	resp, err := h.agents.Send(ctx, cfg.AgentID, cfg.Task, cfg.SessionID)
	if err != nil {
		return nil, fmt.Errorf("agent task failed: %w", err)
	}

	return map[string]interface{}{
		"response":    resp.Content,
		"agent_id":    cfg.AgentID,
		"confidence":  resp.Confidence,
		"tokens_used": resp.TokensUsed,
	}, nil
}

// ============================================================================
// API CALL
// ============================================================================

// APICallHandler performs an HTTP request and returns status, headers and
// the decoded body.
type APICallHandler struct {
	client *httpclient.Client
}

func (h *APICallHandler) Name() string { return "api_call" }

func (h *APICallHandler) Execute(ctx context.Context, sc *StepContext) (map[string]interface{}, error) {
	var cfg struct {
		Method      string            `mapstructure:"method"`
		URL         string            `mapstructure:"url"`
		Headers     map[string]string `mapstructure:"headers"`
		Body        interface{}       `mapstructure:"body"`
		FailOnError *bool             `mapstructure:"fail_on_error"`
	}
	if err := decodeConfig(sc.Config, &cfg); err != nil {
		return nil, fmt.Errorf("invalid api_call config: %w", err)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("api_call requires url")
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}

	var body io.Reader
	if cfg.Body != nil {
		data, err := json.Marshal(cfg.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(cfg.Method), cfg.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if cfg.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := h.client.Do(req)
	if err != nil && resp == nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read response: %w", readErr)
	}

	var data interface{}
	if jsonErr := json.Unmarshal(raw, &data); jsonErr != nil {
		data = string(raw)
	}

	headers := make(map[string]interface{}, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	failOnError := cfg.FailOnError == nil || *cfg.FailOnError
	if failOnError && resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, cfg.URL)
	}

	return map[string]interface{}{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"data":        data,
	}, nil
}

// ============================================================================
// CONDITION
// ============================================================================

// ConditionHandler evaluates a predicate; drivers use its result to gate
// dependent steps.
type ConditionHandler struct{}

func (h *ConditionHandler) Name() string { return "condition" }

func (h *ConditionHandler) Execute(ctx context.Context, sc *StepContext) (map[string]interface{}, error) {
	condition, _ := sc.Config["condition"].(string)
	if condition == "" {
		return nil, fmt.Errorf("condition requires a condition expression")
	}

	return map[string]interface{}{
		"condition_result": expr.EvalPredicate(condition, sc.Variables),
	}, nil
}

// ============================================================================
// LOOP
// ============================================================================

// LoopHandler runs nested steps once per item, overlaying loop_item and
// loop_index for each iteration.
type LoopHandler struct{}

func (h *LoopHandler) Name() string { return "loop" }

func (h *LoopHandler) Execute(ctx context.Context, sc *StepContext) (map[string]interface{}, error) {
	items, err := resolveLoopItems(sc)
	if err != nil {
		return nil, err
	}

	steps, err := nestedSteps(sc.Config)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("loop requires nested steps")
	}

	results := make([]interface{}, 0, len(items))
	for index, item := range items {
		overlay := map[string]interface{}{
			"loop_item":  item,
			"loop_index": index,
		}
		iteration, err := sc.runner.runNested(ctx, sc.Execution, steps, overlay, false)
		if err != nil {
			return nil, fmt.Errorf("loop iteration %d failed: %w", index, err)
		}
		results = append(results, iteration)
	}

	return map[string]interface{}{
		"iterations": len(items),
		"results":    results,
	}, nil
}

func resolveLoopItems(sc *StepContext) ([]interface{}, error) {
	switch v := sc.Config["items"].(type) {
	case []interface{}:
		return v, nil
	case string:
		// A string names an execution variable holding the list
		value, ok := sc.Variables[v]
		if !ok {
			return nil, fmt.Errorf("loop items variable %q not found", v)
		}
		items, ok := value.([]interface{})
		if !ok {
			return nil, fmt.Errorf("loop items variable %q is not a list", v)
		}
		return items, nil
	case nil:
		return nil, fmt.Errorf("loop requires items")
	default:
		return nil, fmt.Errorf("loop items must be a list or a variable name")
	}
}

// ============================================================================
// PARALLEL
// ============================================================================

// ParallelHandler runs nested steps concurrently and collects their
// outputs per step id.
type ParallelHandler struct{}

func (h *ParallelHandler) Name() string { return "parallel" }

func (h *ParallelHandler) Execute(ctx context.Context, sc *StepContext) (map[string]interface{}, error) {
	steps, err := nestedSteps(sc.Config)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("parallel requires nested steps")
	}

	results, err := sc.runner.runNested(ctx, sc.Execution, steps, nil, true)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"results": results,
	}, nil
}

func nestedSteps(config map[string]interface{}) ([]Step, error) {
	raw, ok := config["steps"]
	if !ok {
		return nil, nil
	}
	var steps []Step
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &steps,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid nested steps: %w", err)
	}
	return steps, nil
}

// ============================================================================
// WAIT
// ============================================================================

// WaitHandler sleeps for the configured duration, honoring cancellation.
type WaitHandler struct{}

func (h *WaitHandler) Name() string { return "wait" }

func (h *WaitHandler) Execute(ctx context.Context, sc *StepContext) (map[string]interface{}, error) {
	var cfg struct {
		Duration float64 `mapstructure:"duration"` // seconds
	}
	if err := decodeConfig(sc.Config, &cfg); err != nil {
		return nil, fmt.Errorf("invalid wait config: %w", err)
	}
	if cfg.Duration <= 0 {
		return nil, fmt.Errorf("wait requires a positive duration")
	}

	d := time.Duration(cfg.Duration * float64(time.Second))
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(d):
	}

	return map[string]interface{}{
		"waited": cfg.Duration,
	}, nil
}

// ============================================================================
// TRANSFORM
// ============================================================================

// TransformHandler reshapes a value: JSON parse/stringify, template
// interpolation, and case folding.
type TransformHandler struct{}

func (h *TransformHandler) Name() string { return "transform" }

func (h *TransformHandler) Execute(ctx context.Context, sc *StepContext) (map[string]interface{}, error) {
	transformType, _ := sc.Config["type"].(string)
	input := sc.Config["input"]

	var result interface{}
	switch transformType {
	case "json_parse":
		s, ok := input.(string)
		if !ok {
			return nil, fmt.Errorf("json_parse requires a string input")
		}
		if err := json.Unmarshal([]byte(s), &result); err != nil {
			return nil, fmt.Errorf("json_parse failed: %w", err)
		}

	case "json_stringify":
		data, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("json_stringify failed: %w", err)
		}
		result = string(data)

	case "template":
		tmpl, ok := sc.Config["template"].(string)
		if !ok || tmpl == "" {
			return nil, fmt.Errorf("template transform requires a template string")
		}
		result = expr.Interpolate(tmpl, templateScope(sc.Variables, input))

	case "uppercase":
		result = strings.ToUpper(expr.Stringify(input))

	case "lowercase":
		result = strings.ToLower(expr.Stringify(input))

	default:
		return nil, fmt.Errorf("unknown transform type %q", transformType)
	}

	return map[string]interface{}{
		"transformed": result,
	}, nil
}

// templateScope layers the transform input over the execution variables: a
// map input contributes its keys, and the whole value is bound as "input".
func templateScope(vars map[string]interface{}, input interface{}) map[string]interface{} {
	scope := make(map[string]interface{}, len(vars)+1)
	for k, v := range vars {
		scope[k] = v
	}
	if m, ok := input.(map[string]interface{}); ok {
		for k, v := range m {
			scope[k] = v
		}
	}
	scope["input"] = input
	return scope
}

// ============================================================================
// WEBHOOK
// ============================================================================

// WebhookHandler POSTs an event envelope to an external URL.
type WebhookHandler struct {
	client *httpclient.Client
}

func (h *WebhookHandler) Name() string { return "webhook" }

func (h *WebhookHandler) Execute(ctx context.Context, sc *StepContext) (map[string]interface{}, error) {
	var cfg struct {
		URL     string      `mapstructure:"url"`
		Event   string      `mapstructure:"event"`
		Payload interface{} `mapstructure:"payload"`
	}
	if err := decodeConfig(sc.Config, &cfg); err != nil {
		return nil, fmt.Errorf("invalid webhook config: %w", err)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook requires url")
	}
	if cfg.Event == "" {
		cfg.Event = "workflow_step"
	}

	envelope := map[string]interface{}{
		"event":     cfg.Event,
		"payload":   cfg.Payload,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if resp == nil {
		return nil, fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	return map[string]interface{}{
		"status_code": resp.StatusCode,
		"delivered":   resp.StatusCode < 400,
	}, nil
}

// ============================================================================
// NOTIFICATION
// ============================================================================

// NotificationHandler broadcasts a message to a UI window, watchtower by
// default.
type NotificationHandler struct {
	bus Bus
}

func (h *NotificationHandler) Name() string { return "notification" }

func (h *NotificationHandler) Execute(ctx context.Context, sc *StepContext) (map[string]interface{}, error) {
	message, _ := sc.Config["message"].(string)
	if message == "" {
		return nil, fmt.Errorf("notification requires message")
	}

	window := fanout.WindowWatchtower
	if w, ok := sc.Config["window"].(string); ok && w != "" {
		window = fanout.WindowType(w)
		if !window.Valid() {
			return nil, fmt.Errorf("unknown window %q", w)
		}
	}

	recipients := h.bus.BroadcastToWindow(window, fanout.Message{
		Type:       fanout.MessageWorkflowUpdate,
		WorkflowID: sc.Execution.WorkflowID,
		Data: map[string]interface{}{
			"message":      message,
			"execution_id": sc.Execution.ID,
			"step_id":      sc.Step.ID,
		},
	})

	return map[string]interface{}{
		"delivered_to": recipients,
	}, nil
}
