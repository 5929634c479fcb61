package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexos/chainbot/config"
	"github.com/alexos/chainbot/fanout"
)

type recordBus struct {
	mu       sync.Mutex
	messages []fanout.Message
	windows  []fanout.WindowType
}

func (b *recordBus) BroadcastToWindow(window fanout.WindowType, msg fanout.Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.windows = append(b.windows, window)
	b.messages = append(b.messages, msg)
	return 1
}

func (b *recordBus) seenWindows() []fanout.WindowType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]fanout.WindowType, len(b.windows))
	copy(out, b.windows)
	return out
}

func (b *recordBus) byType(t fanout.MessageType) []fanout.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []fanout.Message
	for _, m := range b.messages {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

type recordAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordAuditor) LogWorkflow(ctx context.Context, workflowID, action, actorID string, meta map[string]interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
}

func (a *recordAuditor) has(action string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, got := range a.actions {
		if got == action {
			return true
		}
	}
	return false
}

// echoHandler records execution order and echoes its config.
type echoHandler struct {
	mu    sync.Mutex
	order []string
}

func (h *echoHandler) Name() string { return "echo" }

func (h *echoHandler) Execute(ctx context.Context, sc *StepContext) (map[string]interface{}, error) {
	h.mu.Lock()
	h.order = append(h.order, sc.Step.ID)
	h.mu.Unlock()
	return map[string]interface{}{"echo": sc.Config["value"]}, nil
}

func (h *echoHandler) ran() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.order))
	copy(out, h.order)
	return out
}

// flakyHandler fails its first n calls, then succeeds.
type flakyHandler struct {
	failures int32
	calls    int32
}

func (h *flakyHandler) Name() string { return "flaky" }

func (h *flakyHandler) Execute(ctx context.Context, sc *StepContext) (map[string]interface{}, error) {
	call := atomic.AddInt32(&h.calls, 1)
	if call <= atomic.LoadInt32(&h.failures) {
		return nil, errors.New("transient failure")
	}
	return map[string]interface{}{"call": int(call)}, nil
}

// blockHandler signals when it starts and waits for release or cancel.
type blockHandler struct {
	started chan struct{}
	release chan struct{}
}

func newBlockHandler() *blockHandler {
	return &blockHandler{
		started: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
}

func (h *blockHandler) Name() string { return "block" }

func (h *blockHandler) Execute(ctx context.Context, sc *StepContext) (map[string]interface{}, error) {
	h.started <- struct{}{}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.release:
		return map[string]interface{}{}, nil
	}
}

// gaugeHandler tracks how many Execute calls overlap.
type gaugeHandler struct {
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (h *gaugeHandler) Name() string { return "gauge" }

func (h *gaugeHandler) Execute(ctx context.Context, sc *StepContext) (map[string]interface{}, error) {
	h.mu.Lock()
	h.inFlight++
	if h.inFlight > h.peak {
		h.peak = h.inFlight
	}
	h.mu.Unlock()

	time.Sleep(10 * time.Millisecond)

	h.mu.Lock()
	h.inFlight--
	h.mu.Unlock()
	return map[string]interface{}{}, nil
}

func newTestOrchestrator(t *testing.T, extra ...Handler) (*Orchestrator, *echoHandler, *recordBus, *recordAuditor) {
	t.Helper()

	cfg := config.WorkflowConfig{}
	cfg.SetDefaults()

	handlers := NewHandlerRegistry()
	echo := &echoHandler{}
	require.NoError(t, handlers.RegisterHandler(echo))
	require.NoError(t, handlers.RegisterHandler(&ConditionHandler{}))
	require.NoError(t, handlers.RegisterHandler(&TransformHandler{}))
	require.NoError(t, handlers.RegisterHandler(&LoopHandler{}))
	require.NoError(t, handlers.RegisterHandler(&ParallelHandler{}))
	for _, h := range extra {
		require.NoError(t, handlers.RegisterHandler(h))
	}

	bus := &recordBus{}
	auditor := &recordAuditor{}
	return NewOrchestrator(cfg, handlers, bus, auditor), echo, bus, auditor
}

func waitDone(t *testing.T, exec *ExecutionContext) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-exec.Events():
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timeout:
			t.Fatal("execution did not finish in time")
		}
	}
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestExecute_SequentialRunsInOrder(t *testing.T) {
	o, echo, bus, auditor := newTestOrchestrator(t)

	def := &Definition{
		ID:   "wf-seq",
		Name: "sequential",
		Type: TypeSequential,
		Steps: []Step{
			{ID: "s1", Type: "echo", Config: map[string]interface{}{"value": "one"}, OutputVariable: "first"},
			{ID: "s2", Type: "echo", Config: map[string]interface{}{"value": "${greeting}"}},
			{ID: "s3", Type: "echo", DependsOn: []string{"s2"}},
		},
	}

	exec, err := o.Execute(context.Background(), def, map[string]interface{}{"greeting": "hello"})
	require.NoError(t, err)

	events := waitDone(t, exec)
	assert.Equal(t, ExecutionCompleted, exec.Status())
	assert.Equal(t, []string{"s1", "s2", "s3"}, echo.ran())

	// interpolation resolved the variable before the handler saw it
	r2, ok := exec.StepResultFor("s2")
	require.True(t, ok)
	assert.Equal(t, "hello", r2.Output["echo"])

	// output_variable landed in the execution variables
	first, ok := exec.Variable("first")
	require.True(t, ok)
	assert.Equal(t, "one", first.(map[string]interface{})["echo"])

	types := eventTypes(events)
	assert.Equal(t, EventWorkflowStarted, types[0])
	assert.Equal(t, EventWorkflowCompleted, types[len(types)-1])

	require.Len(t, bus.byType(fanout.MessageWorkflowStarted), 1)
	require.Len(t, bus.byType(fanout.MessageWorkflowCompleted), 1)
	for _, window := range bus.seenWindows() {
		assert.Equal(t, fanout.WindowWorkflowBuilder, window, "status transitions go to the builder window")
	}
	assert.True(t, auditor.has("started"))
	assert.True(t, auditor.has("completed"))
}

func TestExecute_TemplateThenConditionPipeline(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)

	def := &Definition{
		ID:   "wf-greet",
		Type: TypeSequential,
		Steps: []Step{
			{ID: "s1", Type: "transform", Config: map[string]interface{}{
				"type":     "template",
				"input":    "hi",
				"template": "say ${input}",
			}, OutputVariable: "greeting"},
			{ID: "s2", Type: "condition", Config: map[string]interface{}{
				"condition": "greeting contains say",
			}},
		},
	}

	exec, err := o.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	waitDone(t, exec)
	require.Equal(t, ExecutionCompleted, exec.Status())

	r1, ok := exec.StepResultFor("s1")
	require.True(t, ok)
	assert.Equal(t, "say hi", r1.Output["transformed"])

	r2, ok := exec.StepResultFor("s2")
	require.True(t, ok)
	assert.Equal(t, true, r2.Output["condition_result"])

	greeting, ok := exec.Variable("greeting")
	require.True(t, ok)
	assert.Equal(t, "say hi", greeting.(map[string]interface{})["transformed"])
}

func TestExecute_EmptyStepListCompletesImmediately(t *testing.T) {
	o, _, bus, _ := newTestOrchestrator(t)

	def := &Definition{ID: "wf-empty", Name: "empty", Type: TypeSequential}

	exec, err := o.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	events := waitDone(t, exec)
	assert.Equal(t, ExecutionCompleted, exec.Status())
	assert.Empty(t, exec.StepResults())
	assert.Equal(t, []EventType{EventWorkflowStarted, EventWorkflowCompleted}, eventTypes(events))
	require.Len(t, bus.byType(fanout.MessageWorkflowCompleted), 1)
}

func TestExecute_MaxParallelStepsCapsConcurrency(t *testing.T) {
	gauge := &gaugeHandler{}
	o, _, _, _ := newTestOrchestrator(t, gauge)

	def := &Definition{
		ID:               "wf-cap",
		Type:             TypeParallel,
		MaxParallelSteps: 2,
		Steps: []Step{
			{ID: "a", Type: "gauge"},
			{ID: "b", Type: "gauge"},
			{ID: "c", Type: "gauge"},
			{ID: "d", Type: "gauge"},
		},
	}

	exec, err := o.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	waitDone(t, exec)
	require.Equal(t, ExecutionCompleted, exec.Status())
	assert.Len(t, exec.StepResults(), 4)

	gauge.mu.Lock()
	defer gauge.mu.Unlock()
	assert.LessOrEqual(t, gauge.peak, 2, "per-execution cap bounds concurrent steps")
}

func TestExecute_RetrySucceedsWithCleanRecord(t *testing.T) {
	flaky := &flakyHandler{failures: 2}
	o, _, _, _ := newTestOrchestrator(t, flaky)

	def := &Definition{
		ID:   "wf-retry",
		Type: TypeSequential,
		Steps: []Step{
			{ID: "s1", Type: "flaky", OnFailure: FailureRetry, MaxRetries: 3},
		},
	}

	exec, err := o.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	events := waitDone(t, exec)
	assert.Equal(t, ExecutionCompleted, exec.Status())

	result, ok := exec.StepResultFor("s1")
	require.True(t, ok)
	assert.Equal(t, StepCompleted, result.Status)
	assert.Equal(t, 3, result.Attempts)
	assert.Empty(t, result.Error, "a successful retry must not leave a stale error")

	retries := 0
	for _, e := range events {
		if e.Type == EventStepRetried {
			retries++
		}
	}
	assert.Equal(t, 2, retries)
}

func TestExecute_RetryExhaustionFailsWorkflow(t *testing.T) {
	flaky := &flakyHandler{failures: 100}
	o, _, bus, auditor := newTestOrchestrator(t, flaky)

	def := &Definition{
		ID:   "wf-exhaust",
		Type: TypeSequential,
		Steps: []Step{
			{ID: "s1", Type: "flaky", OnFailure: FailureRetry, MaxRetries: 2},
		},
	}

	exec, err := o.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	waitDone(t, exec)
	assert.Equal(t, ExecutionFailed, exec.Status())
	assert.NotEmpty(t, exec.Err())

	result, _ := exec.StepResultFor("s1")
	assert.Equal(t, StepFailed, result.Status)
	assert.Equal(t, 3, result.Attempts)

	require.Len(t, bus.byType(fanout.MessageWorkflowFailed), 1)
	assert.True(t, auditor.has("failed"))
}

func TestExecute_ContinuePolicySkipsDependents(t *testing.T) {
	flaky := &flakyHandler{failures: 100}
	o, echo, _, _ := newTestOrchestrator(t, flaky)

	def := &Definition{
		ID:   "wf-continue",
		Type: TypeSequential,
		Steps: []Step{
			{ID: "s1", Type: "flaky", OnFailure: FailureContinue},
			{ID: "s2", Type: "echo", DependsOn: []string{"s1"}},
			{ID: "s3", Type: "echo"},
		},
	}

	exec, err := o.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	waitDone(t, exec)
	assert.Equal(t, ExecutionCompleted, exec.Status())

	r1, _ := exec.StepResultFor("s1")
	assert.Equal(t, StepFailed, r1.Status)
	r2, _ := exec.StepResultFor("s2")
	assert.Equal(t, StepSkipped, r2.Status)

	assert.Equal(t, []string{"s3"}, echo.ran())
}

func TestExecute_StepConditionGates(t *testing.T) {
	o, echo, _, _ := newTestOrchestrator(t)

	def := &Definition{
		ID:   "wf-gate",
		Type: TypeSequential,
		Steps: []Step{
			{ID: "s1", Type: "echo", Condition: "${env} == prod"},
			{ID: "s2", Type: "echo", Condition: "${env} == dev"},
		},
	}

	exec, err := o.Execute(context.Background(), def, map[string]interface{}{"env": "dev"})
	require.NoError(t, err)

	waitDone(t, exec)
	assert.Equal(t, ExecutionCompleted, exec.Status())

	r1, _ := exec.StepResultFor("s1")
	assert.Equal(t, StepSkipped, r1.Status)
	assert.Equal(t, []string{"s2"}, echo.ran())
}

func TestExecute_ConditionalDriverGatesOnResult(t *testing.T) {
	o, echo, _, _ := newTestOrchestrator(t)

	def := &Definition{
		ID:   "wf-cond",
		Type: TypeConditional,
		Steps: []Step{
			{ID: "check", Type: "condition", Config: map[string]interface{}{"condition": "${ready} == yes"}},
			{ID: "act", Type: "echo", DependsOn: []string{"check"}},
		},
	}

	exec, err := o.Execute(context.Background(), def, map[string]interface{}{"ready": "no"})
	require.NoError(t, err)

	waitDone(t, exec)
	assert.Equal(t, ExecutionCompleted, exec.Status())

	check, _ := exec.StepResultFor("check")
	assert.Equal(t, StepCompleted, check.Status)
	assert.Equal(t, false, check.Output["condition_result"])

	act, _ := exec.StepResultFor("act")
	assert.Equal(t, StepSkipped, act.Status)
	assert.Empty(t, echo.ran())
}

func TestExecute_ParallelRespectsDependencyWaves(t *testing.T) {
	o, echo, _, _ := newTestOrchestrator(t)

	def := &Definition{
		ID:   "wf-par",
		Type: TypeParallel,
		Steps: []Step{
			{ID: "a", Type: "echo"},
			{ID: "b", Type: "echo"},
			{ID: "c", Type: "echo", DependsOn: []string{"a", "b"}},
		},
	}

	exec, err := o.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	waitDone(t, exec)
	assert.Equal(t, ExecutionCompleted, exec.Status())

	order := echo.ran()
	require.Len(t, order, 3)
	assert.Equal(t, "c", order[2], "dependent step must run after its wave")
}

func TestExecute_LoopStepRunsNestedPerItem(t *testing.T) {
	o, echo, _, _ := newTestOrchestrator(t)

	def := &Definition{
		ID:   "wf-loop",
		Type: TypeSequential,
		Steps: []Step{
			{ID: "each", Type: "loop", Config: map[string]interface{}{
				"items": []interface{}{"x", "y"},
				"steps": []interface{}{
					map[string]interface{}{
						"id":     "inner",
						"type":   "echo",
						"config": map[string]interface{}{"value": "${loop_item}"},
					},
				},
			}},
		},
	}

	exec, err := o.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	waitDone(t, exec)
	require.Equal(t, ExecutionCompleted, exec.Status())

	result, _ := exec.StepResultFor("each")
	assert.Equal(t, 2, result.Output["iterations"])
	assert.Equal(t, []string{"inner", "inner"}, echo.ran())

	iterations := result.Output["results"].([]interface{})
	first := iterations[0].(map[string]interface{})["inner"].(map[string]interface{})
	assert.Equal(t, "x", first["echo"])
}

func TestExecute_ParallelStepCollectsNestedOutputs(t *testing.T) {
	o, echo, _, _ := newTestOrchestrator(t)

	def := &Definition{
		ID:   "wf-nested-par",
		Type: TypeSequential,
		Steps: []Step{
			{ID: "fan", Type: "parallel", Config: map[string]interface{}{
				"steps": []interface{}{
					map[string]interface{}{"id": "n1", "type": "echo", "config": map[string]interface{}{"value": "a"}},
					map[string]interface{}{"id": "n2", "type": "echo", "config": map[string]interface{}{"value": "b"}},
				},
			}},
		},
	}

	exec, err := o.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	waitDone(t, exec)
	require.Equal(t, ExecutionCompleted, exec.Status())
	assert.Len(t, echo.ran(), 2)

	result, _ := exec.StepResultFor("fan")
	nested := result.Output["results"].(map[string]interface{})
	assert.Equal(t, "a", nested["n1"].(map[string]interface{})["echo"])
	assert.Equal(t, "b", nested["n2"].(map[string]interface{})["echo"])
}

func TestCancel_StopsRunningExecution(t *testing.T) {
	block := newBlockHandler()
	o, _, _, auditor := newTestOrchestrator(t, block)

	def := &Definition{
		ID:   "wf-cancel",
		Type: TypeSequential,
		Steps: []Step{
			{ID: "s1", Type: "block"},
			{ID: "s2", Type: "echo"},
		},
	}

	exec, err := o.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	<-block.started
	require.NoError(t, o.Cancel(exec.ID))

	waitDone(t, exec)
	assert.Equal(t, ExecutionCancelled, exec.Status())
	assert.True(t, auditor.has("cancelled"))

	// The in-flight step records as cancelled, the step that never ran as
	// skipped.
	r1, ok := exec.StepResultFor("s1")
	require.True(t, ok)
	assert.Equal(t, StepCancelled, r1.Status)

	r2, ok := exec.StepResultFor("s2")
	require.True(t, ok)
	assert.Equal(t, StepSkipped, r2.Status)

	// a finished execution cannot be cancelled again
	assert.Error(t, o.Cancel(exec.ID))
}

func TestPauseResume_HoldsNextStep(t *testing.T) {
	block := newBlockHandler()
	o, echo, _, _ := newTestOrchestrator(t, block)

	def := &Definition{
		ID:   "wf-pause",
		Type: TypeSequential,
		Steps: []Step{
			{ID: "s1", Type: "block"},
			{ID: "s2", Type: "echo"},
		},
	}

	exec, err := o.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	<-block.started
	require.NoError(t, o.Pause(exec.ID))
	assert.Equal(t, ExecutionPaused, exec.Status())

	// releasing the running step must not start the next one while paused
	close(block.release)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, echo.ran())

	require.NoError(t, o.Resume(exec.ID))
	waitDone(t, exec)

	assert.Equal(t, ExecutionCompleted, exec.Status())
	assert.Equal(t, []string{"s2"}, echo.ran())

	// resume on a non-paused execution is an error
	assert.Error(t, o.Resume(exec.ID))
}

func TestExecute_VisualGraph(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)

	def := &Definition{
		ID:   "wf-visual",
		Type: TypeVisual,
		Nodes: []Node{
			{ID: "in", Type: "user_input", Config: map[string]interface{}{"variable": "name"}},
			{ID: "shout", Type: "transform", Config: map[string]interface{}{
				"type":  "uppercase",
				"input": "${in.value}",
			}},
			{ID: "out", Type: "output", Config: map[string]interface{}{
				"variable": "final",
				"value":    "${shout.transformed}",
			}},
		},
		Edges: []Edge{
			{Source: "in", Target: "shout"},
			{Source: "shout", Target: "out"},
		},
	}

	exec, err := o.Execute(context.Background(), def, map[string]interface{}{"name": "chainbot"})
	require.NoError(t, err)

	waitDone(t, exec)
	require.Equal(t, ExecutionCompleted, exec.Status())

	final, ok := exec.Variable("final")
	require.True(t, ok)
	assert.Equal(t, "CHAINBOT", final)
}

func TestExecute_VisualGraphInputSources(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)

	def := &Definition{
		ID:   "wf-sources",
		Type: TypeVisual,
		Nodes: []Node{
			{ID: "in", Type: "user_input", Config: map[string]interface{}{"variable": "word"}},
			{ID: "shout", Type: "transform", Config: map[string]interface{}{
				"type": "uppercase",
				"input_sources": []interface{}{
					map[string]interface{}{"node_id": "in", "key": "value"},
				},
			}},
		},
		Edges: []Edge{{Source: "in", Target: "shout"}},
	}

	exec, err := o.Execute(context.Background(), def, map[string]interface{}{"word": "quiet"})
	require.NoError(t, err)

	waitDone(t, exec)
	require.Equal(t, ExecutionCompleted, exec.Status())

	result, ok := exec.StepResultFor("shout")
	require.True(t, ok)
	assert.Equal(t, "QUIET", result.Output["transformed"])
}

func TestValidate_RejectsBadDefinitions(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)

	cases := []struct {
		name string
		def  *Definition
		want error
	}{
		{
			name: "cycle",
			def: &Definition{ID: "w", Type: TypeSequential, Steps: []Step{
				{ID: "a", Type: "echo", DependsOn: []string{"b"}},
				{ID: "b", Type: "echo", DependsOn: []string{"a"}},
			}},
			want: ErrCycleDetected,
		},
		{
			name: "duplicate ids",
			def: &Definition{ID: "w", Type: TypeSequential, Steps: []Step{
				{ID: "a", Type: "echo"},
				{ID: "a", Type: "echo"},
			}},
			want: ErrDuplicateStepID,
		},
		{
			name: "unknown handler",
			def: &Definition{ID: "w", Type: TypeSequential, Steps: []Step{
				{ID: "a", Type: "no_such_type"},
			}},
			want: ErrUnknownStepType,
		},
		{
			name: "unknown dependency",
			def: &Definition{ID: "w", Type: TypeSequential, Steps: []Step{
				{ID: "a", Type: "echo", DependsOn: []string{"ghost"}},
			}},
			want: ErrUnknownDependency,
		},
		{
			name: "graph cycle",
			def: &Definition{ID: "w", Type: TypeVisual,
				Nodes: []Node{{ID: "a", Type: "transform"}, {ID: "b", Type: "transform"}},
				Edges: []Edge{{Source: "a", Target: "b"}, {Source: "b", Target: "a"}},
			},
			want: ErrCycleDetected,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := o.Validate(tc.def)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	assert.Error(t, o.Validate(&Definition{ID: "w", Type: WorkflowType("mystery")}))
	assert.Error(t, o.Validate(&Definition{Type: TypeSequential}))
}

func TestDefinitions_StoreAndExecuteByID(t *testing.T) {
	o, echo, _, _ := newTestOrchestrator(t)

	def := &Definition{
		ID:    "wf-stored",
		Type:  TypeSequential,
		Steps: []Step{{ID: "s1", Type: "echo"}},
	}
	require.NoError(t, o.SaveDefinition(def))

	got, err := o.Definition("wf-stored")
	require.NoError(t, err)
	assert.Equal(t, def.ID, got.ID)
	assert.Len(t, o.Definitions(), 1)

	_, err = o.Definition("missing")
	assert.ErrorIs(t, err, ErrDefinitionNotFound)

	_, err = o.ExecuteByID(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrDefinitionNotFound)

	exec, err := o.ExecuteByID(context.Background(), "wf-stored", nil)
	require.NoError(t, err)
	waitDone(t, exec)
	assert.Equal(t, []string{"s1"}, echo.ran())

	summary, err := o.Status(exec.ID)
	require.NoError(t, err)
	assert.Equal(t, string(ExecutionCompleted), summary["status"])
	assert.NotEmpty(t, o.List())

	_, err = o.Status("missing")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}
