package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/alexos/chainbot/config"
	"github.com/alexos/chainbot/expr"
	"github.com/alexos/chainbot/fanout"
	"github.com/alexos/chainbot/pkg/logger"
)

// ============================================================================
// ORCHESTRATOR
// ============================================================================

var (
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainbot_workflow_executions_total",
		Help: "Workflow executions by terminal status.",
	}, []string{"status"})

	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chainbot_workflow_steps_total",
		Help: "Workflow steps by terminal status.",
	}, []string{"status"})
)

// Auditor records workflow lifecycle events.
type Auditor interface {
	LogWorkflow(ctx context.Context, workflowID, action, actorID string, meta map[string]interface{})
}

// Orchestrator stores definitions, runs executions through the driver
// matching the workflow type, and tracks live execution state.
type Orchestrator struct {
	cfg      config.WorkflowConfig
	handlers *HandlerRegistry
	bus      Bus
	sink     Auditor
	logger   *slog.Logger

	mu          sync.RWMutex
	definitions map[string]*Definition
	executions  map[string]*ExecutionContext
}

func NewOrchestrator(cfg config.WorkflowConfig, handlers *HandlerRegistry, bus Bus, sink Auditor) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		handlers:    handlers,
		bus:         bus,
		sink:        sink,
		logger:      logger.New("workflow"),
		definitions: make(map[string]*Definition),
		executions:  make(map[string]*ExecutionContext),
	}
}

// SaveDefinition validates and stores a workflow definition, replacing
// any previous version under the same id.
func (o *Orchestrator) SaveDefinition(def *Definition) error {
	if err := o.Validate(def); err != nil {
		return err
	}
	o.mu.Lock()
	o.definitions[def.ID] = def
	o.mu.Unlock()
	return nil
}

// Definition returns a stored workflow definition.
func (o *Orchestrator) Definition(workflowID string) (*Definition, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	def, ok := o.definitions[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, workflowID)
	}
	return def, nil
}

// Definitions lists all stored workflow definitions.
func (o *Orchestrator) Definitions() []*Definition {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*Definition, 0, len(o.definitions))
	for _, def := range o.definitions {
		out = append(out, def)
	}
	return out
}

// ExecuteByID starts a stored workflow.
func (o *Orchestrator) ExecuteByID(ctx context.Context, workflowID string, vars map[string]interface{}) (*ExecutionContext, error) {
	def, err := o.Definition(workflowID)
	if err != nil {
		return nil, err
	}
	return o.Execute(ctx, def, vars)
}

// Execute validates the definition and starts it in the background. The
// returned ExecutionContext exposes status, variables and the event
// stream; the events channel closes when the run finishes.
func (o *Orchestrator) Execute(ctx context.Context, def *Definition, vars map[string]interface{}) (*ExecutionContext, error) {
	if err := o.Validate(def); err != nil {
		return nil, err
	}

	merged := make(map[string]interface{}, len(def.Variables)+len(vars))
	for k, v := range def.Variables {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}

	exec := newExecutionContext(uuid.New().String(), def.ID, merged, o.cfg.EventBuffer)
	exec.maxParallel = def.MaxParallelSteps
	if exec.maxParallel <= 0 {
		exec.maxParallel = o.cfg.MaxParallel
	}

	timeout := o.cfg.StepTimeout()
	if def.Timeout > 0 {
		timeout = time.Duration(def.Timeout) * time.Second
	}
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	exec.cancel = cancel

	o.mu.Lock()
	o.executions[exec.ID] = exec
	o.mu.Unlock()

	go o.run(runCtx, exec, def)

	return exec, nil
}

func (o *Orchestrator) run(ctx context.Context, exec *ExecutionContext, def *Definition) {
	defer exec.cancel()
	defer close(exec.events)

	exec.setStatus(ExecutionRunning)
	exec.emit(Event{Type: EventWorkflowStarted})
	o.broadcast(exec, fanout.MessageWorkflowStarted, map[string]interface{}{
		"workflow_id":  def.ID,
		"execution_id": exec.ID,
		"name":         def.Name,
	})
	o.sink.LogWorkflow(ctx, def.ID, "started", "", map[string]interface{}{
		"execution_id": exec.ID,
		"type":         string(def.Type),
	})
	o.logger.Info("workflow started", "workflow_id", def.ID, "execution_id", exec.ID, "type", def.Type)

	var err error
	switch def.Type {
	case TypeSequential:
		err = o.runSteps(ctx, exec, def.Steps, false, false)
	case TypeConditional:
		err = o.runSteps(ctx, exec, def.Steps, false, true)
	case TypeParallel:
		err = o.runSteps(ctx, exec, def.Steps, true, false)
	case TypeVisual:
		err = o.runGraph(ctx, exec, def)
	}

	switch {
	case err == nil:
		exec.setStatus(ExecutionCompleted)
		exec.emit(Event{Type: EventWorkflowCompleted})
		o.broadcast(exec, fanout.MessageWorkflowCompleted, map[string]interface{}{
			"workflow_id":  def.ID,
			"execution_id": exec.ID,
		})
		o.sink.LogWorkflow(context.WithoutCancel(ctx), def.ID, "completed", "", map[string]interface{}{
			"execution_id": exec.ID,
		})
		executionsTotal.WithLabelValues(string(ExecutionCompleted)).Inc()
		o.logger.Info("workflow completed", "workflow_id", def.ID, "execution_id", exec.ID)

	case errors.Is(err, context.Canceled):
		exec.skipPending(definitionStepIDs(def))
		exec.setStatus(ExecutionCancelled)
		exec.emit(Event{Type: EventWorkflowCancelled})
		o.broadcast(exec, fanout.MessageWorkflowUpdate, map[string]interface{}{
			"workflow_id":  def.ID,
			"execution_id": exec.ID,
			"status":       string(ExecutionCancelled),
		})
		o.sink.LogWorkflow(context.WithoutCancel(ctx), def.ID, "cancelled", "", map[string]interface{}{
			"execution_id": exec.ID,
		})
		executionsTotal.WithLabelValues(string(ExecutionCancelled)).Inc()
		o.logger.Info("workflow cancelled", "workflow_id", def.ID, "execution_id", exec.ID)

	default:
		exec.setErr(err.Error())
		exec.setStatus(ExecutionFailed)
		exec.emit(Event{Type: EventWorkflowFailed, Data: map[string]interface{}{"error": err.Error()}})
		o.broadcast(exec, fanout.MessageWorkflowFailed, map[string]interface{}{
			"workflow_id":  def.ID,
			"execution_id": exec.ID,
			"error":        err.Error(),
		})
		o.sink.LogWorkflow(context.WithoutCancel(ctx), def.ID, "failed", "", map[string]interface{}{
			"execution_id": exec.ID,
			"error":        err.Error(),
		})
		executionsTotal.WithLabelValues(string(ExecutionFailed)).Inc()
		o.logger.Error("workflow failed", "workflow_id", def.ID, "execution_id", exec.ID, "error", err)
	}
}

// broadcast publishes a status transition on the workflow builder window.
func (o *Orchestrator) broadcast(exec *ExecutionContext, msgType fanout.MessageType, data map[string]interface{}) {
	o.bus.BroadcastToWindow(fanout.WindowWorkflowBuilder, fanout.Message{
		Type:       msgType,
		WorkflowID: exec.WorkflowID,
		Data:       data,
	})
}

func definitionStepIDs(def *Definition) []string {
	ids := make([]string, 0, len(def.Steps)+len(def.Nodes))
	for _, step := range def.Steps {
		ids = append(ids, step.ID)
	}
	for _, node := range def.Nodes {
		ids = append(ids, node.ID)
	}
	return ids
}

// ============================================================================
// EXECUTION CONTROL
// ============================================================================

// Get returns a live or finished execution.
func (o *Orchestrator) Get(executionID string) (*ExecutionContext, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	exec, ok := o.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	return exec, nil
}

// Status reports the state of one execution.
func (o *Orchestrator) Status(executionID string) (map[string]interface{}, error) {
	exec, err := o.Get(executionID)
	if err != nil {
		return nil, err
	}
	return exec.Summary(), nil
}

// List returns summaries of all tracked executions.
func (o *Orchestrator) List() []map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]map[string]interface{}, 0, len(o.executions))
	for _, exec := range o.executions {
		out = append(out, exec.Summary())
	}
	return out
}

// Cancel stops a running execution.
func (o *Orchestrator) Cancel(executionID string) error {
	exec, err := o.Get(executionID)
	if err != nil {
		return err
	}
	switch exec.Status() {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return NewExecutionError("Cancel", exec.WorkflowID, "", "execution already finished", nil)
	}
	// A paused run has to wake up to observe the cancellation.
	_ = o.resume(exec, false)
	exec.cancel()
	return nil
}

// Pause suspends a running execution before its next step.
func (o *Orchestrator) Pause(executionID string) error {
	exec, err := o.Get(executionID)
	if err != nil {
		return err
	}
	if exec.Status() != ExecutionRunning {
		return NewExecutionError("Pause", exec.WorkflowID, "", "execution is not running", nil)
	}

	exec.mu.Lock()
	if !exec.paused {
		exec.paused = true
		exec.resumeCh = make(chan struct{})
	}
	exec.mu.Unlock()

	exec.setStatus(ExecutionPaused)
	exec.emit(Event{Type: EventWorkflowPaused})
	o.logger.Info("workflow paused", "execution_id", exec.ID)
	return nil
}

// Resume continues a paused execution.
func (o *Orchestrator) Resume(executionID string) error {
	exec, err := o.Get(executionID)
	if err != nil {
		return err
	}
	return o.resume(exec, true)
}

func (o *Orchestrator) resume(exec *ExecutionContext, mustBePaused bool) error {
	exec.mu.Lock()
	paused := exec.paused
	if paused {
		exec.paused = false
		close(exec.resumeCh)
	}
	exec.mu.Unlock()

	if !paused {
		if mustBePaused {
			return NewExecutionError("Resume", exec.WorkflowID, "", "execution is not paused", nil)
		}
		return nil
	}

	exec.setStatus(ExecutionRunning)
	exec.emit(Event{Type: EventWorkflowResumed})
	o.logger.Info("workflow resumed", "execution_id", exec.ID)
	return nil
}

// ============================================================================
// STEP DRIVERS
// ============================================================================

// runSteps drives step-based workflows. Steps run in definition order
// (or in dependency waves when concurrent) with skipped and failed
// dependencies propagating as skips. With gateOnCondition set, a
// dependency that is a condition step with a false result also skips its
// dependents.
func (o *Orchestrator) runSteps(ctx context.Context, exec *ExecutionContext, steps []Step, concurrent, gateOnCondition bool) error {
	if !concurrent {
		for i := range steps {
			if err := exec.waitIfPaused(ctx); err != nil {
				return err
			}
			if err := o.runGatedStep(ctx, exec, &steps[i], gateOnCondition); err != nil {
				return err
			}
		}
		return nil
	}

	done := make(map[string]bool, len(steps))
	for len(done) < len(steps) {
		if err := exec.waitIfPaused(ctx); err != nil {
			return err
		}

		var wave []*Step
		for i := range steps {
			step := &steps[i]
			if done[step.ID] {
				continue
			}
			ready := true
			for _, dep := range step.DependsOn {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, step)
			}
		}
		if len(wave) == 0 {
			return NewExecutionError("Execute", exec.WorkflowID, "", "no runnable steps remain", ErrCycleDetected)
		}

		g, waveCtx := errgroup.WithContext(ctx)
		g.SetLimit(exec.maxParallel)
		for _, step := range wave {
			step := step
			g.Go(func() error {
				return o.runGatedStep(waveCtx, exec, step, gateOnCondition)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		for _, step := range wave {
			done[step.ID] = true
		}
	}
	return nil
}

// runGatedStep applies dependency and condition gating, then runs the
// step under its failure policy.
func (o *Orchestrator) runGatedStep(ctx context.Context, exec *ExecutionContext, step *Step, gateOnCondition bool) error {
	if skip, reason := o.shouldSkip(exec, step, gateOnCondition); skip {
		exec.markStepSkipped(step.ID)
		exec.emit(Event{Type: EventStepSkipped, StepID: step.ID, Data: map[string]interface{}{"reason": reason}})
		stepsTotal.WithLabelValues(string(StepSkipped)).Inc()
		o.logger.Debug("step skipped", "execution_id", exec.ID, "step_id", step.ID, "reason", reason)
		return nil
	}
	return o.runStepWithPolicy(ctx, exec, step)
}

func (o *Orchestrator) shouldSkip(exec *ExecutionContext, step *Step, gateOnCondition bool) (bool, string) {
	for _, dep := range step.DependsOn {
		result, ok := exec.StepResultFor(dep)
		if !ok || result.Status != StepCompleted {
			return true, fmt.Sprintf("dependency %s did not complete", dep)
		}
		if gateOnCondition {
			if passed, present := result.Output["condition_result"].(bool); present && !passed {
				return true, fmt.Sprintf("condition %s was false", dep)
			}
		}
	}

	if step.Condition != "" && !expr.EvalPredicate(step.Condition, exec.Variables()) {
		return true, "step condition was false"
	}
	return false, ""
}

// runStepWithPolicy runs one step, retrying under the retry policy. A
// retried step goes back to pending with its error cleared so a later
// success leaves a clean record.
func (o *Orchestrator) runStepWithPolicy(ctx context.Context, exec *ExecutionContext, step *Step) error {
	maxRetries := step.MaxRetries
	if maxRetries == 0 && step.OnFailure == FailureRetry {
		maxRetries = o.cfg.MaxRetries
	}

	var err error
	for attempt := 0; ; attempt++ {
		var output map[string]interface{}
		output, err = o.runStep(ctx, exec, step)
		if err == nil {
			exec.markStepCompleted(step.ID, output)
			exec.emit(Event{Type: EventStepCompleted, StepID: step.ID})
			stepsTotal.WithLabelValues(string(StepCompleted)).Inc()
			exec.SetVariable("steps."+step.ID, output)
			for key, value := range output {
				exec.SetVariable("steps."+step.ID+"."+key, value)
			}
			if step.OutputVariable != "" {
				exec.SetVariable(step.OutputVariable, output)
			}
			return nil
		}
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
		if step.OnFailure != FailureRetry || attempt >= maxRetries {
			break
		}
		exec.resetStepForRetry(step.ID)
		exec.emit(Event{Type: EventStepRetried, StepID: step.ID, Data: map[string]interface{}{
			"attempt": attempt + 1,
			"error":   err.Error(),
		}})
		o.logger.Warn("step retry", "execution_id", exec.ID, "step_id", step.ID, "attempt", attempt+1, "error", err)
	}

	if errors.Is(err, context.Canceled) {
		exec.markStepCancelled(step.ID)
		exec.emit(Event{Type: EventStepCancelled, StepID: step.ID})
		stepsTotal.WithLabelValues(string(StepCancelled)).Inc()
		return err
	}

	exec.markStepFailed(step.ID, err)
	exec.emit(Event{Type: EventStepFailed, StepID: step.ID, Data: map[string]interface{}{"error": err.Error()}})
	stepsTotal.WithLabelValues(string(StepFailed)).Inc()

	if step.OnFailure == FailureContinue {
		o.logger.Warn("step failed, continuing", "execution_id", exec.ID, "step_id", step.ID, "error", err)
		return nil
	}
	return NewExecutionError("Execute", exec.WorkflowID, step.ID, "step failed", err)
}

// runStep performs a single attempt: interpolate the config against the
// current variables, then hand off to the registered handler under the
// step timeout.
func (o *Orchestrator) runStep(ctx context.Context, exec *ExecutionContext, step *Step) (map[string]interface{}, error) {
	handler, ok := o.handlers.Get(step.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStepType, step.Type)
	}

	exec.markStepRunning(step.ID)
	exec.emit(Event{Type: EventStepStarted, StepID: step.ID})

	vars := exec.Variables()
	sc := &StepContext{
		Execution: exec,
		Step:      step,
		Config:    interpolatedConfig(step.Config, vars),
		Variables: vars,
		runner:    o,
	}

	stepCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, time.Duration(step.Timeout)*time.Second)
		defer cancel()
	}

	started := time.Now()
	output, err := handler.Execute(stepCtx, sc)
	o.logger.Debug("step finished", "execution_id", exec.ID, "step_id", step.ID,
		"type", step.Type, "duration", time.Since(started), "error", err)
	return output, err
}

func interpolatedConfig(config map[string]interface{}, vars map[string]interface{}) map[string]interface{} {
	if config == nil {
		return map[string]interface{}{}
	}
	out, ok := expr.InterpolateValue(config, vars).(map[string]interface{})
	if !ok {
		return config
	}
	return out
}

// runNested executes the nested steps of a loop or parallel step. Nested
// results stay out of the execution's step records; each nested step sees
// the execution variables plus the overlay and the outputs of the nested
// steps that already ran.
func (o *Orchestrator) runNested(ctx context.Context, exec *ExecutionContext, steps []Step, overlay map[string]interface{}, concurrent bool) (map[string]interface{}, error) {
	var mu sync.Mutex
	results := make(map[string]interface{}, len(steps))

	runOne := func(ctx context.Context, step *Step) error {
		handler, ok := o.handlers.Get(step.Type)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownStepType, step.Type)
		}

		vars := exec.Variables()
		for k, v := range overlay {
			vars[k] = v
		}
		mu.Lock()
		for id, out := range results {
			vars["steps."+id] = out
		}
		mu.Unlock()

		output, err := handler.Execute(ctx, &StepContext{
			Execution: exec,
			Step:      step,
			Config:    interpolatedConfig(step.Config, vars),
			Variables: vars,
			runner:    o,
		})
		if err != nil {
			return fmt.Errorf("nested step %s: %w", step.ID, err)
		}

		mu.Lock()
		results[step.ID] = output
		mu.Unlock()
		return nil
	}

	if concurrent {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(exec.maxParallel)
		for i := range steps {
			step := &steps[i]
			g.Go(func() error { return runOne(gctx, step) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return results, nil
	}

	for i := range steps {
		if err := runOne(ctx, &steps[i]); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// ============================================================================
// VISUAL GRAPH DRIVER
// ============================================================================

// nodeStepTypes maps visual node types onto step handlers. user_input
// and output nodes are handled by the driver itself.
var nodeStepTypes = map[string]string{
	"ai_agent":  "agent_task",
	"condition": "condition",
	"transform": "transform",
	"api_call":  "api_call",
}

// runGraph drives a visual workflow: nodes run in dependency waves from
// the edge list, and each completed node publishes its outputs as
// "<node_id>.<key>" variables for downstream nodes to interpolate.
func (o *Orchestrator) runGraph(ctx context.Context, exec *ExecutionContext, def *Definition) error {
	indegree := make(map[string]int, len(def.Nodes))
	adjacency := make(map[string][]string, len(def.Nodes))
	nodes := make(map[string]*Node, len(def.Nodes))
	for i := range def.Nodes {
		node := &def.Nodes[i]
		nodes[node.ID] = node
		indegree[node.ID] = 0
	}
	for _, edge := range def.Edges {
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
		indegree[edge.Target]++
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}

	processed := 0
	for len(ready) > 0 {
		if err := exec.waitIfPaused(ctx); err != nil {
			return err
		}

		wave := ready
		ready = nil

		g, waveCtx := errgroup.WithContext(ctx)
		g.SetLimit(exec.maxParallel)
		for _, id := range wave {
			node := nodes[id]
			g.Go(func() error {
				return o.runNode(waveCtx, exec, node)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		processed += len(wave)
		for _, id := range wave {
			for _, next := range adjacency[id] {
				indegree[next]--
				if indegree[next] == 0 {
					ready = append(ready, next)
				}
			}
		}
	}

	if processed < len(def.Nodes) {
		return NewExecutionError("Execute", exec.WorkflowID, "", "unreachable nodes in graph", ErrCycleDetected)
	}
	return nil
}

func (o *Orchestrator) runNode(ctx context.Context, exec *ExecutionContext, node *Node) error {
	switch node.Type {
	case "user_input":
		// The value was supplied as an execution variable up front.
		name, _ := node.Config["variable"].(string)
		if name == "" {
			name = node.ID
		}
		value, ok := exec.Variable(name)
		if !ok {
			return NewExecutionError("Execute", exec.WorkflowID, node.ID,
				fmt.Sprintf("input variable %q not provided", name), nil)
		}
		output := map[string]interface{}{"value": value, "result": value}
		exec.markStepRunning(node.ID)
		exec.markStepCompleted(node.ID, output)
		o.publishNodeOutput(exec, node.ID, output)
		return nil

	case "output":
		name, _ := node.Config["variable"].(string)
		if name == "" {
			name = "output"
		}
		value := expr.InterpolateValue(node.Config["value"], exec.Variables())
		exec.SetVariable(name, value)
		output := map[string]interface{}{"value": value, "result": value}
		exec.markStepRunning(node.ID)
		exec.markStepCompleted(node.ID, output)
		o.publishNodeOutput(exec, node.ID, output)
		return nil
	}

	stepType, ok := nodeStepTypes[node.Type]
	if !ok {
		return NewExecutionError("Execute", exec.WorkflowID, node.ID,
			fmt.Sprintf("unknown node type %q", node.Type), ErrUnknownStepType)
	}

	step := &Step{
		ID:     node.ID,
		Name:   node.ID,
		Type:   stepType,
		Config: nodeConfig(exec, node),
	}
	if err := o.runStepWithPolicy(ctx, exec, step); err != nil {
		return err
	}
	if result, ok := exec.StepResultFor(node.ID); ok {
		o.publishNodeOutput(exec, node.ID, result.Output)
	}
	return nil
}

func (o *Orchestrator) publishNodeOutput(exec *ExecutionContext, nodeID string, output map[string]interface{}) {
	for key, value := range output {
		exec.SetVariable(nodeID+"."+key, value)
	}
}

// nodeConfig copies the node config and assembles its "input" from
// input_sources entries [{node_id, key}] reading prior node outputs. A
// single source becomes the value itself, several become a list.
func nodeConfig(exec *ExecutionContext, node *Node) map[string]interface{} {
	config := make(map[string]interface{}, len(node.Config))
	for k, v := range node.Config {
		config[k] = v
	}

	sources, ok := config["input_sources"].([]interface{})
	if !ok || len(sources) == 0 {
		return config
	}

	var inputs []interface{}
	for _, raw := range sources {
		source, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		nodeID, _ := source["node_id"].(string)
		key, _ := source["key"].(string)
		if key == "" {
			key = "result"
		}
		if result, found := exec.StepResultFor(nodeID); found {
			inputs = append(inputs, result.Output[key])
		}
	}

	if _, set := config["input"]; !set {
		if len(inputs) == 1 {
			config["input"] = inputs[0]
		} else if len(inputs) > 1 {
			config["input"] = inputs
		}
	}
	return config
}
