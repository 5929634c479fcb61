// Package workflow implements the orchestration engine: workflow
// definitions, the step handler registry, and the drivers that execute
// sequential, parallel, conditional and visual (node graph) workflows with
// retry, cancel, pause and resume.
package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// WORKFLOW DEFINITIONS
// ============================================================================

// WorkflowType selects the execution driver.
type WorkflowType string

const (
	TypeSequential  WorkflowType = "sequential"
	TypeParallel    WorkflowType = "parallel"
	TypeConditional WorkflowType = "conditional"
	TypeVisual      WorkflowType = "visual"
)

// FailurePolicy says what happens when a step fails.
type FailurePolicy string

const (
	FailureRetry    FailurePolicy = "retry"
	FailureContinue FailurePolicy = "continue"
	FailureFail     FailurePolicy = "fail"
)

// Step is one unit of work in a step-based workflow. Condition is the
// step's own gate: when it evaluates false the step is skipped.
type Step struct {
	ID             string                 `yaml:"id" json:"id" mapstructure:"id"`
	Name           string                 `yaml:"name" json:"name" mapstructure:"name"`
	Type           string                 `yaml:"type" json:"type" mapstructure:"type"`
	Config         map[string]interface{} `yaml:"config" json:"config" mapstructure:"config"`
	Condition      string                 `yaml:"condition" json:"condition" mapstructure:"condition"`
	DependsOn      []string               `yaml:"depends_on" json:"depends_on" mapstructure:"depends_on"`
	OnFailure      FailurePolicy          `yaml:"on_failure" json:"on_failure" mapstructure:"on_failure"`
	MaxRetries     int                    `yaml:"max_retries" json:"max_retries" mapstructure:"max_retries"`
	Timeout        int                    `yaml:"timeout" json:"timeout" mapstructure:"timeout"` // seconds
	OutputVariable string                 `yaml:"output_variable" json:"output_variable" mapstructure:"output_variable"`
}

// Node is one vertex of a visual workflow graph. Position is canvas
// placement from the builder UI; the engine carries it untouched.
type Node struct {
	ID       string                 `yaml:"id" json:"id"`
	Type     string                 `yaml:"type" json:"type"` // ai_agent, condition, transform, api_call, user_input, output
	Config   map[string]interface{} `yaml:"config" json:"config"`
	Position map[string]float64     `yaml:"position,omitempty" json:"position,omitempty"`
}

// Edge is a directed dependency between two nodes.
type Edge struct {
	Source string `yaml:"source" json:"source"`
	Target string `yaml:"target" json:"target"`
}

// Definition describes a workflow.
type Definition struct {
	ID          string                 `yaml:"id" json:"id"`
	Name        string                 `yaml:"name" json:"name"`
	Description string                 `yaml:"description" json:"description"`
	Type        WorkflowType           `yaml:"type" json:"type"`
	Steps       []Step                 `yaml:"steps" json:"steps"`
	Nodes       []Node                 `yaml:"nodes" json:"nodes"`
	Edges       []Edge                 `yaml:"edges" json:"edges"`
	Variables   map[string]interface{} `yaml:"variables" json:"variables"`
	Timeout     int                    `yaml:"timeout" json:"timeout"` // seconds, 0 uses the configured default

	// MaxParallelSteps caps concurrency for this workflow's executions;
	// 0 uses the configured default.
	MaxParallelSteps int `yaml:"max_parallel_steps" json:"max_parallel_steps"`
}

// ============================================================================
// EXECUTION STATE
// ============================================================================

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
	ExecutionPaused    ExecutionStatus = "paused"
)

// StepStatus is the lifecycle state of one step within an execution.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
	StepCancelled StepStatus = "cancelled"
)

// StepResult is the recorded outcome of one step.
type StepResult struct {
	Status      StepStatus             `json:"status"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Attempts    int                    `json:"attempts"`
	StartedAt   time.Time              `json:"started_at,omitempty"`
	CompletedAt time.Time              `json:"completed_at,omitempty"`
}

// EventType labels execution events.
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow_started"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventWorkflowFailed    EventType = "workflow_failed"
	EventWorkflowCancelled EventType = "workflow_cancelled"
	EventWorkflowPaused    EventType = "workflow_paused"
	EventWorkflowResumed   EventType = "workflow_resumed"
	EventStepStarted       EventType = "step_started"
	EventStepCompleted     EventType = "step_completed"
	EventStepFailed        EventType = "step_failed"
	EventStepSkipped       EventType = "step_skipped"
	EventStepRetried       EventType = "step_retried"
	EventStepCancelled     EventType = "step_cancelled"
)

// Event is one execution lifecycle notification.
type Event struct {
	Type        EventType              `json:"type"`
	ExecutionID string                 `json:"execution_id"`
	WorkflowID  string                 `json:"workflow_id"`
	StepID      string                 `json:"step_id,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// ExecutionContext is the shared state of one running workflow. All reads
// and writes go through the mutex; handlers see snapshots.
type ExecutionContext struct {
	ID         string
	WorkflowID string

	mu          sync.RWMutex
	status      ExecutionStatus
	variables   map[string]interface{}
	stepResults map[string]*StepResult
	startedAt   time.Time
	completedAt time.Time
	errMsg      string
	currentStep string

	paused   bool
	resumeCh chan struct{}

	maxParallel int
	cancel      context.CancelFunc
	events      chan Event
}

func newExecutionContext(executionID, workflowID string, vars map[string]interface{}, eventBuffer int) *ExecutionContext {
	variables := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		variables[k] = v
	}
	return &ExecutionContext{
		ID:          executionID,
		WorkflowID:  workflowID,
		status:      ExecutionPending,
		variables:   variables,
		stepResults: make(map[string]*StepResult),
		startedAt:   time.Now(),
		events:      make(chan Event, eventBuffer),
	}
}

// Status returns the current execution status.
func (e *ExecutionContext) Status() ExecutionStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

func (e *ExecutionContext) setStatus(status ExecutionStatus) {
	e.mu.Lock()
	e.status = status
	if status == ExecutionCompleted || status == ExecutionFailed || status == ExecutionCancelled {
		e.completedAt = time.Now()
	}
	e.mu.Unlock()
}

// Err returns the recorded execution error, if any.
func (e *ExecutionContext) Err() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.errMsg
}

func (e *ExecutionContext) setErr(msg string) {
	e.mu.Lock()
	e.errMsg = msg
	e.mu.Unlock()
}

// SetVariable writes one execution variable.
func (e *ExecutionContext) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	e.variables[name] = value
	e.mu.Unlock()
}

// Variable reads one execution variable.
func (e *ExecutionContext) Variable(name string) (interface{}, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.variables[name]
	return v, ok
}

// Variables returns a snapshot of all execution variables.
func (e *ExecutionContext) Variables() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]interface{}, len(e.variables))
	for k, v := range e.variables {
		out[k] = v
	}
	return out
}

// StepResultFor returns a copy of one step's result.
func (e *ExecutionContext) StepResultFor(stepID string) (StepResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.stepResults[stepID]
	if !ok {
		return StepResult{}, false
	}
	return *r, true
}

// StepResults returns a copy of all step results.
func (e *ExecutionContext) StepResults() map[string]StepResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]StepResult, len(e.stepResults))
	for id, r := range e.stepResults {
		out[id] = *r
	}
	return out
}

func (e *ExecutionContext) resultFor(stepID string) *StepResult {
	r, ok := e.stepResults[stepID]
	if !ok {
		r = &StepResult{Status: StepPending}
		e.stepResults[stepID] = r
	}
	return r
}

func (e *ExecutionContext) markStepRunning(stepID string) {
	e.mu.Lock()
	r := e.resultFor(stepID)
	r.Status = StepRunning
	r.Attempts++
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	e.currentStep = stepID
	e.mu.Unlock()
}

func (e *ExecutionContext) markStepCompleted(stepID string, output map[string]interface{}) {
	e.mu.Lock()
	r := e.resultFor(stepID)
	r.Status = StepCompleted
	r.Output = output
	r.CompletedAt = time.Now()
	e.mu.Unlock()
}

func (e *ExecutionContext) markStepFailed(stepID string, err error) {
	e.mu.Lock()
	r := e.resultFor(stepID)
	r.Status = StepFailed
	r.Error = err.Error()
	r.CompletedAt = time.Now()
	e.mu.Unlock()
}

func (e *ExecutionContext) markStepSkipped(stepID string) {
	e.mu.Lock()
	r := e.resultFor(stepID)
	r.Status = StepSkipped
	e.mu.Unlock()
}

func (e *ExecutionContext) markStepCancelled(stepID string) {
	e.mu.Lock()
	r := e.resultFor(stepID)
	r.Status = StepCancelled
	r.CompletedAt = time.Now()
	e.mu.Unlock()
}

// skipPending marks every step that never reached a terminal state as
// skipped, for the final snapshot of a cancelled run.
func (e *ExecutionContext) skipPending(stepIDs []string) {
	e.mu.Lock()
	for _, id := range stepIDs {
		r, ok := e.stepResults[id]
		if !ok {
			e.stepResults[id] = &StepResult{Status: StepSkipped}
		} else if r.Status == StepPending || r.Status == StepRunning {
			r.Status = StepSkipped
		}
	}
	e.mu.Unlock()
}

// MaxParallel is the concurrency cap this execution runs under.
func (e *ExecutionContext) MaxParallel() int {
	return e.maxParallel
}

// resetStepForRetry returns the step to pending and clears its recorded
// error so a later success leaves no stale failure behind.
func (e *ExecutionContext) resetStepForRetry(stepID string) {
	e.mu.Lock()
	r := e.resultFor(stepID)
	r.Status = StepPending
	r.Error = ""
	e.mu.Unlock()
}

// waitIfPaused blocks while the execution is paused.
func (e *ExecutionContext) waitIfPaused(ctx context.Context) error {
	for {
		e.mu.RLock()
		paused := e.paused
		resumeCh := e.resumeCh
		e.mu.RUnlock()

		if !paused {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resumeCh:
		}
	}
}

// Events returns the execution's event stream. The channel is closed when
// the execution finishes.
func (e *ExecutionContext) Events() <-chan Event {
	return e.events
}

func (e *ExecutionContext) emit(event Event) {
	event.ExecutionID = e.ID
	event.WorkflowID = e.WorkflowID
	event.Timestamp = time.Now()
	select {
	case e.events <- event:
	default:
		// A slow consumer must not stall execution.
	}
}

// Summary reports the execution state for status queries.
func (e *ExecutionContext) Summary() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()

	steps := make(map[string]interface{}, len(e.stepResults))
	for id, r := range e.stepResults {
		steps[id] = map[string]interface{}{
			"status":   string(r.Status),
			"attempts": r.Attempts,
			"error":    r.Error,
		}
	}

	return map[string]interface{}{
		"execution_id": e.ID,
		"workflow_id":  e.WorkflowID,
		"status":       string(e.status),
		"current_step": e.currentStep,
		"started_at":   e.startedAt,
		"completed_at": e.completedAt,
		"error":        e.errMsg,
		"steps":        steps,
	}
}

// ============================================================================
// ERRORS
// ============================================================================

// ExecutionError is a typed error raised by orchestrator operations.
type ExecutionError struct {
	Operation string
	Workflow  string
	Step      string
	Message   string
	Err       error
}

func (e *ExecutionError) Error() string {
	where := e.Workflow
	if e.Step != "" {
		where = fmt.Sprintf("%s/%s", e.Workflow, e.Step)
	}
	if e.Err != nil {
		return fmt.Sprintf("[workflow:%s] %s (%s): %v", e.Operation, e.Message, where, e.Err)
	}
	return fmt.Sprintf("[workflow:%s] %s (%s)", e.Operation, e.Message, where)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func NewExecutionError(operation, workflow, step, message string, err error) *ExecutionError {
	return &ExecutionError{
		Operation: operation,
		Workflow:  workflow,
		Step:      step,
		Message:   message,
		Err:       err,
	}
}
