package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrCycleDetected      = errors.New("workflow graph contains a cycle")
	ErrUnknownStepType    = errors.New("unknown step type")
	ErrUnknownDependency  = errors.New("unknown dependency")
	ErrDuplicateStepID    = errors.New("duplicate step id")
	ErrExecutionNotFound  = errors.New("execution not found")
	ErrDefinitionNotFound = errors.New("workflow definition not found")
)

// Validate checks a definition before execution: unique ids, known types,
// resolvable dependencies, and an acyclic graph.
func (o *Orchestrator) Validate(def *Definition) error {
	if def.ID == "" {
		return NewExecutionError("Validate", def.Name, "", "workflow id is required", nil)
	}

	switch def.Type {
	case TypeSequential, TypeParallel, TypeConditional:
		return o.validateSteps(def)
	case TypeVisual:
		return o.validateGraph(def)
	default:
		return NewExecutionError("Validate", def.ID, "", fmt.Sprintf("unknown workflow type %q", def.Type), nil)
	}
}

// An empty step list is allowed: the execution completes immediately.
func (o *Orchestrator) validateSteps(def *Definition) error {
	ids := make(map[string]struct{}, len(def.Steps))
	for _, step := range def.Steps {
		if step.ID == "" {
			return NewExecutionError("Validate", def.ID, "", "step id is required", nil)
		}
		if _, dup := ids[step.ID]; dup {
			return NewExecutionError("Validate", def.ID, step.ID, "step id already used", ErrDuplicateStepID)
		}
		ids[step.ID] = struct{}{}

		if _, ok := o.handlers.Get(step.Type); !ok {
			return NewExecutionError("Validate", def.ID, step.ID,
				fmt.Sprintf("no handler for type %q", step.Type), ErrUnknownStepType)
		}
	}

	adjacency := make(map[string][]string, len(def.Steps))
	for _, step := range def.Steps {
		for _, dep := range step.DependsOn {
			if _, ok := ids[dep]; !ok {
				return NewExecutionError("Validate", def.ID, step.ID,
					fmt.Sprintf("depends on unknown step %q", dep), ErrUnknownDependency)
			}
			adjacency[dep] = append(adjacency[dep], step.ID)
		}
	}

	if hasCycle(ids, adjacency) {
		return NewExecutionError("Validate", def.ID, "", "dependency graph", ErrCycleDetected)
	}
	return nil
}

func (o *Orchestrator) validateGraph(def *Definition) error {
	if len(def.Nodes) == 0 {
		return NewExecutionError("Validate", def.ID, "", "visual workflow has no nodes", nil)
	}

	ids := make(map[string]struct{}, len(def.Nodes))
	for _, node := range def.Nodes {
		if node.ID == "" {
			return NewExecutionError("Validate", def.ID, "", "node id is required", nil)
		}
		if _, dup := ids[node.ID]; dup {
			return NewExecutionError("Validate", def.ID, node.ID, "node id already used", ErrDuplicateStepID)
		}
		ids[node.ID] = struct{}{}
	}

	adjacency := make(map[string][]string, len(def.Edges))
	for _, edge := range def.Edges {
		if _, ok := ids[edge.Source]; !ok {
			return NewExecutionError("Validate", def.ID, "",
				fmt.Sprintf("edge source %q is not a node", edge.Source), ErrUnknownDependency)
		}
		if _, ok := ids[edge.Target]; !ok {
			return NewExecutionError("Validate", def.ID, "",
				fmt.Sprintf("edge target %q is not a node", edge.Target), ErrUnknownDependency)
		}
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
	}

	if hasCycle(ids, adjacency) {
		return NewExecutionError("Validate", def.ID, "", "node graph", ErrCycleDetected)
	}
	return nil
}

// hasCycle runs a depth-first search with a recursion stack over the
// adjacency list.
func hasCycle(ids map[string]struct{}, adjacency map[string][]string) bool {
	visited := make(map[string]bool, len(ids))
	inStack := make(map[string]bool, len(ids))

	var visit func(id string) bool
	visit = func(id string) bool {
		visited[id] = true
		inStack[id] = true
		for _, next := range adjacency[id] {
			if inStack[next] {
				return true
			}
			if !visited[next] && visit(next) {
				return true
			}
		}
		inStack[id] = false
		return false
	}

	for id := range ids {
		if !visited[id] && visit(id) {
			return true
		}
	}
	return false
}
