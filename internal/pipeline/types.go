// Package pipeline runs a plan of tasks against a text payload.
//
// A run is a strictly linear state machine:
//
//	planning -> workspace setup -> stage 0 -> stage 1 -> ... -> completed
//
// Every stage resolves its task in the registry, stages the current text
// into the run's workspace, executes the task's unit and threads the output
// into the next stage. The first failure ends the run. The workspace is
// released on every terminal transition.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/orchestratord/internal/planner"
	"github.com/fyrsmithlabs/orchestratord/internal/registry"
	"github.com/fyrsmithlabs/orchestratord/internal/workspace"
)

// Sentinel errors, one per error state.
var (
	ErrPlanning    = planner.ErrPlanning
	ErrResource    = workspace.ErrResource
	ErrUnknownTask = errors.New("unknown task")
	ErrExecution   = errors.New("execution failed")
)

// Plan is the ordered list of tasks for one run. Empty is legal.
type Plan []registry.TaskID

// Strings returns the plan as plain strings.
func (p Plan) Strings() []string {
	out := make([]string, len(p))
	for i, t := range p {
		out[i] = string(t)
	}
	return out
}

// State is the terminal state of a run.
type State string

const (
	StateCompleted        State = "completed"
	StatePlanningError    State = "planning_error"
	StateResourceError    State = "resource_error"
	StateUnknownTaskError State = "unknown_task_error"
	StateExecutionError   State = "execution_error"
)

// Outcome is the result of one run.
type Outcome struct {
	RunID string
	State State
	Plan  Plan

	// Outputs holds every completed stage, including those of a failed run.
	// ToResponse only exposes it for completed runs.
	Outputs *Outputs

	FinalResult string
	Err         error
	Duration    time.Duration
}

// Completed reports whether the run finished every stage.
func (o Outcome) Completed() bool {
	return o.State == StateCompleted
}

// StageError reports the task a run stopped at.
type StageError struct {
	Task  registry.TaskID
	Stage int

	// Kind is ErrUnknownTask, ErrResource or ErrExecution.
	Kind error
	Err  error
}

func (e *StageError) Error() string {
	switch e.Kind {
	case ErrUnknownTask:
		return fmt.Sprintf("Unknown task: %s", e.Task)
	case ErrExecution:
		return fmt.Sprintf("Failed running %s: %v", e.Task, e.Err)
	default:
		return e.Err.Error()
	}
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// stateFor maps a stage error kind to the run's terminal state.
func stateFor(kind error) State {
	switch kind {
	case ErrUnknownTask:
		return StateUnknownTaskError
	case ErrResource:
		return StateResourceError
	default:
		return StateExecutionError
	}
}
