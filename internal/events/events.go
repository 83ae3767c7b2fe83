// Package events publishes pipeline lifecycle events.
//
// Events are published to NATS subjects of the form:
//   - {prefix}.{run_id}.run.started
//   - {prefix}.{run_id}.stage.started
//   - {prefix}.{run_id}.stage.completed
//   - {prefix}.{run_id}.stage.failed
//   - {prefix}.{run_id}.run.finished
//
// Publishing is fire-and-forget from the pipeline's point of view: a failed
// publish is logged by the caller and never changes a run's outcome.
package events

import (
	"context"
	"time"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "orchestrator.runs"

// Kind names a lifecycle transition.
type Kind string

const (
	RunStarted     Kind = "run.started"
	StageStarted   Kind = "stage.started"
	StageCompleted Kind = "stage.completed"
	StageFailed    Kind = "stage.failed"
	RunFinished    Kind = "run.finished"
)

// Event is one lifecycle notification.
type Event struct {
	Kind  Kind   `json:"kind"`
	RunID string `json:"run_id"`

	// Task and Stage are set for stage events. Stage is the zero-based
	// position of the task in the plan.
	Task  string `json:"task,omitempty"`
	Stage int    `json:"stage"`

	// Plan is set on run.finished, and on run.started when the run was
	// given an explicit plan.
	Plan []string `json:"plan,omitempty"`

	// State is the terminal state, set on run.finished.
	State string `json:"state,omitempty"`

	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }
