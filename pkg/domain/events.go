package domain

import (
	"context"
	"time"
)

// EventType defines the category of a lifecycle event.
type EventType string

const (
	EventTaskCreated EventType = "task_created"
	EventHandled     EventType = "event_handled"
	EventStateCommit EventType = "state_commit"
)

// EventBase contains common fields for all lifecycle events.
type EventBase struct {
	Timestamp   time.Time `json:"timestamp"`
	Type        EventType `json:"type"`
	TaskID      string    `json:"task_id"`
	WorkflowKey string    `json:"workflow_key"`
}

// TaskEvent is emitted once a task has been created and stored.
type TaskEvent struct {
	EventBase
	StateKey string `json:"state_key"`
}

// DispatchEvent is emitted after every event delivery, whatever its outcome.
type DispatchEvent struct {
	EventBase
	EventKey  string        `json:"event_key"`
	ActionKey string        `json:"action_key,omitempty"`
	Success   bool          `json:"success"`
	Code      ErrorCode     `json:"code,omitempty"`
	Cost      float64       `json:"cost"`
	Duration  time.Duration `json:"duration"`
}

// CommitEvent is emitted when a task's committed state changes.
type CommitEvent struct {
	EventBase
	FromState string     `json:"from_state"`
	ToState   string     `json:"to_state"`
	Diff      *StateDiff `json:"diff,omitempty"`
}

// LifecycleHooks defines callbacks for orchestrator observability.
// Hooks run synchronously on the dispatching goroutine.
type LifecycleHooks struct {
	OnTaskCreated  func(context.Context, *TaskEvent)
	OnEventHandled func(context.Context, *DispatchEvent)
	OnStateCommit  func(context.Context, *CommitEvent)
}
