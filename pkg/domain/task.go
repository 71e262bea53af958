package domain

import "time"

// Task binds a workflow definition to one independent state instance.
// State is always the last committed state.
type Task struct {
	ID          string    `json:"id"`
	WorkflowKey string    `json:"workflow_key"`
	State       State     `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a copy that shares nothing mutable with the receiver.
func (t Task) Clone() Task {
	next := t
	next.State = t.State.Clone()
	return next
}
