package domain

import "time"

// InvocationLog is the audit record of one event delivery.
type InvocationLog struct {
	Timestamp time.Time `json:"timestamp"`
	TaskID    string    `json:"task_id"`
	Event     Event     `json:"event"`

	// Success reports whether an action was selected for the event.
	// The action's own outcome lives in Result.Success.
	Success bool `json:"success"`

	Result  *ActionResult `json:"action_log_data,omitempty"`
	Message string        `json:"message,omitempty"`
}

// Committed reports whether this delivery changed the task's state.
func (l InvocationLog) Committed() bool {
	return l.Result != nil && l.Result.Success
}
