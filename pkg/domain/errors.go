package domain

import (
	"errors"
	"fmt"
)

// ErrWorkflowNotFound is returned when a workflow key is not registered.
var ErrWorkflowNotFound = errors.New("workflow not found")

// ErrTaskNotFound is returned when a task ID cannot be found in the store.
var ErrTaskNotFound = errors.New("task not found")

// ErrActionKeyConflict is returned when an action key is registered twice on one workflow.
var ErrActionKeyConflict = errors.New("action key already registered")

// ErrTriggerConflict is returned when the same (event, action) pair is bound twice.
var ErrTriggerConflict = errors.New("trigger already registered")

// ErrWorkflowKeyConflict is returned when two workflows share a key on one orchestrator.
var ErrWorkflowKeyConflict = errors.New("workflow key already registered")

// ErrInvalidState is reported when a workflow has no current state.
var ErrInvalidState = errors.New("workflow state not initialized")

// ErrNoTriggersForEvent is reported when nothing is bound to the event key.
var ErrNoTriggersForEvent = errors.New("no triggers for event")

// ErrNoApplicableAction is reported when triggers exist but none passed its condition and guard.
var ErrNoApplicableAction = errors.New("no applicable action")

// ErrActionInvocationFailed is reported when an action body returned an error or panicked.
var ErrActionInvocationFailed = errors.New("action invocation failed")

// ErrCommitFailed is reported when a successful result could not be persisted.
var ErrCommitFailed = errors.New("commit failed")

// ErrMessageNotRegistered is returned by messengers asked to send an unknown message key.
var ErrMessageNotRegistered = errors.New("message not registered")

// ErrorCode is the serialisable form of a dispatch failure.
type ErrorCode string

const (
	CodeWorkflowNotFound       ErrorCode = "workflow_not_found"
	CodeTaskNotFound           ErrorCode = "task_not_found"
	CodeInvalidState           ErrorCode = "invalid_state"
	CodeNoTriggersForEvent     ErrorCode = "no_triggers_for_event"
	CodeNoApplicableAction     ErrorCode = "no_applicable_action"
	CodeActionInvocationFailed ErrorCode = "action_invocation_failed"
	CodeCommitFailed           ErrorCode = "commit_failed"
)

var codeErrors = map[ErrorCode]error{
	CodeWorkflowNotFound:       ErrWorkflowNotFound,
	CodeTaskNotFound:           ErrTaskNotFound,
	CodeInvalidState:           ErrInvalidState,
	CodeNoTriggersForEvent:     ErrNoTriggersForEvent,
	CodeNoApplicableAction:     ErrNoApplicableAction,
	CodeActionInvocationFailed: ErrActionInvocationFailed,
	CodeCommitFailed:           ErrCommitFailed,
}

// Sentinel returns the sentinel error matching the code, or nil if there is none.
func (c ErrorCode) Sentinel() error {
	return codeErrors[c]
}

// InvocationError describes a failure raised from inside an action body.
type InvocationError struct {
	ActionKey string
	Cause     string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("action '%s' failed: %s", e.ActionKey, e.Cause)
}

// Unwrap allows errors.Is(err, ErrActionInvocationFailed).
func (e *InvocationError) Unwrap() error {
	return ErrActionInvocationFailed
}
