package domain

import (
	"errors"
	"fmt"
)

// Check is the answer of an action guard.
// Description explains the gating condition even when Can is true.
type Check struct {
	Can         bool   `json:"can"`
	Description string `json:"description"`
}

// EmitEvent describes a follow-up event an action wants the caller to deliver.
// The engine attaches it to the result but never dispatches it.
type EmitEvent struct {
	Key          string                                   `json:"key"`
	BuildPayload func(result ActionResult) map[string]any `json:"-"`
}

// ActionResult is the outcome of one event resolution.
type ActionResult struct {
	// ActionKey is empty when no action was selected.
	ActionKey string `json:"action_key,omitempty"`

	// NewState is the state to commit when Success is true.
	// A successful result without NewState leaves the state as it was.
	NewState *State `json:"new_state,omitempty"`

	// Cost is inert metadata for downstream consumers.
	Cost float64 `json:"cost"`

	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
	Emit    *EmitEvent     `json:"emit_event,omitempty"`

	// Code is set on dispatch failures.
	Code ErrorCode `json:"error_code,omitempty"`
}

// Failed creates an unsuccessful result for a dispatch failure.
func Failed(code ErrorCode, message string) ActionResult {
	return ActionResult{
		Success: false,
		Message: message,
		Code:    code,
	}
}

// Err returns the failure as an error, or nil for a successful result.
// Failures carrying a Code wrap the matching sentinel.
func (r ActionResult) Err() error {
	if r.Success {
		return nil
	}
	if r.Code == CodeActionInvocationFailed {
		return &InvocationError{ActionKey: r.ActionKey, Cause: r.Message}
	}
	if sentinel := r.Code.Sentinel(); sentinel != nil {
		if r.Message == "" {
			return sentinel
		}
		return fmt.Errorf("%w: %s", sentinel, r.Message)
	}
	if r.Message != "" {
		return errors.New(r.Message)
	}
	if r.ActionKey != "" {
		return fmt.Errorf("action '%s' reported failure", r.ActionKey)
	}
	return errors.New("dispatch failed")
}

// FollowUp derives the event described by the result's Emit descriptor.
func (r ActionResult) FollowUp() (Event, bool) {
	if r.Emit == nil || r.Emit.Key == "" {
		return Event{}, false
	}
	var payload map[string]any
	if r.Emit.BuildPayload != nil {
		payload = r.Emit.BuildPayload(r)
	}
	return Event{Key: r.Emit.Key, Payload: payload}, true
}
