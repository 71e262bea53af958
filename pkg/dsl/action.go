package dsl

import (
	"context"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/workflow"
)

// ActionBuilder provides a fluent API for configuring an action.
type ActionBuilder struct {
	spec    workflow.ActionSpec
	data    map[string]any
	builder *Builder
}

// Describe sets the human readable description.
func (a *ActionBuilder) Describe(text string) *ActionBuilder {
	a.spec.Description = text
	return a
}

// Cost sets the declared cost reported on success.
func (a *ActionBuilder) Cost(cost float64) *ActionBuilder {
	a.spec.Cost = cost
	return a
}

// Requires restricts the action to the given state key.
func (a *ActionBuilder) Requires(state string) *ActionBuilder {
	a.spec.From = state
	return a
}

// To makes the action move the task to state.
// Without Do it becomes a plain transition.
func (a *ActionBuilder) To(state string) *ActionBuilder {
	a.spec.To = state
	return a
}

// Set adds a value merged into the state data by a plain transition.
func (a *ActionBuilder) Set(key string, value any) *ActionBuilder {
	if a.data == nil {
		a.data = make(map[string]any)
	}
	a.data[key] = value
	return a
}

// Guard replaces the default guard.
func (a *ActionBuilder) Guard(g workflow.GuardFunc) *ActionBuilder {
	a.spec.Guard = g
	return a
}

// Do sets the action body.
func (a *ActionBuilder) Do(fn workflow.PerformFunc) *ActionBuilder {
	a.spec.Perform = fn
	return a
}

// Notify makes the action send a registered message to roles.
// The task moves to the target set with To, or stays put.
func (a *ActionBuilder) Notify(message string, roles ...string) *ActionBuilder {
	a.spec.Perform = func(ctx context.Context, state domain.State, m ports.Messenger) (domain.ActionResult, error) {
		if m == nil {
			return domain.ActionResult{}, errNoMessenger
		}
		if err := m.Send(ctx, message, roles); err != nil {
			return domain.ActionResult{}, err
		}
		to := a.spec.To
		if to == "" {
			to = state.Key
		}
		next := state.With(to, a.data)
		return domain.ActionResult{
			Success:  true,
			NewState: &next,
			Data:     map[string]any{"message": message, "roles": roles},
		}, nil
	}
	return a
}

// Reject makes the action always report an unsuccessful result with reason.
func (a *ActionBuilder) Reject(reason string) *ActionBuilder {
	a.spec.Perform = func(context.Context, domain.State, ports.Messenger) (domain.ActionResult, error) {
		return domain.ActionResult{Success: false, Message: reason}, nil
	}
	return a
}

// Emit declares the follow-up event. build may be nil for an empty payload.
func (a *ActionBuilder) Emit(event string, build func(domain.ActionResult) map[string]any) *ActionBuilder {
	a.spec.Emit = &domain.EmitEvent{Key: event, BuildPayload: build}
	return a
}

// Done returns to the workflow builder.
func (a *ActionBuilder) Done() *Builder {
	return a.builder
}

func (a *ActionBuilder) build() (workflow.Action, error) {
	spec := a.spec
	if spec.Perform == nil && spec.To != "" && len(a.data) > 0 {
		spec.Perform = workflow.TransitionTo(spec.To, a.data)
	}
	return workflow.NewAction(spec)
}
