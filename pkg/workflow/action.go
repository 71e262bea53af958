package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
)

// Action is a named, guarded unit of work.
//
// CanBeInvoked must be free of side effects. Invoke may block (e.g. while a
// messenger delivers a notification) and must not mutate the state it receives;
// changes are expressed through ActionResult.NewState.
type Action interface {
	Key() string
	Description() string
	Cost() float64
	CanBeInvoked(state domain.State) domain.Check
	Invoke(ctx context.Context, state domain.State, m ports.Messenger) (domain.ActionResult, error)
}

// Transitional is implemented by actions that declare the state keys they move between.
// It is informational and used for graph rendering; the engine never relies on it.
type Transitional interface {
	Transition() (from, to string)
}

// GuardFunc decides whether an action may run on the given state.
type GuardFunc func(state domain.State) domain.Check

// PerformFunc is the body of an action.
type PerformFunc func(ctx context.Context, state domain.State, m ports.Messenger) (domain.ActionResult, error)

// ActionSpec configures a function-backed action.
type ActionSpec struct {
	Key         string
	Description string
	Cost        float64

	// From, when set and Guard is nil, restricts the action to that state key.
	From string
	// To is the state key the action moves to. Informational unless Perform is nil.
	To string

	Guard   GuardFunc
	Perform PerformFunc
	Emit    *domain.EmitEvent
}

// ErrInvalidAction is returned for action specs that cannot be run.
var ErrInvalidAction = errors.New("invalid action")

type funcAction struct {
	spec ActionSpec
}

// NewAction builds an Action from a spec.
// A nil Perform with a non-empty To becomes a plain transition to To.
func NewAction(spec ActionSpec) (Action, error) {
	if spec.Key == "" {
		return nil, fmt.Errorf("%w: key is required", ErrInvalidAction)
	}
	if spec.Perform == nil {
		if spec.To == "" {
			return nil, fmt.Errorf("%w: action '%s' needs a perform function or a target state", ErrInvalidAction, spec.Key)
		}
		spec.Perform = TransitionTo(spec.To, nil)
	}
	if spec.Guard == nil {
		if spec.From != "" {
			spec.Guard = RequireState(spec.From)
		} else {
			spec.Guard = Always
		}
	}
	return &funcAction{spec: spec}, nil
}

// MustAction is like NewAction but panics on an invalid spec.
func MustAction(spec ActionSpec) Action {
	a, err := NewAction(spec)
	if err != nil {
		panic(err)
	}
	return a
}

func (a *funcAction) Key() string         { return a.spec.Key }
func (a *funcAction) Description() string { return a.spec.Description }
func (a *funcAction) Cost() float64       { return a.spec.Cost }

func (a *funcAction) Transition() (string, string) {
	return a.spec.From, a.spec.To
}

func (a *funcAction) CanBeInvoked(state domain.State) domain.Check {
	return a.spec.Guard(state)
}

// Invoke runs the body and fills in the action key, declared cost and emit descriptor.
func (a *funcAction) Invoke(ctx context.Context, state domain.State, m ports.Messenger) (domain.ActionResult, error) {
	res, err := a.spec.Perform(ctx, state, m)
	if err != nil {
		return domain.ActionResult{}, err
	}
	res.ActionKey = a.spec.Key
	if res.Cost == 0 {
		res.Cost = a.spec.Cost
	}
	if res.Emit == nil && a.spec.Emit != nil {
		res.Emit = a.spec.Emit
	}
	return res, nil
}

// Always is a guard that never blocks.
func Always(domain.State) domain.Check {
	return domain.Check{Can: true, Description: "always invocable"}
}

// RequireState is a guard that passes only on the given state key.
func RequireState(key string) GuardFunc {
	return func(state domain.State) domain.Check {
		return domain.Check{
			Can:         state.Key == key,
			Description: fmt.Sprintf("requires state '%s' (current: '%s')", key, state.Key),
		}
	}
}

// TransitionTo is a perform function that succeeds by moving to key,
// merging data over the current state data.
func TransitionTo(key string, data map[string]any) PerformFunc {
	return func(ctx context.Context, state domain.State, m ports.Messenger) (domain.ActionResult, error) {
		next := state.With(key, data)
		return domain.ActionResult{
			NewState: &next,
			Success:  true,
		}, nil
	}
}
