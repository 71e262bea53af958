package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
)

// Trigger binds an event key to an (action, condition) pair.
type Trigger struct {
	EventKey  string
	Action    Action
	Condition Condition
}

// Workflow owns a registry of actions and triggers and resolves events against a state.
//
// Registries are insertion ordered: registration order is the priority of
// triggers bound to the same event. The working state used by InitState,
// SetState, State and HandleEvent is a single slot; concurrent callers that
// need isolation use Dispatch, which brings its own state.
type Workflow struct {
	key             string
	initialStateKey string
	logger          *slog.Logger

	mu         sync.RWMutex
	actions    []Action
	actionIdx  map[string]int
	triggers   map[string][]Trigger
	eventOrder []string

	stateMu     sync.Mutex
	initialData map[string]any
	current     *domain.State
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithLogger sets the logger used for resolution diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

// New creates a workflow whose tasks start in initialStateKey.
func New(key, initialStateKey string, opts ...Option) *Workflow {
	w := &Workflow{
		key:             key,
		initialStateKey: initialStateKey,
		logger:          logging.NewNop(),
		actionIdx:       make(map[string]int),
		triggers:        make(map[string][]Trigger),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("workflow", key)
	return w
}

// Key returns the workflow key.
func (w *Workflow) Key() string { return w.key }

// InitialStateKey returns the key of the state new tasks start in.
func (w *Workflow) InitialStateKey() string { return w.initialStateKey }

// RegisterAction adds the action under its key.
// Registering a key twice fails with domain.ErrActionKeyConflict.
func (w *Workflow) RegisterAction(a Action) error {
	if a == nil {
		return fmt.Errorf("%w: nil action", ErrInvalidAction)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.registerLocked(a)
}

func (w *Workflow) registerLocked(a Action) error {
	if _, exists := w.actionIdx[a.Key()]; exists {
		return fmt.Errorf("%w: '%s' in workflow '%s'", domain.ErrActionKeyConflict, a.Key(), w.key)
	}
	w.actionIdx[a.Key()] = len(w.actions)
	w.actions = append(w.actions, a)
	return nil
}

// AddTrigger registers the action if its key is not yet known, then binds
// (eventKey, action) to cond. A nil cond always holds.
// Binding the same (eventKey, action key) twice fails with domain.ErrTriggerConflict.
// Passing a different action under an already registered key fails with
// domain.ErrActionKeyConflict.
func (w *Workflow) AddTrigger(eventKey string, a Action, cond Condition) error {
	if eventKey == "" {
		return fmt.Errorf("event key is required for a trigger in workflow '%s'", w.key)
	}
	if a == nil {
		return fmt.Errorf("%w: nil action for event '%s'", ErrInvalidAction, eventKey)
	}
	if cond == nil {
		cond = Any
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, t := range w.triggers[eventKey] {
		if t.Action.Key() == a.Key() {
			return fmt.Errorf("%w: event '%s' -> action '%s' in workflow '%s'",
				domain.ErrTriggerConflict, eventKey, a.Key(), w.key)
		}
	}

	if idx, exists := w.actionIdx[a.Key()]; !exists {
		if err := w.registerLocked(a); err != nil {
			return err
		}
	} else if !sameAction(w.actions[idx], a) {
		return fmt.Errorf("%w: '%s' in workflow '%s' is bound to another action",
			domain.ErrActionKeyConflict, a.Key(), w.key)
	}

	if _, seen := w.triggers[eventKey]; !seen {
		w.eventOrder = append(w.eventOrder, eventKey)
	}
	w.triggers[eventKey] = append(w.triggers[eventKey], Trigger{
		EventKey:  eventKey,
		Action:    a,
		Condition: cond,
	})
	return nil
}

// sameAction reports whether x and y are the same action value.
// Non-comparable implementations are never considered equal.
func sameAction(x, y Action) bool {
	if reflect.TypeOf(x) != reflect.TypeOf(y) || !reflect.TypeOf(x).Comparable() {
		return false
	}
	return x == y
}

// Action returns the registered action with the given key.
func (w *Workflow) Action(key string) (Action, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	idx, ok := w.actionIdx[key]
	if !ok {
		return nil, false
	}
	return w.actions[idx], true
}

// Actions returns the registered actions in registration order.
func (w *Workflow) Actions() []Action {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Action, len(w.actions))
	copy(out, w.actions)
	return out
}

// Events returns the event keys that have triggers, in first-registration order.
func (w *Workflow) Events() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, len(w.eventOrder))
	copy(out, w.eventOrder)
	return out
}

// Triggers returns the triggers bound to eventKey in priority order.
func (w *Workflow) Triggers(eventKey string) []Trigger {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Trigger, len(w.triggers[eventKey]))
	copy(out, w.triggers[eventKey])
	return out
}

// SetInitialData sets the data InitState attaches to the initial state.
func (w *Workflow) SetInitialData(data map[string]any) {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	w.initialData = domain.NewState("", data).Data
}

// InitState resets the working state to the initial state key and initial data.
func (w *Workflow) InitState() domain.State {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	s := domain.NewState(w.initialStateKey, w.initialData)
	w.current = &s
	return s.Clone()
}

// SetState overwrites the working state.
func (w *Workflow) SetState(state domain.State) {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	s := state.Clone()
	w.current = &s
}

// State returns the working state, or false if it was never initialised.
func (w *Workflow) State() (domain.State, bool) {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	if w.current == nil {
		return domain.State{}, false
	}
	return w.current.Clone(), true
}

// HandleEvent resolves event against the working state and, on success,
// replaces the working state with the result's new state.
// Failures are reported in the result, never as a panic.
func (w *Workflow) HandleEvent(ctx context.Context, event domain.Event, m ports.Messenger) domain.ActionResult {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()

	out := w.Dispatch(ctx, w.current, event, m)
	if out.State != nil {
		s := *out.State
		w.current = &s
	}
	return out.Result
}

// Outcome is the full report of one Dispatch call.
type Outcome struct {
	Result domain.ActionResult

	// State is the state after the call: the new state on success,
	// a copy of the input otherwise. Nil when the input was nil.
	State *domain.State

	// Trigger is the selected trigger, nil when none matched.
	Trigger *Trigger

	// Duration is the time spent inside the action body.
	Duration time.Duration
}

// Dispatch resolves event against state without touching the working state.
// It borrows the registries read-only, so any number of calls may run concurrently.
//
// Triggers for the event are tried in registration order; the first whose
// condition and action guard both pass is invoked, and no later trigger is
// considered even if that invocation fails.
func (w *Workflow) Dispatch(ctx context.Context, state *domain.State, event domain.Event, m ports.Messenger) Outcome {
	if state == nil {
		return Outcome{Result: domain.Failed(domain.CodeInvalidState,
			fmt.Sprintf("workflow '%s' has no current state", w.key))}
	}
	current := state.Clone()
	out := Outcome{State: &current}

	triggers := w.Triggers(event.Key)
	if len(triggers) == 0 {
		out.Result = domain.Failed(domain.CodeNoTriggersForEvent,
			fmt.Sprintf("no triggers for event '%s' in workflow '%s'", event.Key, w.key))
		return out
	}

	selected := w.resolve(ctx, triggers, current, event)
	if selected == nil {
		out.Result = domain.Failed(domain.CodeNoApplicableAction,
			fmt.Sprintf("no applicable action for event '%s' in state '%s'", event.Key, current.Key))
		return out
	}
	out.Trigger = selected

	start := time.Now()
	out.Result = w.invoke(ctx, selected.Action, current, m)
	out.Duration = time.Since(start)

	if out.Result.Success && out.Result.NewState != nil {
		next := out.Result.NewState.Clone()
		out.State = &next
	}
	return out
}

// resolve returns the first trigger whose condition and guard pass.
func (w *Workflow) resolve(ctx context.Context, triggers []Trigger, state domain.State, event domain.Event) *Trigger {
	for i := range triggers {
		t := &triggers[i]
		if !w.safeCondition(ctx, t, state, event) {
			w.logger.DebugContext(ctx, "trigger condition not met",
				"event", event.Key, "action", t.Action.Key(), "state", state.Key)
			continue
		}
		check := w.safeGuard(ctx, t.Action, state)
		if !check.Can {
			w.logger.DebugContext(ctx, "action guard rejected",
				"event", event.Key, "action", t.Action.Key(), "reason", check.Description)
			continue
		}
		return t
	}
	return nil
}

func (w *Workflow) safeCondition(ctx context.Context, t *Trigger, state domain.State, event domain.Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.WarnContext(ctx, "trigger condition panicked", "event", event.Key, "action", t.Action.Key(), "panic", r)
			ok = false
		}
	}()
	return t.Condition(state.Clone(), event)
}

func (w *Workflow) safeGuard(ctx context.Context, a Action, state domain.State) (check domain.Check) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.WarnContext(ctx, "action guard panicked", "action", a.Key(), "panic", r)
			check = domain.Check{Can: false, Description: fmt.Sprintf("guard panicked: %v", r)}
		}
	}()
	return a.CanBeInvoked(state.Clone())
}

// invoke runs the action, turning errors and panics into failed results.
func (w *Workflow) invoke(ctx context.Context, a Action, state domain.State, m ports.Messenger) (res domain.ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.ErrorContext(ctx, "action panicked", "action", a.Key(), "panic", r)
			res = invocationFailure(a.Key(), fmt.Sprint(r))
		}
	}()

	res, err := a.Invoke(ctx, state.Clone(), m)
	if err != nil {
		w.logger.WarnContext(ctx, "action failed", "action", a.Key(), "err", err)
		return invocationFailure(a.Key(), err.Error())
	}
	if res.ActionKey == "" {
		res.ActionKey = a.Key()
	}
	return res
}

func invocationFailure(actionKey, message string) domain.ActionResult {
	return domain.ActionResult{
		ActionKey: actionKey,
		Success:   false,
		Cost:      0,
		Message:   message,
		Code:      domain.CodeActionInvocationFailed,
	}
}
