package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/conductor/pkg/workflow"
)

// Builder manages the workflow construction.
type Builder struct {
	key      string
	initial  string
	actions  map[string]*ActionBuilder
	order    []string
	triggers []*TriggerBuilder
	opts     []workflow.Option
}

// New creates a new workflow builder whose tasks start in initialState.
func New(key, initialState string) *Builder {
	return &Builder{
		key:     key,
		initial: initialState,
		actions: make(map[string]*ActionBuilder),
	}
}

// Options sets workflow options applied on Build.
func (b *Builder) Options(opts ...workflow.Option) *Builder {
	b.opts = append(b.opts, opts...)
	return b
}

// Action declares an action.
// If the action already exists, it returns the existing builder.
func (b *Builder) Action(key string) *ActionBuilder {
	if ab, ok := b.actions[key]; ok {
		return ab
	}
	ab := &ActionBuilder{
		spec:    workflow.ActionSpec{Key: key},
		builder: b,
	}
	b.actions[key] = ab
	b.order = append(b.order, key)
	return ab
}

// On starts a trigger for event. Triggers keep the order in which On is called.
func (b *Builder) On(event string) *TriggerBuilder {
	tb := &TriggerBuilder{event: event, builder: b}
	b.triggers = append(b.triggers, tb)
	return tb
}

// Build compiles the declarations into a workflow.
// Every problem is reported, not only the first.
func (b *Builder) Build() (*workflow.Workflow, error) {
	wf := workflow.New(b.key, b.initial, b.opts...)

	var errs []error
	built := make(map[string]workflow.Action, len(b.order))
	for _, key := range b.order {
		a, err := b.actions[key].build()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := wf.RegisterAction(a); err != nil {
			errs = append(errs, err)
			continue
		}
		built[key] = a
	}

	for _, tb := range b.triggers {
		if tb.action == "" {
			errs = append(errs, fmt.Errorf("trigger for event '%s' has no action", tb.event))
			continue
		}
		a, ok := built[tb.action]
		if !ok {
			if _, declared := b.actions[tb.action]; !declared {
				errs = append(errs, fmt.Errorf("trigger for event '%s' references unknown action '%s'", tb.event, tb.action))
			}
			continue
		}
		if err := wf.AddTrigger(tb.event, a, tb.cond); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to build workflow '%s': %w", b.key, errors.Join(errs...))
	}
	return wf, nil
}

// MustBuild is like Build but panics on error. Intended for static declarations.
func (b *Builder) MustBuild() *workflow.Workflow {
	wf, err := b.Build()
	if err != nil {
		panic(err)
	}
	return wf
}
