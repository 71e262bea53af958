package dsl

import (
	"errors"

	"github.com/aretw0/conductor/pkg/workflow"
)

var errNoMessenger = errors.New("no messenger configured")

// TriggerBuilder binds an event to an action.
type TriggerBuilder struct {
	event   string
	action  string
	cond    workflow.Condition
	builder *Builder
}

// When sets the trigger condition. Several conditions must all hold.
func (t *TriggerBuilder) When(conds ...workflow.Condition) *TriggerBuilder {
	if len(conds) == 1 {
		t.cond = conds[0]
	} else {
		t.cond = workflow.All(conds...)
	}
	return t
}

// InState is shorthand for When(workflow.StateIs(keys...)).
func (t *TriggerBuilder) InState(keys ...string) *TriggerBuilder {
	return t.When(workflow.StateIs(keys...))
}

// Run names the action and returns to the workflow builder.
func (t *TriggerBuilder) Run(action string) *Builder {
	t.action = action
	return t.builder
}
