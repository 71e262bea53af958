package definition

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/registry"
	"github.com/aretw0/conductor/pkg/workflow"
)

// Build validates def and turns it into a workflow using the given kinds.
// A nil registry means registry.Builtins().
func Build(def *Definition, kinds *registry.Registry, opts ...workflow.Option) (*workflow.Workflow, error) {
	if kinds == nil {
		kinds = registry.Builtins()
	}
	if err := Validate(def, kinds); err != nil {
		return nil, err
	}

	wf := workflow.New(def.Key, def.InitialState, opts...)
	built := make(map[string]workflow.Action, len(def.Actions))
	for _, a := range def.Actions {
		action, err := kinds.Build(registry.Spec{
			Key:           a.Key,
			Kind:          a.Kind,
			Description:   a.Description,
			Cost:          a.Cost,
			RequiresState: a.RequiresState,
			Params:        a.Params,
			Emit:          a.Emit.event(),
		})
		if err != nil {
			return nil, err
		}
		if err := wf.RegisterAction(action); err != nil {
			return nil, err
		}
		built[a.Key] = action
	}

	for _, t := range def.Triggers {
		if err := wf.AddTrigger(t.Event, built[t.Action], t.When.condition()); err != nil {
			return nil, err
		}
	}
	return wf, nil
}

// BuildAll builds every definition, stopping at the first error.
// Definitions that disagree on a shared message key are rejected up front.
func BuildAll(defs []*Definition, kinds *registry.Registry, logger *slog.Logger) ([]*workflow.Workflow, error) {
	if err := ValidateMessages(defs); err != nil {
		return nil, err
	}
	out := make([]*workflow.Workflow, 0, len(defs))
	for _, def := range defs {
		var opts []workflow.Option
		if logger != nil {
			opts = append(opts, workflow.WithLogger(logger))
		}
		wf, err := Build(def, kinds, opts...)
		if err != nil {
			if def.Source != "" {
				return nil, fmt.Errorf("%s: %w", def.Source, err)
			}
			return nil, err
		}
		out = append(out, wf)
	}
	return out, nil
}

// RegisterMessages registers every declared message on m.
func RegisterMessages(def *Definition, m ports.Messenger) {
	if m == nil {
		return
	}
	for key, payload := range def.Messages {
		m.RegisterMessage(key, payload)
	}
}

func (e *Emit) event() *domain.EmitEvent {
	if e == nil {
		return nil
	}
	payload := e.Payload
	return &domain.EmitEvent{
		Key: e.Key,
		BuildPayload: func(r domain.ActionResult) map[string]any {
			out := domain.NewState("", payload).Data
			if out == nil {
				out = make(map[string]any, 1)
			}
			out["source_action"] = r.ActionKey
			return out
		},
	}
}

func (w *When) condition() workflow.Condition {
	if w == nil {
		return nil
	}
	var conds []workflow.Condition
	if len(w.State) > 0 {
		conds = append(conds, workflow.StateIs(w.State...))
	}
	if len(w.NotState) > 0 {
		conds = append(conds, workflow.Not(workflow.StateIs(w.NotState...)))
	}
	for k, v := range w.Payload {
		conds = append(conds, workflow.PayloadEquals(k, v))
	}
	for k, v := range w.Data {
		conds = append(conds, workflow.DataEquals(k, v))
	}
	return workflow.All(conds...)
}
