package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/workflow"
)

// Built-in action kinds.
const (
	KindTransition = "transition"
	KindNotify     = "notify"
	KindReject     = "reject"
	KindCall       = "call"
)

// ErrNoMessenger is returned by notify actions invoked without a messenger.
var ErrNoMessenger = errors.New("no messenger configured")

// TransitionParams configures the transition kind.
type TransitionParams struct {
	To   string         `mapstructure:"to"`
	Data map[string]any `mapstructure:"data"`
}

// NotifyParams configures the notify kind.
// Without To the task stays where it is.
type NotifyParams struct {
	Message string         `mapstructure:"message"`
	Roles   []string       `mapstructure:"roles"`
	To      string         `mapstructure:"to"`
	Data    map[string]any `mapstructure:"data"`
}

// RejectParams configures the reject kind.
type RejectParams struct {
	Reason string `mapstructure:"reason"`
}

// CallParams configures the call kind.
// The tool result is stored under SaveTo when set.
type CallParams struct {
	Tool   string         `mapstructure:"tool"`
	Args   map[string]any `mapstructure:"args"`
	SaveTo string         `mapstructure:"save_to"`
	To     string         `mapstructure:"to"`
}

func base(spec Spec, to string) workflow.ActionSpec {
	return workflow.ActionSpec{
		Key:         spec.Key,
		Description: spec.Description,
		Cost:        spec.Cost,
		From:        spec.RequiresState,
		To:          to,
		Emit:        spec.Emit,
	}
}

func transitionFactory(_ *Registry, spec Spec) (workflow.Action, error) {
	var p TransitionParams
	if err := DecodeParams(spec.Params, &p); err != nil {
		return nil, fmt.Errorf("action '%s': invalid transition params: %w", spec.Key, err)
	}
	if p.To == "" {
		return nil, fmt.Errorf("action '%s': transition requires 'to'", spec.Key)
	}
	as := base(spec, p.To)
	as.Perform = workflow.TransitionTo(p.To, p.Data)
	return workflow.NewAction(as)
}

func notifyFactory(_ *Registry, spec Spec) (workflow.Action, error) {
	var p NotifyParams
	if err := DecodeParams(spec.Params, &p); err != nil {
		return nil, fmt.Errorf("action '%s': invalid notify params: %w", spec.Key, err)
	}
	if p.Message == "" {
		return nil, fmt.Errorf("action '%s': notify requires 'message'", spec.Key)
	}

	as := base(spec, p.To)
	as.Perform = func(ctx context.Context, state domain.State, m ports.Messenger) (domain.ActionResult, error) {
		if m == nil {
			return domain.ActionResult{}, ErrNoMessenger
		}
		if err := m.Send(ctx, p.Message, p.Roles); err != nil {
			return domain.ActionResult{}, err
		}
		res := domain.ActionResult{
			Success: true,
			Data:    map[string]any{"message": p.Message, "roles": p.Roles},
		}
		if p.To != "" || len(p.Data) > 0 {
			to := p.To
			if to == "" {
				to = state.Key
			}
			next := state.With(to, p.Data)
			res.NewState = &next
		}
		return res, nil
	}
	return workflow.NewAction(as)
}

func rejectFactory(_ *Registry, spec Spec) (workflow.Action, error) {
	var p RejectParams
	if err := DecodeParams(spec.Params, &p); err != nil {
		return nil, fmt.Errorf("action '%s': invalid reject params: %w", spec.Key, err)
	}
	reason := p.Reason
	if reason == "" {
		reason = "rejected"
	}
	as := base(spec, "")
	as.Perform = func(ctx context.Context, state domain.State, m ports.Messenger) (domain.ActionResult, error) {
		return domain.ActionResult{Success: false, Message: reason}, nil
	}
	return workflow.NewAction(as)
}

func callFactory(r *Registry, spec Spec) (workflow.Action, error) {
	var p CallParams
	if err := DecodeParams(spec.Params, &p); err != nil {
		return nil, fmt.Errorf("action '%s': invalid call params: %w", spec.Key, err)
	}
	if p.Tool == "" {
		return nil, fmt.Errorf("action '%s': call requires 'tool'", spec.Key)
	}

	as := base(spec, p.To)
	as.Perform = func(ctx context.Context, state domain.State, m ports.Messenger) (domain.ActionResult, error) {
		args := domain.NewState("", state.Data).Data
		if args == nil {
			args = make(map[string]any, len(p.Args))
		}
		for k, v := range p.Args {
			args[k] = v
		}

		out, err := r.Execute(ctx, p.Tool, args)
		if err != nil {
			return domain.ActionResult{}, err
		}

		to := p.To
		if to == "" {
			to = state.Key
		}
		var data map[string]any
		if p.SaveTo != "" {
			data = map[string]any{p.SaveTo: out}
		}
		next := state.With(to, data)
		return domain.ActionResult{
			Success:  true,
			NewState: &next,
			Data:     map[string]any{"tool": p.Tool, "result": out},
		}, nil
	}
	return workflow.NewAction(as)
}
