package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/workflow"
	"github.com/mitchellh/mapstructure"
)

// ErrUnknownKind is returned when no factory is registered for an action kind.
var ErrUnknownKind = errors.New("unknown action kind")

// ErrUnknownTool is returned when a call action names an unregistered tool.
var ErrUnknownTool = errors.New("tool not found")

// Spec is the kind-independent description of a declared action.
type Spec struct {
	Key           string
	Kind          string
	Description   string
	Cost          float64
	RequiresState string
	Params        map[string]any
	Emit          *domain.EmitEvent
}

// Factory turns a spec into an action. Params are kind specific.
type Factory func(r *Registry, spec Spec) (workflow.Action, error)

// ToolFunction is a Go function callable from declared workflows.
// It receives the call arguments merged over the task data.
type ToolFunction func(ctx context.Context, args map[string]any) (any, error)

// Registry maps action kinds to factories and tool names to functions.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Factory
	tools map[string]ToolFunction
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[string]Factory),
		tools: make(map[string]ToolFunction),
	}
}

// Builtins returns a registry with the transition, notify, reject and call kinds.
func Builtins() *Registry {
	r := NewRegistry()
	r.RegisterKind(KindTransition, transitionFactory)
	r.RegisterKind(KindNotify, notifyFactory)
	r.RegisterKind(KindReject, rejectFactory)
	r.RegisterKind(KindCall, callFactory)
	return r
}

// RegisterKind adds a factory. An existing kind is overwritten.
func (r *Registry) RegisterKind(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind] = f
}

// Register adds a tool. An existing tool is overwritten.
func (r *Registry) Register(name string, fn ToolFunction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = fn
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// HasKind reports whether kind is registered.
func (r *Registry) HasKind(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.kinds[kind]
	return ok
}

// HasTool reports whether a tool is registered under name.
func (r *Registry) HasTool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Build creates the action described by spec.
func (r *Registry) Build(spec Spec) (workflow.Action, error) {
	kind := spec.Kind
	if kind == "" {
		kind = KindTransition
	}
	r.mu.RLock()
	f, ok := r.kinds[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: '%s' (action '%s')", ErrUnknownKind, kind, spec.Key)
	}
	return f(r, spec)
}

// Execute looks up a tool by name and runs it.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	fn, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return fn(ctx, args)
}

// DecodeParams decodes loosely typed params into out, rejecting unknown keys.
func DecodeParams(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(params)
}
