package definition

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/aretw0/conductor/pkg/registry"
)

// ValidationError lists every problem found in a definition.
type ValidationError struct {
	Source   string
	Workflow string
	Problems []string
}

func (e *ValidationError) Error() string {
	where := e.Workflow
	if e.Source != "" {
		where = fmt.Sprintf("%s (%s)", e.Workflow, e.Source)
	}
	return fmt.Sprintf("workflow %s: found %d errors:\n- %s", where, len(e.Problems), strings.Join(e.Problems, "\n- "))
}

// ErrMessageConflict is returned when two definitions declare the same
// message key with different payloads. Messages share one messenger.
var ErrMessageConflict = errors.New("message declared with different payloads")

// ValidateMessages checks that definitions sharing a message key agree on its payload.
func ValidateMessages(defs []*Definition) error {
	owner := make(map[string]*Definition)
	var errs []error
	for _, def := range defs {
		keys := make([]string, 0, len(def.Messages))
		for key := range def.Messages {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			first, ok := owner[key]
			if !ok {
				owner[key] = def
				continue
			}
			if !reflect.DeepEqual(first.Messages[key], def.Messages[key]) {
				errs = append(errs, fmt.Errorf("%w: '%s' in workflows '%s' (%s) and '%s' (%s)",
					ErrMessageConflict, key, first.Key, first.Source, def.Key, def.Source))
			}
		}
	}
	return errors.Join(errs...)
}

// Validate checks structure and references. kinds may be nil to skip kind checks.
func Validate(def *Definition, kinds *registry.Registry) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if def.Key == "" {
		add("missing key")
	}
	if def.InitialState == "" {
		add("missing initial_state")
	}

	actions := make(map[string]bool, len(def.Actions))
	for i, a := range def.Actions {
		if a.Key == "" {
			add("actions[%d]: missing key", i)
			continue
		}
		if actions[a.Key] {
			add("actions[%d]: duplicate action key '%s'", i, a.Key)
		}
		actions[a.Key] = true

		kind := a.Kind
		if kind == "" {
			kind = registry.KindTransition
		}
		if kinds != nil && !kinds.HasKind(kind) {
			add("action '%s': unknown kind '%s'", a.Key, kind)
		}
		if kind == registry.KindNotify {
			if msg, _ := a.Params["message"].(string); msg != "" {
				if _, ok := def.Messages[msg]; !ok {
					add("action '%s': message '%s' is not declared in messages", a.Key, msg)
				}
			}
		}
		if a.Emit != nil && a.Emit.Key == "" {
			add("action '%s': emit requires a key", a.Key)
		}
	}

	type pair struct{ event, action string }
	seen := make(map[pair]bool, len(def.Triggers))
	for i, t := range def.Triggers {
		if t.Event == "" {
			add("triggers[%d]: missing event", i)
		}
		if t.Action == "" {
			add("triggers[%d]: missing action", i)
			continue
		}
		if !actions[t.Action] {
			add("triggers[%d]: unknown action '%s'", i, t.Action)
		}
		p := pair{t.Event, t.Action}
		if seen[p] {
			add("triggers[%d]: duplicate trigger '%s' -> '%s'", i, t.Event, t.Action)
		}
		seen[p] = true
	}

	if len(problems) > 0 {
		return &ValidationError{Source: def.Source, Workflow: def.Key, Problems: problems}
	}
	return nil
}
