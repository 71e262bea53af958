package workflow

import (
	"reflect"

	"github.com/aretw0/conductor/pkg/domain"
)

// Condition decides whether a trigger applies to the state and event.
type Condition func(state domain.State, event domain.Event) bool

// Any is a condition that always holds.
func Any(domain.State, domain.Event) bool { return true }

// StateIs holds when the current state key is one of keys.
func StateIs(keys ...string) Condition {
	return func(state domain.State, _ domain.Event) bool {
		for _, k := range keys {
			if state.Key == k {
				return true
			}
		}
		return false
	}
}

// PayloadEquals holds when the event payload carries value under key.
func PayloadEquals(key string, value any) Condition {
	return func(_ domain.State, event domain.Event) bool {
		got, ok := event.Payload[key]
		return ok && looselyEqual(got, value)
	}
}

// DataEquals holds when the state data carries value under key.
func DataEquals(key string, value any) Condition {
	return func(state domain.State, _ domain.Event) bool {
		got, ok := state.Data[key]
		return ok && looselyEqual(got, value)
	}
}

// All holds when every condition holds. All() holds.
func All(conds ...Condition) Condition {
	return func(state domain.State, event domain.Event) bool {
		for _, c := range conds {
			if c != nil && !c(state, event) {
				return false
			}
		}
		return true
	}
}

// Not negates a condition.
func Not(c Condition) Condition {
	return func(state domain.State, event domain.Event) bool {
		return !c(state, event)
	}
}

// looselyEqual treats numbers of different kinds as equal when their values match,
// since payloads decoded from JSON or YAML rarely keep the Go type of a literal.
func looselyEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
