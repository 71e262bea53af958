package domain

import (
	"reflect"
)

// StateDiff represents the changes between two committed states of a task.
// It is designed to be serialized to JSON for partial updates on clients.
type StateDiff struct {
	// Key is set when the state key changed.
	Key *string `json:"key,omitempty"`

	// Data contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Data map[string]any `json:"data,omitempty"`
}

// Diff calculates the difference between oldState and newState.
// If oldState is nil, it returns a diff representing the entire newState.
// It returns nil when nothing changed.
func Diff(oldState, newState *State) *StateDiff {
	if newState == nil {
		return nil
	}

	diff := &StateDiff{}
	if oldState == nil || oldState.Key != newState.Key {
		key := newState.Key
		diff.Key = &key
	}
	diff.Data = diffData(oldState, newState)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffData(old *State, new *State) map[string]any {
	delta := make(map[string]any)

	if old == nil {
		for k, v := range new.Data {
			delta[k] = v
		}
		if len(delta) == 0 {
			return nil
		}
		return delta
	}

	for k, newVal := range new.Data {
		oldVal, exists := old.Data[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	for k := range old.Data {
		if _, exists := new.Data[k]; !exists {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// IsEmpty checks if the diff contains any changes.
func (d *StateDiff) IsEmpty() bool {
	return d.Key == nil && len(d.Data) == 0
}
