package domain

// State represents where a task currently is.
// It is a value: any change is expressed by producing a new State.
type State struct {
	// Key is the caller-defined identifier of the state (e.g. "processing").
	Key string `json:"key" yaml:"key"`

	// Data holds the variables attached to the state.
	Data map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// NewState creates a state with its own copy of data.
func NewState(key string, data map[string]any) State {
	return State{
		Key:  key,
		Data: copyMap(data),
	}
}

// Clone returns a deep copy so the receiver can be handed to untrusted code.
func (s State) Clone() State {
	return State{
		Key:  s.Key,
		Data: copyMap(s.Data),
	}
}

// With returns a new state with the given key and data merged over the current data.
func (s State) With(key string, data map[string]any) State {
	next := s.Clone()
	next.Key = key
	if next.Data == nil && len(data) > 0 {
		next.Data = make(map[string]any, len(data))
	}
	for k, v := range data {
		next.Data[k] = v
	}
	return next
}

// copyMap deep-copies nested maps and slices; other values are shared.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
