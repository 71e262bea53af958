package domain

// Event is the stimulus delivered to a task.
type Event struct {
	Key     string         `json:"key" yaml:"key"`
	Payload map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// NewEvent creates an event with its own copy of the payload.
func NewEvent(key string, payload map[string]any) Event {
	return Event{Key: key, Payload: copyMap(payload)}
}
