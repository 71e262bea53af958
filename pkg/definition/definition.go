package definition

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Definition is the declarative form of a workflow.
type Definition struct {
	Key          string         `yaml:"key" json:"key"`
	Description  string         `yaml:"description,omitempty" json:"description,omitempty"`
	InitialState string         `yaml:"initial_state" json:"initial_state"`
	Messages     map[string]any `yaml:"messages,omitempty" json:"messages,omitempty"`
	Actions      []Action       `yaml:"actions" json:"actions"`
	Triggers     []Trigger      `yaml:"triggers" json:"triggers"`

	// Source is the file the definition was read from, if any.
	Source string `yaml:"-" json:"-"`
}

// Action declares one action. Params are interpreted by the kind.
type Action struct {
	Key           string         `yaml:"key" json:"key"`
	Kind          string         `yaml:"kind,omitempty" json:"kind,omitempty"`
	Description   string         `yaml:"description,omitempty" json:"description,omitempty"`
	Cost          float64        `yaml:"cost,omitempty" json:"cost,omitempty"`
	RequiresState string         `yaml:"requires_state,omitempty" json:"requires_state,omitempty"`
	Params        map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
	Emit          *Emit          `yaml:"emit,omitempty" json:"emit,omitempty"`
}

// Emit declares the follow-up event of an action.
type Emit struct {
	Key     string         `yaml:"key" json:"key"`
	Payload map[string]any `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// Trigger binds an event to an action, optionally under a condition.
type Trigger struct {
	Event  string `yaml:"event" json:"event"`
	Action string `yaml:"action" json:"action"`
	When   *When  `yaml:"when,omitempty" json:"when,omitempty"`
}

// When is a conjunction: every listed field must match.
type When struct {
	State    StringList     `yaml:"state,omitempty" json:"state,omitempty"`
	NotState StringList     `yaml:"not_state,omitempty" json:"not_state,omitempty"`
	Payload  map[string]any `yaml:"payload,omitempty" json:"payload,omitempty"`
	Data     map[string]any `yaml:"data,omitempty" json:"data,omitempty"`
}

// StringList accepts either a single string or a list of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v string
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = StringList{v}
		return nil
	case yaml.SequenceNode:
		var v []string
		if err := node.Decode(&v); err != nil {
			return err
		}
		*s = v
		return nil
	}
	return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("expected a string or a list of strings: %w", err)
	}
	*s = list
	return nil
}
