package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/conductor/pkg/workflow"
)

// anyState stands for edges whose action does not require a source state.
const anyState = "*"

// GraphOverlay contains task data to visualize on the graph.
type GraphOverlay struct {
	VisitedStates []string
	CurrentState  string
}

// Edge is one trigger drawn between two states.
type Edge struct {
	From   string
	To     string
	Event  string
	Action string
}

// Edges derives the drawable edges of wf, in trigger priority order.
// Actions that are not workflow.Transitional cannot be placed and are skipped.
// An action without a target loops on its source state.
func Edges(wf *workflow.Workflow) []Edge {
	var edges []Edge
	for _, event := range wf.Events() {
		for _, t := range wf.Triggers(event) {
			tr, ok := t.Action.(workflow.Transitional)
			if !ok {
				continue
			}
			from, to := tr.Transition()
			if from == "" && to == "" {
				continue
			}
			if from == "" {
				from = anyState
			}
			if to == "" {
				to = from
			}
			edges = append(edges, Edge{From: from, To: to, Event: event, Action: t.Action.Key()})
		}
	}
	return edges
}

// GenerateMermaid produces a Mermaid flowchart for wf.
// It applies semantic styling:
// - Initial state: ((Circle))
// - Any state: {{Hexagon}}
// - Default: [Rectangle]
// It also applies overlay styles (Visited/Current) if provided.
func GenerateMermaid(wf *workflow.Workflow, overlay *GraphOverlay) string {
	edges := Edges(wf)

	var states []string
	seen := make(map[string]bool)
	addState := func(s string) {
		if !seen[s] {
			seen[s] = true
			states = append(states, s)
		}
	}
	addState(wf.InitialStateKey())
	for _, e := range edges {
		addState(e.From)
		addState(e.To)
	}

	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, s := range states {
		opener, closer := "[", "]"
		switch s {
		case wf.InitialStateKey():
			opener, closer = "((", "))"
		case anyState:
			opener, closer = "{{", "}}"
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", sanitizeMermaidID(s), opener, s, closer))
	}

	for _, e := range edges {
		label := strings.ReplaceAll(e.Event+" / "+e.Action, "\"", "'")
		arrow := fmt.Sprintf("-- \"%s\" -->", label)
		if e.From == e.To {
			// No state change.
			arrow = fmt.Sprintf("-. \"%s\" .->", label)
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", sanitizeMermaidID(e.From), arrow, sanitizeMermaidID(e.To)))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme.
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visited := make(map[string]bool)
		for _, s := range overlay.VisitedStates {
			id := sanitizeMermaidID(s)
			if id != "" && !visited[id] && s != overlay.CurrentState {
				visited[id] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", id))
			}
		}

		if overlay.CurrentState != "" {
			if !seen[overlay.CurrentState] {
				// States reached by custom actions are not part of the derived graph.
				sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", sanitizeMermaidID(overlay.CurrentState), overlay.CurrentState))
			}
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentState)))
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	if id == anyState {
		return "any_state"
	}
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
