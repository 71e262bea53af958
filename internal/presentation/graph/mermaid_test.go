package graph_test

import (
	"context"
	"strings"
	"testing"

	"github.com/aretw0/conductor/internal/presentation/graph"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/workflow"
)

func procurement(t *testing.T) *workflow.Workflow {
	t.Helper()
	wf := workflow.New("procurement", "rfq_uploaded")
	triggers := []struct {
		event string
		spec  workflow.ActionSpec
	}{
		{"rfq_uploaded_event", workflow.ActionSpec{Key: "process_rfq", From: "rfq_uploaded", To: "processing"}},
		{"rfq_processed_event", workflow.ActionSpec{Key: "request-roles", From: "processing", To: "awaiting.roles"}},
		{"ping", workflow.ActionSpec{Key: "remind", From: "processing", Perform: noop}},
		{"cancel", workflow.ActionSpec{Key: "cancel", To: "cancelled"}},
	}
	for _, tr := range triggers {
		if err := wf.AddTrigger(tr.event, workflow.MustAction(tr.spec), nil); err != nil {
			t.Fatalf("AddTrigger(%s) failed: %v", tr.event, err)
		}
	}
	return wf
}

func noop(ctx context.Context, s domain.State, m ports.Messenger) (domain.ActionResult, error) {
	return domain.ActionResult{Success: true}, nil
}

func TestGenerateMermaid(t *testing.T) {
	out := graph.GenerateMermaid(procurement(t), nil)

	contains := []string{
		"graph TD\n",
		`rfq_uploaded(("rfq_uploaded"))`,
		`processing["processing"]`,
		`awaiting_roles["awaiting.roles"]`,
		`any_state{{"*"}}`,
		`rfq_uploaded -- "rfq_uploaded_event / process_rfq" --> processing`,
		`processing -- "rfq_processed_event / request-roles" --> awaiting_roles`,
		`processing -. "ping / remind" .-> processing`,
		`any_state -- "cancel / cancel" --> cancelled`,
	}
	for _, want := range contains {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q\nGot:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Overlay") {
		t.Error("Expected no overlay section without overlay")
	}
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	out := graph.GenerateMermaid(procurement(t), &graph.GraphOverlay{
		VisitedStates: []string{"rfq_uploaded", "rfq_uploaded", "processing"},
		CurrentState:  "processing",
	})

	if strings.Count(out, "class rfq_uploaded visited;") != 1 {
		t.Errorf("Expected visited state to be styled once\nGot:\n%s", out)
	}
	if strings.Contains(out, "class processing visited;") {
		t.Error("Expected the current state not to be styled as visited")
	}
	if !strings.Contains(out, "class processing current;") {
		t.Error("Expected current state style")
	}
}

func TestGenerateMermaid_UnknownCurrentState(t *testing.T) {
	out := graph.GenerateMermaid(procurement(t), &graph.GraphOverlay{CurrentState: "escalated"})
	if !strings.Contains(out, `escalated["escalated"]`) || !strings.Contains(out, "class escalated current;") {
		t.Errorf("Expected the current state to be added\nGot:\n%s", out)
	}
}

func TestEdges_SkipsOpaqueActions(t *testing.T) {
	wf := workflow.New("w", "s")
	if err := wf.AddTrigger("e", opaque{}, nil); err != nil {
		t.Fatal(err)
	}
	if edges := graph.Edges(wf); len(edges) != 0 {
		t.Errorf("Expected no edges, got %+v", edges)
	}
}

type opaque struct{}

func (opaque) Key() string                            { return "opaque" }
func (opaque) Description() string                    { return "" }
func (opaque) Cost() float64                          { return 0 }
func (opaque) CanBeInvoked(domain.State) domain.Check { return domain.Check{Can: true} }
func (opaque) Invoke(context.Context, domain.State, ports.Messenger) (domain.ActionResult, error) {
	return domain.ActionResult{Success: true}, nil
}
