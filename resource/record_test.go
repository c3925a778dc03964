package resource

import "testing"

func echoSpec() WorkflowSpec {
	return WorkflowSpec{
		Name:    "echo",
		Team:    "core",
		Inputs:  []TypedArgument{{Type: "text", Name: "q"}},
		Outputs: []TypedArgument{{Type: "text", Name: "a"}},
		Steps: map[string]WorkflowStep{
			"s1": {
				Role:      "driver",
				Action:    "Echo",
				InputMap:  map[string]string{"in": "workflow.q"},
				OutputMap: map[string]string{"out": "a"},
			},
		},
	}
}

func TestNewWorkflowRecord(t *testing.T) {
	spec := echoSpec()
	rec := NewWorkflowRecord(spec, map[string]string{"q": "hi"}, "ws-1")

	if rec.ID == "" {
		t.Error("expected generated record id")
	}
	if rec.Name != "echo" {
		t.Errorf("name = %q", rec.Name)
	}
	if rec.Workspace != "ws-1" {
		t.Errorf("workspace = %q", rec.Workspace)
	}

	got, ok := rec.Context["workflow.q"]
	if !ok {
		t.Fatal("context missing workflow.q")
	}
	if got.Type != "text" || got.Value != "hi" {
		t.Errorf("context[workflow.q] = %+v", got)
	}

	t.Run("unsupplied inputs are absent", func(t *testing.T) {
		spec := echoSpec()
		spec.Inputs = append(spec.Inputs, TypedArgument{Type: "text", Name: "extra"})
		rec := NewWorkflowRecord(spec, map[string]string{"q": "hi"}, "")
		if _, ok := rec.Context["workflow.extra"]; ok {
			t.Error("context must not invent values for unsupplied inputs")
		}
	})
}

func TestStepReady(t *testing.T) {
	spec := echoSpec()
	rec := NewWorkflowRecord(spec, map[string]string{"q": "hi"}, "")

	if !rec.StepReady(spec.Steps["s1"]) {
		t.Error("s1 should be ready: workflow.q is in context")
	}

	downstream := WorkflowStep{InputMap: map[string]string{"in": "s1.out"}}
	if rec.StepReady(downstream) {
		t.Error("downstream step should not be ready before s1 reports")
	}

	rec.Context["s1.out"] = TypedResult{Type: "text", Value: "hi"}
	if !rec.StepReady(downstream) {
		t.Error("downstream step should be ready once s1.out lands in context")
	}
}

func TestComplete(t *testing.T) {
	spec := echoSpec()

	t.Run("incomplete without outputs", func(t *testing.T) {
		rec := NewWorkflowRecord(spec, map[string]string{"q": "hi"}, "")
		if rec.Complete() {
			t.Error("fresh record must not be complete")
		}
	})

	t.Run("complete via outputs", func(t *testing.T) {
		rec := NewWorkflowRecord(spec, map[string]string{"q": "hi"}, "")
		rec.Outputs["a"] = TypedResult{Type: "text", Value: "hi"}
		if !rec.Complete() {
			t.Error("record with all outputs must be complete")
		}
	})

	t.Run("complete via errors", func(t *testing.T) {
		rec := NewWorkflowRecord(spec, map[string]string{"q": "hi"}, "")
		rec.Errors["a"] = "step failed"
		if !rec.Complete() {
			t.Error("record with errors covering outputs must be complete")
		}
	})

	t.Run("partial coverage is incomplete", func(t *testing.T) {
		two := echoSpec()
		two.Outputs = append(two.Outputs, TypedArgument{Type: "text", Name: "b"})
		rec := NewWorkflowRecord(two, map[string]string{"q": "hi"}, "")
		rec.Outputs["a"] = TypedResult{Type: "text", Value: "hi"}
		if rec.Complete() {
			t.Error("record missing output b must not be complete")
		}
	})
}

func TestLastResult(t *testing.T) {
	var rs StepRunStatus
	if _, ok := rs.LastResult(); ok {
		t.Error("empty run status has no last result")
	}

	rs.Runs = 2
	rs.Results = []StepResult{{Error: "boom"}, {Outputs: map[string]TypedResult{"out": {Type: "text", Value: "ok"}}}}
	last, ok := rs.LastResult()
	if !ok {
		t.Fatal("expected a last result")
	}
	if last.Error != "" {
		t.Errorf("last result error = %q", last.Error)
	}
}
