package resource

import (
	"errors"
	"reflect"
	"testing"
)

func TestStepDependencies(t *testing.T) {
	tests := []struct {
		name string
		step WorkflowStep
		want []string
	}{
		{
			name: "workflow inputs are not dependencies",
			step: WorkflowStep{InputMap: map[string]string{"q": "workflow.question"}},
			want: nil,
		},
		{
			name: "step outputs are dependencies",
			step: WorkflowStep{InputMap: map[string]string{"in": "s1.out", "extra": "s2.out"}},
			want: []string{"s1", "s2"},
		},
		{
			name: "mixed sources",
			step: WorkflowStep{InputMap: map[string]string{"a": "workflow.x", "b": "s1.y"}},
			want: []string{"s1"},
		},
		{
			name: "duplicate sources collapse",
			step: WorkflowStep{InputMap: map[string]string{"a": "s1.x", "b": "s1.y"}},
			want: []string{"s1"},
		},
		{
			name: "no inputs",
			step: WorkflowStep{},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := tt.step.Dependencies()
			if len(deps) != len(tt.want) {
				t.Fatalf("got %d deps %v, want %v", len(deps), deps, tt.want)
			}
			for _, name := range tt.want {
				if _, ok := deps[name]; !ok {
					t.Errorf("missing dependency %q in %v", name, deps)
				}
			}
		})
	}
}

func TestUpdateDerivedState(t *testing.T) {
	t.Run("linear chain sorts in dependency order", func(t *testing.T) {
		spec := WorkflowSpec{
			Name: "chain",
			Team: "core",
			Steps: map[string]WorkflowStep{
				"s3": {InputMap: map[string]string{"in": "s2.out"}},
				"s1": {InputMap: map[string]string{"in": "workflow.q"}},
				"s2": {InputMap: map[string]string{"in": "s1.out"}},
			},
		}
		if err := spec.UpdateDerivedState(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"s1", "s2", "s3"}
		if !reflect.DeepEqual(spec.DerivedState.SortedSteps, want) {
			t.Errorf("sorted steps = %v, want %v", spec.DerivedState.SortedSteps, want)
		}
	})

	t.Run("independent steps sort alphabetically", func(t *testing.T) {
		spec := WorkflowSpec{
			Name: "fanout",
			Team: "core",
			Steps: map[string]WorkflowStep{
				"b": {}, "a": {}, "c": {},
			},
		}
		if err := spec.UpdateDerivedState(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"a", "b", "c"}
		if !reflect.DeepEqual(spec.DerivedState.SortedSteps, want) {
			t.Errorf("sorted steps = %v, want %v", spec.DerivedState.SortedSteps, want)
		}
	})

	t.Run("diamond", func(t *testing.T) {
		spec := WorkflowSpec{
			Name: "diamond",
			Team: "core",
			Steps: map[string]WorkflowStep{
				"join":  {InputMap: map[string]string{"l": "left.out", "r": "right.out"}},
				"left":  {InputMap: map[string]string{"in": "root.out"}},
				"right": {InputMap: map[string]string{"in": "root.out"}},
				"root":  {},
			},
		}
		if err := spec.UpdateDerivedState(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		order := make(map[string]int, 4)
		for i, s := range spec.DerivedState.SortedSteps {
			order[s] = i
		}
		if order["root"] > order["left"] || order["root"] > order["right"] {
			t.Errorf("root must precede branches: %v", spec.DerivedState.SortedSteps)
		}
		if order["join"] < order["left"] || order["join"] < order["right"] {
			t.Errorf("join must follow branches: %v", spec.DerivedState.SortedSteps)
		}
	})

	t.Run("cycle is rejected", func(t *testing.T) {
		spec := WorkflowSpec{
			Name: "cyclic",
			Team: "core",
			Steps: map[string]WorkflowStep{
				"s1": {InputMap: map[string]string{"x": "s2.y"}},
				"s2": {InputMap: map[string]string{"y": "s1.x"}},
			},
		}
		err := spec.UpdateDerivedState()
		if err == nil {
			t.Fatal("expected error for cyclic step graph")
		}
		if !errors.Is(err, ErrInvalidResource) {
			t.Errorf("expected ErrInvalidResource, got %v", err)
		}
		if len(spec.DerivedState.SortedSteps) != 0 {
			t.Errorf("derived state must stay empty on failure, got %v", spec.DerivedState.SortedSteps)
		}
	})

	t.Run("self cycle is rejected", func(t *testing.T) {
		spec := WorkflowSpec{
			Name:  "selfie",
			Team:  "core",
			Steps: map[string]WorkflowStep{"s1": {InputMap: map[string]string{"x": "s1.x"}}},
		}
		if err := spec.UpdateDerivedState(); err == nil {
			t.Fatal("expected error for self-referencing step")
		}
	})
}

func TestWorkflowSpecValidate(t *testing.T) {
	t.Run("unknown dependency", func(t *testing.T) {
		spec := WorkflowSpec{
			Name:  "bad",
			Team:  "core",
			Steps: map[string]WorkflowStep{"s1": {InputMap: map[string]string{"in": "ghost.out"}}},
		}
		if err := spec.Validate(); !errors.Is(err, ErrInvalidResource) {
			t.Errorf("expected ErrInvalidResource, got %v", err)
		}
	})

	t.Run("missing team", func(t *testing.T) {
		spec := WorkflowSpec{Name: "bad"}
		if err := spec.Validate(); err == nil {
			t.Error("expected error for missing team")
		}
	})
}

func TestTeamSpec(t *testing.T) {
	team := TeamSpec{
		Name: "core",
		Layout: TeamLayout{
			Name: "pair",
			Roles: map[string]Role{
				"driver":   {Name: "driver", Description: "writes the code"},
				"observer": {Name: "observer"},
			},
		},
		Members: map[string]Member{
			"driver": {Identity: "alice", Agent: "coder"},
		},
	}

	t.Run("role description from layout", func(t *testing.T) {
		if got := team.RoleDescription("driver"); got != "writes the code" {
			t.Errorf("RoleDescription = %q", got)
		}
	})

	t.Run("role description falls back to role name", func(t *testing.T) {
		if got := team.RoleDescription("observer"); got != "observer" {
			t.Errorf("RoleDescription = %q", got)
		}
	})

	t.Run("agent for role", func(t *testing.T) {
		agent, err := team.AgentForRole("driver")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if agent != "coder" {
			t.Errorf("agent = %q", agent)
		}
	})

	t.Run("missing member", func(t *testing.T) {
		if _, err := team.AgentForRole("observer"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("member outside layout fails validation", func(t *testing.T) {
		bad := team
		bad.Members = map[string]Member{"ghost": {Agent: "x"}}
		if err := bad.Validate(); !errors.Is(err, ErrInvalidResource) {
			t.Errorf("expected ErrInvalidResource, got %v", err)
		}
	})
}
