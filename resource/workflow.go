package resource

import (
	"fmt"
	"strings"
)

// WorkflowRunConfig bounds re-execution of a failing step.
type WorkflowRunConfig struct {
	NumRetries int `json:"num_retries"`
}

// WorkflowStep is a node in a workflow's DAG. InputMap routes workflow
// values into action inputs; OutputMap routes action outputs into
// declared workflow outputs.
type WorkflowStep struct {
	Role      string            `json:"role"`
	Action    string            `json:"action"`
	InputMap  map[string]string `json:"inputMap,omitempty"`
	OutputMap map[string]string `json:"outputMap,omitempty"`
	RunConfig WorkflowRunConfig `json:"runConfig"`
}

// Dependencies returns the set of step names this step consumes outputs
// from. Values addressed as workflow.<input> are not dependencies.
func (s WorkflowStep) Dependencies() map[string]struct{} {
	deps := make(map[string]struct{})
	for _, v := range s.InputMap {
		source, _, _ := strings.Cut(v, ".")
		if source != "workflow" && source != "" {
			deps[source] = struct{}{}
		}
	}
	return deps
}

// WorkflowDerivedState is recomputed on every spec write.
type WorkflowDerivedState struct {
	SortedSteps []string `json:"sorted_steps,omitempty"`
}

// WorkflowSpec is the declarative definition of a workflow.
type WorkflowSpec struct {
	Name         string                  `json:"name"`
	Description  string                  `json:"description,omitempty"`
	Team         string                  `json:"team"`
	Inputs       []TypedArgument         `json:"inputs,omitempty"`
	Outputs      []TypedArgument         `json:"outputs,omitempty"`
	Steps        map[string]WorkflowStep `json:"steps"`
	DerivedState WorkflowDerivedState    `json:"derived_state,omitempty"`
}

func (s WorkflowSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: workflow name is required", ErrInvalidResource)
	}
	if s.Team == "" {
		return fmt.Errorf("%w: workflow %q declares no team", ErrInvalidResource, s.Name)
	}
	for name, step := range s.Steps {
		for dep := range step.Dependencies() {
			if _, ok := s.Steps[dep]; !ok {
				return fmt.Errorf("%w: step %q depends on unknown step %q", ErrInvalidResource, name, dep)
			}
		}
	}
	return nil
}

// UpdateDerivedState recomputes the topological step order. A cyclic
// graph fails the write before anything is persisted.
func (s *WorkflowSpec) UpdateDerivedState() error {
	sorted, err := sortSteps(s.Steps)
	if err != nil {
		return fmt.Errorf("workflow %q: %w", s.Name, err)
	}
	s.DerivedState.SortedSteps = sorted
	return nil
}

// OutputNames returns the declared workflow output names.
func (s WorkflowSpec) OutputNames() map[string]struct{} {
	names := make(map[string]struct{}, len(s.Outputs))
	for _, o := range s.Outputs {
		names[o.Name] = struct{}{}
	}
	return names
}

type WorkflowStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type WorkflowResource struct {
	APIVersion string            `json:"api_version"`
	Kind       string            `json:"kind"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Spec       WorkflowSpec      `json:"spec"`
	Status     WorkflowStatus    `json:"status"`
}

func NewWorkflowResource(spec WorkflowSpec) WorkflowResource {
	return WorkflowResource{
		APIVersion: APIVersion,
		Kind:       "workflow",
		Spec:       spec,
		Status:     WorkflowStatus{Name: spec.Name, Status: StatusPending},
	}
}

func (r WorkflowResource) GetName() string { return r.Spec.Name }
