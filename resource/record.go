package resource

import (
	"github.com/google/uuid"
)

// StepResult is the outcome of one step run.
type StepResult struct {
	Outputs map[string]TypedResult `json:"outputs,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// StepRunStatus accumulates every run of one step within a record.
type StepRunStatus struct {
	Runs    int          `json:"runs"`
	Results []StepResult `json:"results,omitempty"`
}

// LastResult returns the most recent run result, if any.
func (s StepRunStatus) LastResult() (StepResult, bool) {
	if len(s.Results) == 0 {
		return StepResult{}, false
	}
	return s.Results[len(s.Results)-1], true
}

// WorkflowRecord is one execution of a workflow. Spec is a snapshot
// frozen at initiation; only Context, Outputs, Errors and RunStatus
// mutate afterwards.
type WorkflowRecord struct {
	ID        string                   `json:"id"`
	Name      string                   `json:"name"`
	Spec      WorkflowSpec             `json:"spec"`
	Workspace string                   `json:"workspace,omitempty"`
	Outputs   map[string]TypedResult   `json:"outputs"`
	Errors    map[string]string        `json:"errors"`
	Context   map[string]TypedResult   `json:"context"`
	RunStatus map[string]StepRunStatus `json:"run_status"`
}

// NewWorkflowRecord snapshots the spec and precomputes the initial
// context from the supplied inputs.
func NewWorkflowRecord(spec WorkflowSpec, inputs map[string]string, workspace string) WorkflowRecord {
	ctx := make(map[string]TypedResult, len(spec.Inputs))
	for _, in := range spec.Inputs {
		if v, ok := inputs[in.Name]; ok {
			ctx["workflow."+in.Name] = TypedResult{Type: in.Type, Value: v}
		}
	}
	return WorkflowRecord{
		ID:        uuid.NewString(),
		Name:      spec.Name,
		Spec:      spec,
		Workspace: workspace,
		Outputs:   make(map[string]TypedResult),
		Errors:    make(map[string]string),
		Context:   ctx,
		RunStatus: make(map[string]StepRunStatus),
	}
}

// StepReady reports whether every value the step consumes is present in
// the record context.
func (r WorkflowRecord) StepReady(step WorkflowStep) bool {
	for _, path := range step.InputMap {
		if _, ok := r.Context[path]; !ok {
			return false
		}
	}
	return true
}

// Complete reports whether the union of produced outputs and recorded
// errors covers every declared workflow output.
func (r WorkflowRecord) Complete() bool {
	for name := range r.Spec.OutputNames() {
		_, hasOut := r.Outputs[name]
		_, hasErr := r.Errors[name]
		if !hasOut && !hasErr {
			return false
		}
	}
	return true
}
