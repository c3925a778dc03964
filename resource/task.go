package resource

import "fmt"

// TaskAssignment routes a task to an identity filling a team role.
type TaskAssignment struct {
	IdentityName string `json:"identity_name"`
	TeamName     string `json:"team_name"`
	RoleName     string `json:"role_name"`
}

// TaskSpec is a standing unit of work reconciled against the agent
// runtime by the task controller.
type TaskSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Assignment  *TaskAssignment `json:"assignment,omitempty"`
}

func (s TaskSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: task name is required", ErrInvalidResource)
	}
	return nil
}

type TaskStatus struct {
	Name             string `json:"name"`
	Status           string `json:"status"`
	AssignmentStatus string `json:"assignment_status,omitempty"`
}

type TaskResource struct {
	APIVersion string            `json:"api_version"`
	Kind       string            `json:"kind"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Spec       TaskSpec          `json:"spec"`
	Status     TaskStatus        `json:"status"`
}

func NewTaskResource(spec TaskSpec) TaskResource {
	return TaskResource{
		APIVersion: APIVersion,
		Kind:       "task",
		Spec:       spec,
		Status:     TaskStatus{Name: spec.Name, Status: StatusPending},
	}
}

func (r TaskResource) GetName() string { return r.Spec.Name }
