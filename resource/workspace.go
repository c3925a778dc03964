package resource

import "fmt"

// GithubInfo ties a workspace to a repository branch created for it.
type GithubInfo struct {
	InstallationID int64  `json:"installation_id"`
	RepositoryName string `json:"repository_name"`
	BranchName     string `json:"branch_name"`
	BaseHash       string `json:"base_hash,omitempty"`
}

// WorkspaceSpec identifies a shared working area consumed by workflow
// steps and owned by the external integration.
type WorkspaceSpec struct {
	Name       string      `json:"name"`
	Kind       string      `json:"kind"`
	GithubInfo *GithubInfo `json:"github_info,omitempty"`
}

func (s WorkspaceSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: workspace name is required", ErrInvalidResource)
	}
	return nil
}

type WorkspaceStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type WorkspaceResource struct {
	APIVersion string            `json:"api_version"`
	Kind       string            `json:"kind"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Spec       WorkspaceSpec     `json:"spec"`
	Status     WorkspaceStatus   `json:"status"`
}

func NewWorkspaceResource(spec WorkspaceSpec) WorkspaceResource {
	return WorkspaceResource{
		APIVersion: APIVersion,
		Kind:       "workspace",
		Spec:       spec,
		Status:     WorkspaceStatus{Name: spec.Name, Status: StatusActive},
	}
}

func (r WorkspaceResource) GetName() string { return r.Spec.Name }
