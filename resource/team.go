package resource

import "fmt"

// Role describes a seat in a team layout.
type Role struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

/// TeamLayout shapes a team: the roles it contains and how they relate.
type TeamLayout struct {
	Name             string              `json:"name"`
	Roles            map[string]Role     `json:"roles"`
	PeerGroups       map[string][]string `json:"peer_groups,omitempty"`
	ManagementGroups map[string][]string `json:"management_groups,omitempty"`
}

// Member binds a role to an identity running on an agent.
type Member struct {
	Identity string `json:"identity"`
	Agent    string `json:"agent"`
}

// TeamSpec assigns members to a layout's roles. members[role].agent must
// refer to an existing agent when a workflow is triggered; the check is
// lazy, at trigger time.
type TeamSpec struct {
	Name    string            `json:"name"`
	Layout  TeamLayout        `json:"layout"`
	Members map[string]Member `json:"members,omitempty"`
}

func (s TeamSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: team name is required", ErrInvalidResource)
	}
	for role := range s.Members {
		if _, ok := s.Layout.Roles[role]; !ok {
			return fmt.Errorf("%w: member role %q not in layout", ErrInvalidResource, role)
		}
	}
	return nil
}

// RoleDescription returns the layout description for a role, or the role
// name itself when the layout carries none.
func (s TeamSpec) RoleDescription(role string) string {
	if r, ok := s.Layout.Roles[role]; ok && r.Description != "" {
		return r.Description
	}
	return role
}

// AgentForRole resolves the agent backing a role.
func (s TeamSpec) AgentForRole(role string) (string, error) {
	m, ok := s.Members[role]
	if !ok || m.Agent == "" {
		return "", fmt.Errorf("%w: no agent for role %q in team %q", ErrNotFound, role, s.Name)
	}
	return m.Agent, nil
}

type TeamStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type TeamResource struct {
	APIVersion string            `json:"api_version"`
	Kind       string            `json:"kind"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Spec       TeamSpec          `json:"spec"`
	Status     TeamStatus        `json:"status"`
}

func NewTeamResource(spec TeamSpec) TeamResource {
	return TeamResource{
		APIVersion: APIVersion,
		Kind:       "team",
		Spec:       spec,
		Status:     TeamStatus{Name: spec.Name, Status: StatusActive},
	}
}

func (r TeamResource) GetName() string { return r.Spec.Name }
