package resource

import "fmt"

// IdentitySpec names a persona that can be assigned to team roles.
type IdentitySpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (s IdentitySpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: identity name is required", ErrInvalidResource)
	}
	return nil
}

type IdentityStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

type IdentityResource struct {
	APIVersion string            `json:"api_version"`
	Kind       string            `json:"kind"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Spec       IdentitySpec      `json:"spec"`
	Status     IdentityStatus    `json:"status"`
}

func NewIdentityResource(spec IdentitySpec) IdentityResource {
	return IdentityResource{
		APIVersion: APIVersion,
		Kind:       "identity",
		Spec:       spec,
		Status:     IdentityStatus{Name: spec.Name, Status: StatusActive},
	}
}

func (r IdentityResource) GetName() string { return r.Spec.Name }
