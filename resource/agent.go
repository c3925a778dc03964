package resource

import "fmt"

// AgentCapabilities are the privilege flags an agent container runs with.
type AgentCapabilities struct {
	NetworkAccess   bool `json:"network_access"`
	MessagingAccess bool `json:"messaging_access"`
}

// AgentSpec declares a remote worker process addressable by name.
type AgentSpec struct {
	Name         string            `json:"name"`
	Image        string            `json:"image"`
	Capabilities AgentCapabilities `json:"capabilities"`
}

func (s AgentSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: agent name is required", ErrInvalidResource)
	}
	if s.Image == "" {
		return fmt.Errorf("%w: agent image is required", ErrInvalidResource)
	}
	return nil
}

// AgentContainer describes the running container backing an agent, as
// reported by the runtime.
type AgentContainer struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Image        string            `json:"image"`
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels,omitempty"`
	Capabilities AgentCapabilities `json:"capabilities"`
}

// AgentStatus is mutated only by status ingest.
type AgentStatus struct {
	Name      string          `json:"name"`
	Status    string          `json:"status"`
	HostIP    string          `json:"host_ip,omitempty"`
	Container *AgentContainer `json:"container,omitempty"`
}

func (s AgentStatus) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: agent status name is required", ErrInvalidEvent)
	}
	if s.Status == "" {
		return fmt.Errorf("%w: agent status value is required", ErrInvalidEvent)
	}
	return nil
}

// AgentResource is the persisted form of an agent.
type AgentResource struct {
	APIVersion string            `json:"api_version"`
	Kind       string            `json:"kind"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Spec       AgentSpec         `json:"spec"`
	Status     AgentStatus       `json:"status"`
}

func NewAgentResource(spec AgentSpec) AgentResource {
	return AgentResource{
		APIVersion: APIVersion,
		Kind:       "agent",
		Spec:       spec,
		Status:     AgentStatus{Name: spec.Name, Status: StatusPending},
	}
}

func (r AgentResource) GetName() string { return r.Spec.Name }
