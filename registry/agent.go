package registry

import (
	"context"
	"log/slog"

	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/store"
)

// AgentService manages agent resources.
type AgentService struct {
	core core[resource.AgentResource]
}

func NewAgentService(s store.Store, logger *slog.Logger) *AgentService {
	return &AgentService{core: newCore[resource.AgentResource](s, resource.TypeAgent, logger)}
}

func (s *AgentService) Create(ctx context.Context, spec resource.AgentSpec, namespace string) (resource.AgentResource, error) {
	if err := spec.Validate(); err != nil {
		return resource.AgentResource{}, err
	}
	return s.core.create(ctx, namespace, spec.Name, resource.NewAgentResource(spec))
}

func (s *AgentService) Get(ctx context.Context, name, namespace string) (resource.AgentResource, error) {
	return s.core.get(ctx, namespace, name)
}

func (s *AgentService) List(ctx context.Context, namespace string) ([]resource.AgentResource, error) {
	return s.core.list(ctx, namespace)
}

// Update replaces the spec and preserves the current status.
func (s *AgentService) Update(ctx context.Context, spec resource.AgentSpec, namespace string) (resource.AgentResource, error) {
	if err := spec.Validate(); err != nil {
		return resource.AgentResource{}, err
	}
	current, err := s.core.get(ctx, namespace, spec.Name)
	if err != nil {
		return resource.AgentResource{}, err
	}
	current.Spec = spec
	if err := s.core.put(ctx, namespace, spec.Name, current); err != nil {
		return resource.AgentResource{}, err
	}
	return current, nil
}

// PutStatus overwrites only the status portion. Used by status ingest.
func (s *AgentService) PutStatus(ctx context.Context, name, namespace string, status resource.AgentStatus) (resource.AgentResource, error) {
	current, err := s.core.get(ctx, namespace, name)
	if err != nil {
		return resource.AgentResource{}, err
	}
	current.Status = status
	if err := s.core.put(ctx, namespace, name, current); err != nil {
		return resource.AgentResource{}, err
	}
	return current, nil
}

func (s *AgentService) Delete(ctx context.Context, name, namespace string) (bool, error) {
	return s.core.delete(ctx, namespace, name)
}
