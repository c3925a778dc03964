package registry

import (
	"context"
	"log/slog"

	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/store"
)

// WorkflowService manages workflow specifications. Create and Update
// recompute the derived step order; a cyclic graph fails the operation
// before any write reaches the store.
type WorkflowService struct {
	core core[resource.WorkflowResource]
}

func NewWorkflowService(s store.Store, logger *slog.Logger) *WorkflowService {
	return &WorkflowService{core: newCore[resource.WorkflowResource](s, resource.TypeWorkflow, logger)}
}

func (s *WorkflowService) Create(ctx context.Context, spec resource.WorkflowSpec, namespace string) (resource.WorkflowResource, error) {
	if err := spec.Validate(); err != nil {
		return resource.WorkflowResource{}, err
	}
	if err := spec.UpdateDerivedState(); err != nil {
		return resource.WorkflowResource{}, err
	}
	return s.core.create(ctx, namespace, spec.Name, resource.NewWorkflowResource(spec))
}

func (s *WorkflowService) Get(ctx context.Context, name, namespace string) (resource.WorkflowResource, error) {
	return s.core.get(ctx, namespace, name)
}

func (s *WorkflowService) List(ctx context.Context, namespace string) ([]resource.WorkflowResource, error) {
	return s.core.list(ctx, namespace)
}

func (s *WorkflowService) Update(ctx context.Context, spec resource.WorkflowSpec, namespace string) (resource.WorkflowResource, error) {
	if err := spec.Validate(); err != nil {
		return resource.WorkflowResource{}, err
	}
	if err := spec.UpdateDerivedState(); err != nil {
		return resource.WorkflowResource{}, err
	}
	current, err := s.core.get(ctx, namespace, spec.Name)
	if err != nil {
		return resource.WorkflowResource{}, err
	}
	current.Spec = spec
	if err := s.core.put(ctx, namespace, spec.Name, current); err != nil {
		return resource.WorkflowResource{}, err
	}
	return current, nil
}

// Delete removes the spec only. In-flight records are untouched and
// stay navigable afterwards.
func (s *WorkflowService) Delete(ctx context.Context, name, namespace string) (bool, error) {
	return s.core.delete(ctx, namespace, name)
}
