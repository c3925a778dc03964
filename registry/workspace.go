package registry

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/store"
)

// WorkspaceService manages workspace resources.
type WorkspaceService struct {
	core core[resource.WorkspaceResource]
}

func NewWorkspaceService(s store.Store, logger *slog.Logger) *WorkspaceService {
	return &WorkspaceService{core: newCore[resource.WorkspaceResource](s, resource.TypeWorkspace, logger)}
}

func (s *WorkspaceService) Create(ctx context.Context, spec resource.WorkspaceSpec, namespace string) (resource.WorkspaceResource, error) {
	if err := spec.Validate(); err != nil {
		return resource.WorkspaceResource{}, err
	}
	return s.core.create(ctx, namespace, spec.Name, resource.NewWorkspaceResource(spec))
}

func (s *WorkspaceService) Get(ctx context.Context, name, namespace string) (resource.WorkspaceResource, error) {
	return s.core.get(ctx, namespace, name)
}

func (s *WorkspaceService) List(ctx context.Context, namespace string) ([]resource.WorkspaceResource, error) {
	return s.core.list(ctx, namespace)
}

func (s *WorkspaceService) Update(ctx context.Context, spec resource.WorkspaceSpec, namespace string) (resource.WorkspaceResource, error) {
	if err := spec.Validate(); err != nil {
		return resource.WorkspaceResource{}, err
	}
	current, err := s.core.get(ctx, namespace, spec.Name)
	if err != nil {
		return resource.WorkspaceResource{}, err
	}
	current.Spec = spec
	if err := s.core.put(ctx, namespace, spec.Name, current); err != nil {
		return resource.WorkspaceResource{}, err
	}
	return current, nil
}

// UpdateOrCreate upserts a workspace. The integration adapter calls it
// on every external event for the same logical workspace.
func (s *WorkspaceService) UpdateOrCreate(ctx context.Context, spec resource.WorkspaceSpec, namespace string) (resource.WorkspaceResource, error) {
	res, err := s.Update(ctx, spec, namespace)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, resource.ErrNotFound) {
		return resource.WorkspaceResource{}, err
	}
	res, err = s.Create(ctx, spec, namespace)
	if err == nil {
		return res, nil
	}
	// Lost a create race; the other writer's document is current.
	if errors.Is(err, resource.ErrAlreadyExists) {
		return s.Update(ctx, spec, namespace)
	}
	return resource.WorkspaceResource{}, err
}

func (s *WorkspaceService) Delete(ctx context.Context, name, namespace string) (bool, error) {
	return s.core.delete(ctx, namespace, name)
}
