package registry

import (
	"context"
	"log/slog"

	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/store"
)

// IdentityService manages identity resources.
type IdentityService struct {
	core core[resource.IdentityResource]
}

func NewIdentityService(s store.Store, logger *slog.Logger) *IdentityService {
	return &IdentityService{core: newCore[resource.IdentityResource](s, resource.TypeIdentity, logger)}
}

func (s *IdentityService) Create(ctx context.Context, spec resource.IdentitySpec, namespace string) (resource.IdentityResource, error) {
	if err := spec.Validate(); err != nil {
		return resource.IdentityResource{}, err
	}
	return s.core.create(ctx, namespace, spec.Name, resource.NewIdentityResource(spec))
}

func (s *IdentityService) Get(ctx context.Context, name, namespace string) (resource.IdentityResource, error) {
	return s.core.get(ctx, namespace, name)
}

func (s *IdentityService) List(ctx context.Context, namespace string) ([]resource.IdentityResource, error) {
	return s.core.list(ctx, namespace)
}

func (s *IdentityService) Update(ctx context.Context, spec resource.IdentitySpec, namespace string) (resource.IdentityResource, error) {
	if err := spec.Validate(); err != nil {
		return resource.IdentityResource{}, err
	}
	current, err := s.core.get(ctx, namespace, spec.Name)
	if err != nil {
		return resource.IdentityResource{}, err
	}
	current.Spec = spec
	if err := s.core.put(ctx, namespace, spec.Name, current); err != nil {
		return resource.IdentityResource{}, err
	}
	return current, nil
}

func (s *IdentityService) Delete(ctx context.Context, name, namespace string) (bool, error) {
	return s.core.delete(ctx, namespace, name)
}
