package registry

import (
	"context"
	"log/slog"

	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/store"
)

// TeamService manages team resources. The router resolves roles to
// agents through it at trigger time.
type TeamService struct {
	core core[resource.TeamResource]
}

func NewTeamService(s store.Store, logger *slog.Logger) *TeamService {
	return &TeamService{core: newCore[resource.TeamResource](s, resource.TypeTeam, logger)}
}

func (s *TeamService) Create(ctx context.Context, spec resource.TeamSpec, namespace string) (resource.TeamResource, error) {
	if err := spec.Validate(); err != nil {
		return resource.TeamResource{}, err
	}
	return s.core.create(ctx, namespace, spec.Name, resource.NewTeamResource(spec))
}

func (s *TeamService) Get(ctx context.Context, name, namespace string) (resource.TeamResource, error) {
	return s.core.get(ctx, namespace, name)
}

func (s *TeamService) List(ctx context.Context, namespace string) ([]resource.TeamResource, error) {
	return s.core.list(ctx, namespace)
}

func (s *TeamService) Update(ctx context.Context, spec resource.TeamSpec, namespace string) (resource.TeamResource, error) {
	if err := spec.Validate(); err != nil {
		return resource.TeamResource{}, err
	}
	current, err := s.core.get(ctx, namespace, spec.Name)
	if err != nil {
		return resource.TeamResource{}, err
	}
	current.Spec = spec
	if err := s.core.put(ctx, namespace, spec.Name, current); err != nil {
		return resource.TeamResource{}, err
	}
	return current, nil
}

func (s *TeamService) Delete(ctx context.Context, name, namespace string) (bool, error) {
	return s.core.delete(ctx, namespace, name)
}
