package registry

import (
	"context"
	"log/slog"

	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/store"
)

// TaskService manages task resources reconciled by the task controller.
type TaskService struct {
	core core[resource.TaskResource]
}

func NewTaskService(s store.Store, logger *slog.Logger) *TaskService {
	return &TaskService{core: newCore[resource.TaskResource](s, resource.TypeTask, logger)}
}

func (s *TaskService) Create(ctx context.Context, spec resource.TaskSpec, namespace string) (resource.TaskResource, error) {
	if err := spec.Validate(); err != nil {
		return resource.TaskResource{}, err
	}
	return s.core.create(ctx, namespace, spec.Name, resource.NewTaskResource(spec))
}

func (s *TaskService) Get(ctx context.Context, name, namespace string) (resource.TaskResource, error) {
	return s.core.get(ctx, namespace, name)
}

func (s *TaskService) List(ctx context.Context, namespace string) ([]resource.TaskResource, error) {
	return s.core.list(ctx, namespace)
}

func (s *TaskService) Update(ctx context.Context, spec resource.TaskSpec, namespace string) (resource.TaskResource, error) {
	if err := spec.Validate(); err != nil {
		return resource.TaskResource{}, err
	}
	current, err := s.core.get(ctx, namespace, spec.Name)
	if err != nil {
		return resource.TaskResource{}, err
	}
	current.Spec = spec
	if err := s.core.put(ctx, namespace, spec.Name, current); err != nil {
		return resource.TaskResource{}, err
	}
	return current, nil
}

// PutStatus overwrites only the status portion.
func (s *TaskService) PutStatus(ctx context.Context, name, namespace string, status resource.TaskStatus) (resource.TaskResource, error) {
	current, err := s.core.get(ctx, namespace, name)
	if err != nil {
		return resource.TaskResource{}, err
	}
	current.Status = status
	if err := s.core.put(ctx, namespace, name, current); err != nil {
		return resource.TaskResource{}, err
	}
	return current, nil
}

func (s *TaskService) Delete(ctx context.Context, name, namespace string) (bool, error) {
	return s.core.delete(ctx, namespace, name)
}
