// Package taskcontroller reconciles task resources against the agent
// runtime: assign when a task names a team role, cancel on deletion,
// and cancel again when the backing agent disappears.
package taskcontroller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rosterlabs/roster/registry"
	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/watch"
)

// Assignment statuses written back to task resources.
const (
	AssignmentAssigned  = "assigned"
	AssignmentCancelled = "cancelled"
)

// RuntimeClient is the slice of the agent runtime the controller needs.
type RuntimeClient interface {
	AssignTask(ctx context.Context, host, agent string, task resource.TaskSpec) error
	CancelTask(ctx context.Context, host, agent, task string) error
}

// placement remembers where a task was assigned so it can be cancelled
// after the task or its agent is gone.
type placement struct {
	host  string
	agent string
}

// Controller drives task reconciliation off the informer caches.
type Controller struct {
	tasks     *registry.TaskService
	teams     *registry.TeamService
	runtime   RuntimeClient
	namespace string
	logger    *slog.Logger

	taskInformer  *watch.Informer[resource.TaskResource]
	agentInformer *watch.Informer[resource.AgentResource]

	mu         sync.Mutex
	placements map[string]placement
}

func NewController(tasks *registry.TaskService, teams *registry.TeamService, agents *registry.AgentService, rt RuntimeClient, namespace string, logger *slog.Logger) *Controller {
	if namespace == "" {
		namespace = resource.DefaultNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		tasks:      tasks,
		teams:      teams,
		runtime:    rt,
		namespace:  namespace,
		logger:     logger,
		placements: make(map[string]placement),
	}
	c.taskInformer = watch.NewInformer(
		resource.TypeTask,
		func(ctx context.Context) ([]resource.TaskResource, error) { return tasks.List(ctx, namespace) },
		func(r resource.TaskResource) string { return r.Spec.Name },
		logger,
	)
	c.agentInformer = watch.NewInformer(
		resource.TypeAgent,
		func(ctx context.Context) ([]resource.AgentResource, error) { return agents.List(ctx, namespace) },
		func(r resource.AgentResource) string { return r.Spec.Name },
		logger,
	)
	return c
}

// Setup seeds both informers, reconciles every cached task once, then
// attaches the event listeners. The initial pass runs concurrently per
// task; failures are logged, the next event retries.
func (c *Controller) Setup(ctx context.Context, watcher *watch.Watcher) error {
	if err := c.taskInformer.Setup(ctx, watcher); err != nil {
		return err
	}
	if err := c.agentInformer.Setup(ctx, watcher); err != nil {
		c.taskInformer.Teardown()
		return err
	}

	var wg sync.WaitGroup
	for _, task := range c.taskInformer.ListResources() {
		wg.Add(1)
		go func(task resource.TaskResource) {
			defer wg.Done()
			if err := c.reconcileTask(ctx, task); err != nil {
				c.logger.Warn("initial task reconcile failed", "task", task.Spec.Name, "error", err)
			}
		}(task)
	}
	wg.Wait()

	c.taskInformer.AddEventListener(func(event resource.ResourceEvent) error {
		c.handleTaskEvent(ctx, event)
		return nil
	})
	c.agentInformer.AddEventListener(func(event resource.ResourceEvent) error {
		c.handleAgentEvent(ctx, event)
		return nil
	})
	return nil
}

// Teardown detaches the informers.
func (c *Controller) Teardown() {
	c.taskInformer.Teardown()
	c.agentInformer.Teardown()
}

func (c *Controller) handleTaskEvent(ctx context.Context, event resource.ResourceEvent) {
	switch event.EventType {
	case resource.EventPut:
		task, ok := c.taskInformer.Get(event.Name)
		if !ok {
			return
		}
		if err := c.reconcileTask(ctx, task); err != nil {
			c.logger.Warn("task reconcile failed", "task", event.Name, "error", err)
		}
	case resource.EventDelete:
		if err := c.cancelTask(ctx, event.Name); err != nil {
			c.logger.Warn("task cancel failed", "task", event.Name, "error", err)
		}
	}
}

// handleAgentEvent cancels every task placed on a deleted agent.
func (c *Controller) handleAgentEvent(ctx context.Context, event resource.ResourceEvent) {
	if event.EventType != resource.EventDelete {
		return
	}

	c.mu.Lock()
	var affected []string
	for task, p := range c.placements {
		if p.agent == event.Name {
			affected = append(affected, task)
		}
	}
	c.mu.Unlock()

	for _, task := range affected {
		if err := c.cancelTask(ctx, task); err != nil {
			c.logger.Warn("cancel after agent delete failed", "task", task, "agent", event.Name, "error", err)
		}
	}
}

// reconcileTask assigns an unassigned task to the agent backing its
// team role. Tasks without an assignment, or already assigned, are left
// alone.
func (c *Controller) reconcileTask(ctx context.Context, task resource.TaskResource) error {
	if task.Spec.Assignment == nil || task.Status.AssignmentStatus == AssignmentAssigned {
		return nil
	}

	host, agent, err := c.resolvePlacement(ctx, *task.Spec.Assignment)
	if err != nil {
		return fmt.Errorf("place task %s: %w", task.Spec.Name, err)
	}

	if err := c.runtime.AssignTask(ctx, host, agent, task.Spec); err != nil {
		return fmt.Errorf("assign task %s to %s: %w", task.Spec.Name, agent, err)
	}

	status := task.Status
	status.Status = resource.StatusRunning
	status.AssignmentStatus = AssignmentAssigned
	if _, err := c.tasks.PutStatus(ctx, task.Spec.Name, c.namespace, status); err != nil {
		return err
	}

	c.mu.Lock()
	c.placements[task.Spec.Name] = placement{host: host, agent: agent}
	c.mu.Unlock()

	c.logger.Info("task assigned", "task", task.Spec.Name, "agent", agent, "host", host)
	return nil
}

// cancelTask withdraws a placed task from its runtime. Unplaced tasks
// cancel trivially.
func (c *Controller) cancelTask(ctx context.Context, name string) error {
	c.mu.Lock()
	p, ok := c.placements[name]
	delete(c.placements, name)
	c.mu.Unlock()
	if !ok {
		return nil
	}

	if err := c.runtime.CancelTask(ctx, p.host, p.agent, name); err != nil {
		// The runtime may already have dropped it.
		if errors.Is(err, resource.ErrNotFound) {
			return nil
		}
		return err
	}

	// The resource may be gone when cancellation follows a delete.
	status := resource.TaskStatus{Name: name, Status: resource.StatusDeleted, AssignmentStatus: AssignmentCancelled}
	if _, err := c.tasks.PutStatus(ctx, name, c.namespace, status); err != nil && !errors.Is(err, resource.ErrNotFound) {
		return err
	}

	c.logger.Info("task cancelled", "task", name, "agent", p.agent)
	return nil
}

// resolvePlacement maps an assignment through its team to a running
// agent with a known host.
func (c *Controller) resolvePlacement(ctx context.Context, assignment resource.TaskAssignment) (host, agent string, err error) {
	team, err := c.teams.Get(ctx, assignment.TeamName, c.namespace)
	if err != nil {
		return "", "", err
	}
	agent, err = team.Spec.AgentForRole(assignment.RoleName)
	if err != nil {
		return "", "", err
	}

	agentResource, ok := c.agentInformer.Get(agent)
	if !ok {
		return "", "", fmt.Errorf("%w: agent %s", resource.ErrNotFound, agent)
	}
	if agentResource.Status.Status != resource.StatusRunning || agentResource.Status.HostIP == "" {
		return "", "", fmt.Errorf("%w: agent %s is not running", resource.ErrNotReady, agent)
	}
	return agentResource.Status.HostIP, agent, nil
}
