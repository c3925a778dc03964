package taskcontroller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterlabs/roster/registry"
	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/store"
	"github.com/rosterlabs/roster/watch"
)

type runtimeCall struct {
	op    string
	host  string
	agent string
	task  string
}

type fakeRuntime struct {
	mu    sync.Mutex
	calls []runtimeCall
	fail  error
}

func (f *fakeRuntime) AssignTask(_ context.Context, host, agent string, task resource.TaskSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.calls = append(f.calls, runtimeCall{op: "assign", host: host, agent: agent, task: task.Name})
	return nil
}

func (f *fakeRuntime) CancelTask(_ context.Context, host, agent, task string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, runtimeCall{op: "cancel", host: host, agent: agent, task: task})
	return nil
}

func (f *fakeRuntime) snapshot() []runtimeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]runtimeCall, len(f.calls))
	copy(out, f.calls)
	return out
}

type env struct {
	store      *store.MemoryStore
	tasks      *registry.TaskService
	teams      *registry.TeamService
	agents     *registry.AgentService
	runtime    *fakeRuntime
	watcher    *watch.Watcher
	controller *Controller
}

func newEnv(t *testing.T, ctx context.Context) *env {
	t.Helper()
	mem := store.NewMemoryStore()
	e := &env{
		store:   mem,
		tasks:   registry.NewTaskService(mem, nil),
		teams:   registry.NewTeamService(mem, nil),
		agents:  registry.NewAgentService(mem, nil),
		runtime: &fakeRuntime{},
	}

	_, err := e.teams.Create(ctx, resource.TeamSpec{
		Name: "core",
		Layout: resource.TeamLayout{
			Name:  "solo",
			Roles: map[string]resource.Role{"dev": {Name: "dev"}},
		},
		Members: map[string]resource.Member{
			"dev": {Identity: "alice", Agent: "coder"},
		},
	}, "")
	require.NoError(t, err)

	_, err = e.agents.Create(ctx, resource.AgentSpec{Name: "coder", Image: "agent:1"}, "")
	require.NoError(t, err)
	_, err = e.agents.PutStatus(ctx, "coder", "", resource.AgentStatus{
		Name: "coder", Status: resource.StatusRunning, HostIP: "10.0.0.5",
	})
	require.NoError(t, err)

	e.watcher = watch.NewWatcher(mem, nil)
	require.NoError(t, e.watcher.Start(ctx))
	e.controller = NewController(e.tasks, e.teams, e.agents, e.runtime, "", nil)
	return e
}

func assignment() *resource.TaskAssignment {
	return &resource.TaskAssignment{IdentityName: "alice", TeamName: "core", RoleName: "dev"}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestInitialReconcile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := newEnv(t, ctx)
	defer e.watcher.Stop()

	// Tasks created before the controller starts get assigned on boot.
	_, err := e.tasks.Create(ctx, resource.TaskSpec{Name: "t1", Description: "review", Assignment: assignment()}, "")
	require.NoError(t, err)
	_, err = e.tasks.Create(ctx, resource.TaskSpec{Name: "t2", Description: "no assignment"}, "")
	require.NoError(t, err)

	require.NoError(t, e.controller.Setup(ctx, e.watcher))
	defer e.controller.Teardown()

	calls := e.runtime.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, runtimeCall{op: "assign", host: "10.0.0.5", agent: "coder", task: "t1"}, calls[0])

	task, err := e.tasks.Get(ctx, "t1", "")
	require.NoError(t, err)
	assert.Equal(t, AssignmentAssigned, task.Status.AssignmentStatus)
	assert.Equal(t, resource.StatusRunning, task.Status.Status)

	unassigned, err := e.tasks.Get(ctx, "t2", "")
	require.NoError(t, err)
	assert.Empty(t, unassigned.Status.AssignmentStatus)
}

func TestEventDrivenAssignAndCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := newEnv(t, ctx)
	defer e.watcher.Stop()
	require.NoError(t, e.controller.Setup(ctx, e.watcher))
	defer e.controller.Teardown()

	_, err := e.tasks.Create(ctx, resource.TaskSpec{Name: "t1", Description: "review", Assignment: assignment()}, "")
	require.NoError(t, err)

	waitFor(t, func() bool {
		for _, c := range e.runtime.snapshot() {
			if c.op == "assign" && c.task == "t1" {
				return true
			}
		}
		return false
	}, "task never assigned")

	// Re-delivered put for an assigned task must not assign twice.
	task, err := e.tasks.Get(ctx, "t1", "")
	require.NoError(t, err)
	task.Spec.Description = "review again"
	_, err = e.tasks.Update(ctx, task.Spec, "")
	require.NoError(t, err)

	_, err = e.tasks.Delete(ctx, "t1", "")
	require.NoError(t, err)

	waitFor(t, func() bool {
		for _, c := range e.runtime.snapshot() {
			if c.op == "cancel" && c.task == "t1" {
				return true
			}
		}
		return false
	}, "task never cancelled")

	var assigns int
	for _, c := range e.runtime.snapshot() {
		if c.op == "assign" {
			assigns++
		}
	}
	assert.Equal(t, 1, assigns, "assigned task must not be re-assigned")
}

func TestAgentDeleteCancelsTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := newEnv(t, ctx)
	defer e.watcher.Stop()
	require.NoError(t, e.controller.Setup(ctx, e.watcher))
	defer e.controller.Teardown()

	_, err := e.tasks.Create(ctx, resource.TaskSpec{Name: "t1", Description: "review", Assignment: assignment()}, "")
	require.NoError(t, err)
	waitFor(t, func() bool { return len(e.runtime.snapshot()) == 1 }, "task never assigned")

	_, err = e.agents.Delete(ctx, "coder", "")
	require.NoError(t, err)

	waitFor(t, func() bool {
		for _, c := range e.runtime.snapshot() {
			if c.op == "cancel" && c.task == "t1" && c.agent == "coder" {
				return true
			}
		}
		return false
	}, "agent delete did not cancel its task")
}

func TestAssignmentBlockedWhenAgentNotReady(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := newEnv(t, ctx)
	defer e.watcher.Stop()

	_, err := e.agents.PutStatus(ctx, "coder", "", resource.AgentStatus{
		Name: "coder", Status: resource.StatusPending,
	})
	require.NoError(t, err)

	_, err = e.tasks.Create(ctx, resource.TaskSpec{Name: "t1", Description: "review", Assignment: assignment()}, "")
	require.NoError(t, err)

	require.NoError(t, e.controller.Setup(ctx, e.watcher))
	defer e.controller.Teardown()

	assert.Empty(t, e.runtime.snapshot(), "pending agent must not receive tasks")
	task, err := e.tasks.Get(ctx, "t1", "")
	require.NoError(t, err)
	assert.Empty(t, task.Status.AssignmentStatus)
}
