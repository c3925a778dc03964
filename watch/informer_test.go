package watch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterlabs/roster/registry"
	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/store"
)

func newAgentInformer(svc *registry.AgentService) *Informer[resource.AgentResource] {
	return NewInformer(
		resource.TypeAgent,
		func(ctx context.Context) ([]resource.AgentResource, error) { return svc.List(ctx, "") },
		func(r resource.AgentResource) string { return r.Spec.Name },
		nil,
	)
}

func TestInformerSeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mem := store.NewMemoryStore()
	svc := registry.NewAgentService(mem, nil)

	for _, name := range []string{"a1", "a2"} {
		_, err := svc.Create(ctx, resource.AgentSpec{Name: name, Image: "img"}, "")
		require.NoError(t, err)
	}

	w := NewWatcher(mem, nil)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	inf := newAgentInformer(svc)
	require.NoError(t, inf.Setup(ctx, w))
	defer inf.Teardown()

	assert.Len(t, inf.ListResources(), 2)
	got, ok := inf.Get("a1")
	require.True(t, ok)
	assert.Equal(t, "img", got.Spec.Image)
}

func TestInformerConvergence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mem := store.NewMemoryStore()
	svc := registry.NewAgentService(mem, nil)

	w := NewWatcher(mem, nil)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	inf := newAgentInformer(svc)
	require.NoError(t, inf.Setup(ctx, w))
	defer inf.Teardown()

	type transition struct {
		eventType resource.EventType
		name      string
	}
	events := make(chan transition, 16)
	inf.AddEventListener(func(ev resource.ResourceEvent) error {
		events <- transition{ev.EventType, ev.Name}
		return nil
	})

	// Create, update, delete through direct store writes, as an
	// external writer would.
	a1 := resource.NewAgentResource(resource.AgentSpec{Name: "a1", Image: "v1"})
	a2 := resource.NewAgentResource(resource.AgentSpec{Name: "a2", Image: "v1"})
	a3 := resource.NewAgentResource(resource.AgentSpec{Name: "a3", Image: "v1"})
	put := func(r resource.AgentResource) {
		data, err := resource.Encode(r)
		require.NoError(t, err)
		require.NoError(t, mem.Put(ctx, resource.Key(resource.TypeAgent, "default", r.Spec.Name), data))
	}
	put(a1)
	put(a2)
	put(a3)
	a2.Spec.Image = "v2"
	put(a2)
	_, err := mem.Delete(ctx, resource.Key(resource.TypeAgent, "default", "a3"))
	require.NoError(t, err)

	want := []transition{
		{resource.EventPut, "a1"},
		{resource.EventPut, "a2"},
		{resource.EventPut, "a3"},
		{resource.EventPut, "a2"},
		{resource.EventDelete, "a3"},
	}
	for i, expect := range want {
		select {
		case got := <-events:
			assert.Equal(t, expect, got, "event %d", i)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	// After quiescence the cache equals a fresh List.
	listed, err := svc.List(ctx, "")
	require.NoError(t, err)
	cached := inf.ListResources()
	require.Len(t, cached, len(listed))

	byName := make(map[string]resource.AgentResource, len(cached))
	for _, r := range cached {
		byName[r.Spec.Name] = r
	}
	for _, r := range listed {
		assert.Equal(t, r.Spec, byName[r.Spec.Name].Spec)
	}
	assert.Equal(t, "v2", byName["a2"].Spec.Image)
	_, gone := inf.Get("a3")
	assert.False(t, gone)
}

func TestInformerIgnoresOtherKinds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mem := store.NewMemoryStore()
	svc := registry.NewAgentService(mem, nil)

	w := NewWatcher(mem, nil)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	inf := newAgentInformer(svc)
	require.NoError(t, inf.Setup(ctx, w))
	defer inf.Teardown()

	called := make(chan struct{}, 4)
	inf.AddEventListener(func(ev resource.ResourceEvent) error {
		called <- struct{}{}
		return nil
	})

	team := resource.NewTeamResource(resource.TeamSpec{Name: "core", Layout: resource.TeamLayout{Name: "solo", Roles: map[string]resource.Role{"driver": {Name: "driver"}}}})
	data, err := resource.Encode(team)
	require.NoError(t, err)
	require.NoError(t, mem.Put(ctx, resource.Key(resource.TypeTeam, "default", "core"), data))

	select {
	case <-called:
		t.Fatal("agent informer must not see team events")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Empty(t, inf.ListResources())
}
