package rosterapi

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/watch"
)

func TestPassesChangeFilter(t *testing.T) {
	cases := []struct {
		name          string
		event         resource.ResourceEvent
		specChanges   bool
		statusChanges bool
		want          bool
	}{
		{"delete always passes", resource.ResourceEvent{EventType: resource.EventDelete}, true, false, true},
		{"spec change wanted and present", resource.ResourceEvent{EventType: resource.EventPut, SpecChanged: true}, true, false, true},
		{"spec change wanted but absent", resource.ResourceEvent{EventType: resource.EventPut, StatusChanged: true}, true, false, false},
		{"status change wanted and present", resource.ResourceEvent{EventType: resource.EventPut, StatusChanged: true}, false, true, true},
		{"both wanted, either passes", resource.ResourceEvent{EventType: resource.EventPut, SpecChanged: true}, true, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, passesChangeFilter(tc.event, tc.specChanges, tc.statusChanges))
		})
	}
}

func TestResourceEventsStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, nil)
	watcher := watch.NewWatcher(f.store, nil)
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	// Rebuild the handler with the live watcher.
	handler := NewHTTPHandler(f.services, f.bus, watcher, f.activity, nil, nil, "", nil)
	mux := http.NewServeMux()
	handler.RegisterHTTPHandlers(APIPrefix, mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	t.Run("requires a change flag", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/v0.1/resource-events")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("streams filtered events", func(t *testing.T) {
		reqCtx, cancelReq := context.WithTimeout(ctx, 5*time.Second)
		defer cancelReq()
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet,
			srv.URL+"/v0.1/resource-events?spec_changes=true&resource_types=AGENT", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		// A team event must be filtered out, an agent event delivered.
		_, err = f.services.Teams.Create(ctx, resource.TeamSpec{
			Name:   "core",
			Layout: resource.TeamLayout{Name: "solo", Roles: map[string]resource.Role{"dev": {Name: "dev"}}},
		}, "")
		require.NoError(t, err)
		_, err = f.services.Agents.Create(ctx, resource.AgentSpec{Name: "coder", Image: "agent:1"}, "")
		require.NoError(t, err)

		scanner := bufio.NewScanner(resp.Body)
		var data string
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data: ") {
				data = strings.TrimPrefix(line, "data: ")
				break
			}
		}
		require.NotEmpty(t, data, "no event received: %v", scanner.Err())

		var event resource.ResourceEvent
		require.NoError(t, resource.Decode([]byte(data), &event))
		assert.Equal(t, resource.TypeAgent, event.ResourceType)
		assert.Equal(t, "coder", event.Name)
		assert.True(t, event.SpecChanged)
	})
}
