package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI emulates the roster REST surface closely enough for the
// client: in-memory agents keyed by name, plus the initiate command.
func fakeAPI(t *testing.T) (*httptest.Server, map[string]map[string]any) {
	t.Helper()
	agents := map[string]map[string]any{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v0.1/agents", func(w http.ResponseWriter, r *http.Request) {
		var spec map[string]any
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &spec))
		name := spec["name"].(string)
		if _, exists := agents[name]; exists {
			w.WriteHeader(http.StatusConflict)
			return
		}
		agents[name] = spec
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(spec)
	})
	mux.HandleFunc("PATCH /v0.1/agents/{name}", func(w http.ResponseWriter, r *http.Request) {
		var spec map[string]any
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &spec))
		agents[r.PathValue("name")] = spec
		_ = json.NewEncoder(w).Encode(spec)
	})
	mux.HandleFunc("GET /v0.1/agents/{name}", func(w http.ResponseWriter, r *http.Request) {
		spec, ok := agents[r.PathValue("name")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(spec)
	})
	mux.HandleFunc("DELETE /v0.1/agents/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if _, ok := agents[name]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(agents, name)
		_ = json.NewEncoder(w).Encode(map[string]bool{"deleted": true})
	})
	mux.HandleFunc("POST /v0.1/commands/initiate-workflow", func(w http.ResponseWriter, r *http.Request) {
		var args struct {
			Workflow string            `json:"workflow"`
			Inputs   map[string]string `json:"inputs"`
		}
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &args))
		if args.Workflow != "echo" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "rec-1", "workflow": args.Workflow})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, agents
}

func TestApplyStreamCreatesThenConfigures(t *testing.T) {
	srv, agents := fakeAPI(t)
	client := NewClient(srv.URL, "")

	docs := `
kind: agent
spec:
  name: coder
  image: agent:1
---
kind: agent
spec:
  name: reviewer
  image: agent:1
`
	var out strings.Builder
	applied, err := client.ApplyStream(context.Background(), strings.NewReader(docs), &out)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.Contains(t, out.String(), "agent/coder created")
	assert.Len(t, agents, 2)

	// Re-applying updates in place.
	docs = `
kind: agent
spec:
  name: coder
  image: agent:2
`
	out.Reset()
	applied, err = client.ApplyStream(context.Background(), strings.NewReader(docs), &out)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Contains(t, out.String(), "agent/coder configured")
	assert.Equal(t, "agent:2", agents["coder"]["image"])
}

func TestApplyRejectsBadDocuments(t *testing.T) {
	srv, _ := fakeAPI(t)
	client := NewClient(srv.URL, "")

	_, _, err := client.Apply(context.Background(), document{Kind: "widget", Spec: map[string]any{"name": "x"}})
	assert.ErrorContains(t, err, "unknown kind")

	_, _, err = client.Apply(context.Background(), document{Kind: "agent", Spec: map[string]any{"image": "a"}})
	assert.ErrorContains(t, err, "no name")
}

func TestGetAndDelete(t *testing.T) {
	srv, agents := fakeAPI(t)
	agents["coder"] = map[string]any{"name": "coder", "image": "agent:1"}
	client := NewClient(srv.URL, "")

	out, err := client.Get(context.Background(), "agent", "coder")
	require.NoError(t, err)
	assert.Contains(t, out, `"coder"`)

	require.NoError(t, client.Delete(context.Background(), "agent", "coder"))
	assert.Empty(t, agents)

	err = client.Delete(context.Background(), "agent", "coder")
	assert.ErrorContains(t, err, "not found")
}

func TestInitiate(t *testing.T) {
	srv, _ := fakeAPI(t)
	client := NewClient(srv.URL, "")

	id, err := client.Initiate(context.Background(), "echo", map[string]string{"message": "hi"}, "")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", id)

	_, err = client.Initiate(context.Background(), "missing", nil, "")
	assert.ErrorContains(t, err, "not found")
}
