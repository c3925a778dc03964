package runtime

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rosterlabs/roster/resource"
)

// clientFor points a Client at a test server, splitting its address
// into the host/port shape the real runtime uses.
func clientFor(t *testing.T, srv *httptest.Server) (*Client, string) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return NewClient(port, time.Second, nil), u.Hostname()
}

func TestChat(t *testing.T) {
	var gotPath, gotExecID, gotExecType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotExecID = r.Header.Get(HeaderExecutionID)
		gotExecType = r.Header.Get(HeaderExecutionType)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var args resource.ChatPromptAgentArgs
		require.NoError(t, resource.Decode(body, &args))
		w.Write([]byte(`{"message":"hello back"}`))
	}))
	defer srv.Close()

	c, host := clientFor(t, srv)
	reply, err := c.Chat(context.Background(), host, "coder", resource.ChatPromptAgentArgs{
		Message: "hello",
		Team:    "core",
	}, "exec-1", "chat")
	require.NoError(t, err)
	assert.Equal(t, "hello back", reply)
	assert.Equal(t, "/v0.1/agents/coder/chat", gotPath)
	assert.Equal(t, "exec-1", gotExecID)
	assert.Equal(t, "chat", gotExecType)
}

func TestTaskLifecycle(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, host := clientFor(t, srv)
	ctx := context.Background()
	require.NoError(t, c.AssignTask(ctx, host, "coder", resource.TaskSpec{Name: "t1", Description: "do it"}))
	require.NoError(t, c.CancelTask(ctx, host, "coder", "t1"))

	assert.Equal(t, []string{
		"POST /v0.1/agents/coder/tasks",
		"DELETE /v0.1/agents/coder/tasks/t1",
	}, paths)
}

func TestErrorMapping(t *testing.T) {
	t.Run("404 is not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		c, host := clientFor(t, srv)
		err := c.CancelTask(context.Background(), host, "coder", "gone")
		assert.True(t, errors.Is(err, resource.ErrNotFound), "got %v", err)
	})

	t.Run("unreachable runtime is not ready", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		c, host := clientFor(t, srv)
		srv.Close()

		_, err := c.Chat(context.Background(), host, "coder", resource.ChatPromptAgentArgs{Message: "hi"}, "", "")
		assert.True(t, errors.Is(err, resource.ErrNotReady), "got %v", err)
	})

	t.Run("server error surfaces status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		c, host := clientFor(t, srv)
		err := c.AssignTask(context.Background(), host, "coder", resource.TaskSpec{Name: "t1"})
		require.Error(t, err)
		assert.False(t, errors.Is(err, resource.ErrNotFound))
	})
}
