// Package runtime reaches the external agent runtime over HTTP. The
// control plane never executes agent code itself; chat prompts and task
// assignment are delegated to the runtime process on the agent's host.
package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rosterlabs/roster/resource"
)

const (
	// DefaultPort is where the agent runtime listens on each host.
	DefaultPort = 7889

	defaultTimeout = 120 * time.Second

	// HeaderExecutionID and HeaderExecutionType attribute runtime work
	// to a workflow record or chat session for the activity log.
	HeaderExecutionID   = "X-Roster-Execution-ID"
	HeaderExecutionType = "X-Roster-Execution-Type"
)

// Client calls agent runtimes by host. One client serves every agent;
// the host comes from the agent's reported status.
type Client struct {
	httpClient *http.Client
	port       int
	logger     *slog.Logger
}

func NewClient(port int, timeout time.Duration, logger *slog.Logger) *Client {
	if port == 0 {
		port = DefaultPort
	}
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		port:       port,
		logger:     logger,
	}
}

// ChatResponse is the runtime's reply to a chat prompt.
type ChatResponse struct {
	Message string `json:"message"`
}

// Chat sends a conversational prompt to an agent and waits for the
// reply. Execution headers attribute the resulting activity events.
func (c *Client) Chat(ctx context.Context, host, agent string, args resource.ChatPromptAgentArgs, executionID, executionType string) (string, error) {
	body, err := resource.Encode(args)
	if err != nil {
		return "", err
	}
	data, err := c.do(ctx, http.MethodPost, c.url(host, "/agents/"+agent+"/chat"), body, executionID, executionType)
	if err != nil {
		return "", fmt.Errorf("chat with %s: %w", agent, err)
	}
	var reply ChatResponse
	if err := resource.Decode(data, &reply); err != nil {
		return "", err
	}
	return reply.Message, nil
}

// AssignTask hands a task to an agent's runtime.
func (c *Client) AssignTask(ctx context.Context, host, agent string, task resource.TaskSpec) error {
	body, err := resource.Encode(task)
	if err != nil {
		return err
	}
	if _, err := c.do(ctx, http.MethodPost, c.url(host, "/agents/"+agent+"/tasks"), body, task.Name, "task"); err != nil {
		return fmt.Errorf("assign task %s to %s: %w", task.Name, agent, err)
	}
	return nil
}

// CancelTask withdraws a previously assigned task.
func (c *Client) CancelTask(ctx context.Context, host, agent, task string) error {
	if _, err := c.do(ctx, http.MethodDelete, c.url(host, "/agents/"+agent+"/tasks/"+task), nil, task, "task"); err != nil {
		return fmt.Errorf("cancel task %s on %s: %w", task, agent, err)
	}
	return nil
}

func (c *Client) url(host, path string) string {
	return fmt.Sprintf("http://%s:%d/v0.1%s", host, c.port, path)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, executionID, executionType string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if executionID != "" {
		req.Header.Set(HeaderExecutionID, executionID)
	}
	if executionType != "" {
		req.Header.Set(HeaderExecutionType, executionType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The runtime is unreachable, not absent: the agent may still
		// be starting up on its host.
		return nil, fmt.Errorf("%w: %v", resource.ErrNotReady, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", resource.ErrNotFound, url)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("runtime returned %d: %s", resp.StatusCode, data)
	}
	return data, nil
}
