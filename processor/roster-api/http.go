// Package rosterapi is the HTTP surface of the control plane: resource
// CRUD, command endpoints, agent status ingest, the SSE change feed,
// the activity log and the GitHub webhook entry point.
package rosterapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rosterlabs/roster/activity"
	"github.com/rosterlabs/roster/bus"
	"github.com/rosterlabs/roster/registry"
	"github.com/rosterlabs/roster/resource"
	"github.com/rosterlabs/roster/runtime"
	"github.com/rosterlabs/roster/watch"
)

// APIPrefix is the versioned path prefix for every endpoint except
// /metrics and /healthz.
const APIPrefix = "/v0.1"

// WebhookForwarder receives raw GitHub webhook deliveries. The
// integration adapter implements it.
type WebhookForwarder interface {
	HandleWebhook(ctx context.Context, signature, eventType string, body []byte) error
}

// Services bundles everything the HTTP surface reads and writes.
type Services struct {
	Agents     *registry.AgentService
	Identities *registry.IdentityService
	Teams      *registry.TeamService
	Workflows  *registry.WorkflowService
	Workspaces *registry.WorkspaceService
	Tasks      *registry.TaskService
	Records    *registry.WorkflowRecordService
}

// HTTPHandler handles HTTP requests for the control plane.
type HTTPHandler struct {
	services  Services
	bus       bus.Bus
	watcher   *watch.Watcher
	activity  activity.Store
	runtime   *runtime.Client
	github    WebhookForwarder
	namespace string
	logger    *slog.Logger
}

// NewHTTPHandler creates the control plane HTTP handler. watcher,
// activity, runtime and github may be nil; the matching endpoints then
// answer 503.
func NewHTTPHandler(services Services, b bus.Bus, watcher *watch.Watcher, activityStore activity.Store, runtimeClient *runtime.Client, github WebhookForwarder, namespace string, logger *slog.Logger) *HTTPHandler {
	if namespace == "" {
		namespace = resource.DefaultNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{
		services:  services,
		bus:       b,
		watcher:   watcher,
		activity:  activityStore,
		runtime:   runtimeClient,
		github:    github,
		namespace: namespace,
		logger:    logger,
	}
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// DeleteResponse reports whether a delete removed anything.
type DeleteResponse struct {
	Name    string `json:"name"`
	Deleted bool   `json:"deleted"`
}

// InitiateResponse carries the id of the published initiate message,
// which is also the id of the record the router will create.
type InitiateResponse struct {
	ID       string `json:"id"`
	Workflow string `json:"workflow"`
}

// ChatResponse is the agent's conversational reply.
type ChatResponse struct {
	Message string `json:"message"`
}

// RegisterHTTPHandlers registers every endpoint on the mux. Resource
// routes live under prefix; /metrics and /healthz sit at the root.
func (h *HTTPHandler) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	registerCRUD(h, mux, prefix, "/agents", crud[resource.AgentSpec, resource.AgentResource]{
		name:   func(s resource.AgentSpec) string { return s.Name },
		create: h.services.Agents.Create,
		get:    h.services.Agents.Get,
		list:   h.services.Agents.List,
		update: h.services.Agents.Update,
		remove: h.services.Agents.Delete,
	})
	registerCRUD(h, mux, prefix, "/identities", crud[resource.IdentitySpec, resource.IdentityResource]{
		name:   func(s resource.IdentitySpec) string { return s.Name },
		create: h.services.Identities.Create,
		get:    h.services.Identities.Get,
		list:   h.services.Identities.List,
		update: h.services.Identities.Update,
		remove: h.services.Identities.Delete,
	})
	registerCRUD(h, mux, prefix, "/teams", crud[resource.TeamSpec, resource.TeamResource]{
		name:   func(s resource.TeamSpec) string { return s.Name },
		create: h.services.Teams.Create,
		get:    h.services.Teams.Get,
		list:   h.services.Teams.List,
		update: h.services.Teams.Update,
		remove: h.services.Teams.Delete,
	})
	registerCRUD(h, mux, prefix, "/workflows", crud[resource.WorkflowSpec, resource.WorkflowResource]{
		name:   func(s resource.WorkflowSpec) string { return s.Name },
		create: h.services.Workflows.Create,
		get:    h.services.Workflows.Get,
		list:   h.services.Workflows.List,
		update: h.services.Workflows.Update,
		remove: h.services.Workflows.Delete,
	})
	registerCRUD(h, mux, prefix, "/workspaces", crud[resource.WorkspaceSpec, resource.WorkspaceResource]{
		name:   func(s resource.WorkspaceSpec) string { return s.Name },
		create: h.services.Workspaces.Create,
		get:    h.services.Workspaces.Get,
		list:   h.services.Workspaces.List,
		update: h.services.Workspaces.Update,
		remove: h.services.Workspaces.Delete,
	})
	registerCRUD(h, mux, prefix, "/tasks", crud[resource.TaskSpec, resource.TaskResource]{
		name:   func(s resource.TaskSpec) string { return s.Name },
		create: h.services.Tasks.Create,
		get:    h.services.Tasks.Get,
		list:   h.services.Tasks.List,
		update: h.services.Tasks.Update,
		remove: h.services.Tasks.Delete,
	})

	mux.HandleFunc("GET "+prefix+"/workflow-records", h.handleListRecords)
	mux.HandleFunc("GET "+prefix+"/workflow-records/{workflow}/{id}", h.handleGetRecord)
	mux.HandleFunc("POST "+prefix+"/commands/initiate-workflow", h.handleInitiateWorkflow)
	mux.HandleFunc("POST "+prefix+"/commands/agent-chat", h.handleAgentChat)
	mux.HandleFunc("POST "+prefix+"/status-update", h.handleStatusUpdate)
	mux.HandleFunc("GET "+prefix+"/resource-events", h.handleResourceEvents)
	mux.HandleFunc("GET "+prefix+"/activity-events", h.handleActivityEvents)
	mux.HandleFunc("POST "+prefix+"/github", h.handleGithubWebhook)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// crud adapts one registry service to the uniform REST shape.
type crud[S, R any] struct {
	name   func(S) string
	create func(context.Context, S, string) (R, error)
	get    func(context.Context, string, string) (R, error)
	list   func(context.Context, string) ([]R, error)
	update func(context.Context, S, string) (R, error)
	remove func(context.Context, string, string) (bool, error)
}

func registerCRUD[S, R any](h *HTTPHandler, mux *http.ServeMux, prefix, path string, c crud[S, R]) {
	mux.HandleFunc("POST "+prefix+path, func(w http.ResponseWriter, r *http.Request) {
		var spec S
		if !h.readBody(w, r, &spec) {
			return
		}
		created, err := c.create(r.Context(), spec, h.reqNamespace(r))
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	})

	mux.HandleFunc("GET "+prefix+path, func(w http.ResponseWriter, r *http.Request) {
		listed, err := c.list(r.Context(), h.reqNamespace(r))
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, listed)
	})

	mux.HandleFunc("GET "+prefix+path+"/{name}", func(w http.ResponseWriter, r *http.Request) {
		got, err := c.get(r.Context(), r.PathValue("name"), h.reqNamespace(r))
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, got)
	})

	mux.HandleFunc("PATCH "+prefix+path+"/{name}", func(w http.ResponseWriter, r *http.Request) {
		var spec S
		if !h.readBody(w, r, &spec) {
			return
		}
		if c.name(spec) != r.PathValue("name") {
			writeJSONError(w, http.StatusBadRequest, "name_mismatch", "spec name does not match URL")
			return
		}
		updated, err := c.update(r.Context(), spec, h.reqNamespace(r))
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	})

	mux.HandleFunc("DELETE "+prefix+path+"/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		existed, err := c.remove(r.Context(), name, h.reqNamespace(r))
		if err != nil {
			h.writeError(w, err)
			return
		}
		if !existed {
			writeJSONError(w, http.StatusNotFound, "not_found", fmt.Sprintf("%s not found", name))
			return
		}
		writeJSON(w, http.StatusOK, DeleteResponse{Name: name, Deleted: true})
	})
}

func (h *HTTPHandler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.services.Records.List(r.Context(), r.URL.Query().Get("workflow"), h.reqNamespace(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *HTTPHandler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.services.Records.Get(r.Context(), r.PathValue("workflow"), r.PathValue("id"), h.reqNamespace(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *HTTPHandler) handleInitiateWorkflow(w http.ResponseWriter, r *http.Request) {
	var args resource.InitiateWorkflowArgs
	if !h.readBody(w, r, &args) {
		return
	}
	if err := args.Validate(); err != nil {
		h.writeError(w, err)
		return
	}
	// Fail fast on unknown workflows instead of enqueueing a message
	// the router would drop.
	if _, err := h.services.Workflows.Get(r.Context(), args.Workflow, h.reqNamespace(r)); err != nil {
		h.writeError(w, err)
		return
	}

	msg, err := resource.NewInitiateWorkflowMessage(args.Workflow, resource.InitiateWorkflowPayload{
		Inputs:    args.Inputs,
		Workspace: args.Workspace,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	data, err := resource.Encode(msg)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.bus.Publish(r.Context(), bus.WorkflowRouterQueue, data); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, InitiateResponse{ID: msg.ID, Workflow: args.Workflow})
}

func (h *HTTPHandler) handleAgentChat(w http.ResponseWriter, r *http.Request) {
	if h.runtime == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "agent runtime not configured")
		return
	}
	var args struct {
		Agent string `json:"agent"`
		resource.ChatPromptAgentArgs
	}
	if !h.readBody(w, r, &args) {
		return
	}
	if args.Agent == "" {
		writeJSONError(w, http.StatusBadRequest, "agent_required", "agent is required")
		return
	}
	if err := args.ChatPromptAgentArgs.Validate(); err != nil {
		h.writeError(w, err)
		return
	}

	agent, err := h.services.Agents.Get(r.Context(), args.Agent, h.reqNamespace(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if agent.Status.Status != resource.StatusRunning || agent.Status.HostIP == "" {
		h.writeError(w, fmt.Errorf("%w: agent %s is not running", resource.ErrNotReady, args.Agent))
		return
	}

	// Callers correlate chats with activity events through these
	// headers; only absent values fall back to generated ones.
	executionID := r.Header.Get("X-Roster-Execution-ID")
	if executionID == "" {
		executionID = uuid.NewString()
	}
	executionType := r.Header.Get("X-Roster-Execution-Type")
	if executionType == "" {
		executionType = activity.ExecutionChat
	}

	reply, err := h.runtime.Chat(r.Context(), agent.Status.HostIP, args.Agent, args.ChatPromptAgentArgs, executionID, executionType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Message: reply})
}

func (h *HTTPHandler) handleActivityEvents(w http.ResponseWriter, r *http.Request) {
	if h.activity == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "activity log not configured")
		return
	}
	executionID := r.URL.Query().Get("execution_id")
	executionType := r.URL.Query().Get("execution_type")
	if executionID == "" || executionType == "" {
		writeJSONError(w, http.StatusBadRequest, "query_required", "execution_id and execution_type are required")
		return
	}
	events, err := h.activity.ListByExecution(r.Context(), executionID, executionType)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *HTTPHandler) handleGithubWebhook(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "github integration not configured")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "read_error", "failed to read body")
		return
	}
	err = h.github.HandleWebhook(r.Context(), r.Header.Get("X-Hub-Signature-256"), r.Header.Get("X-GitHub-Event"), body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *HTTPHandler) reqNamespace(r *http.Request) string {
	if ns := r.URL.Query().Get("namespace"); ns != "" {
		return ns
	}
	return h.namespace
}

// readBody decodes the JSON request body, answering 400 on failure.
func (h *HTTPHandler) readBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "read_error", "failed to read body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "parse_error", "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// writeError maps domain errors onto HTTP statuses.
func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, resource.ErrAlreadyExists):
		writeJSONError(w, http.StatusConflict, "already_exists", err.Error())
	case errors.Is(err, resource.ErrNotFound), errors.Is(err, resource.ErrNotReady):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, resource.ErrInvalidResource),
		errors.Is(err, resource.ErrInvalidEvent),
		errors.Is(err, resource.ErrDeserialization),
		errors.Is(err, resource.ErrWebhookMalformed):
		writeJSONError(w, http.StatusBadRequest, "invalid", err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Debug("writing response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// peerHost extracts the caller's address for status ingest.
func peerHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
