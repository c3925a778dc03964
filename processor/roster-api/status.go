package rosterapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rosterlabs/roster/resource"
)

// handleStatusUpdate ingests status events pushed by agent runtimes.
// Only agents report status; the host address comes from the connection
// peer, never from the payload.
func (h *HTTPHandler) handleStatusUpdate(w http.ResponseWriter, r *http.Request) {
	var event resource.StatusEvent
	if !h.readBody(w, r, &event) {
		return
	}
	if err := event.Validate(); err != nil {
		h.writeError(w, err)
		return
	}
	if event.ResourceType != resource.TypeAgent {
		writeJSONError(w, http.StatusBadRequest, "unsupported_type", fmt.Sprintf("status updates for %q are not accepted", event.ResourceType))
		return
	}

	namespace := event.Namespace
	if namespace == "" {
		namespace = h.namespace
	}

	switch event.EventType {
	case resource.EventPut:
		if _, err := h.services.Agents.Get(r.Context(), event.Name, namespace); err != nil {
			h.writeError(w, err)
			return
		}
		status, err := agentStatusFrom(event, peerHost(r))
		if err != nil {
			h.writeError(w, err)
			return
		}
		updated, err := h.services.Agents.PutStatus(r.Context(), event.Name, namespace, status)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated.Status)

	case resource.EventDelete:
		status := resource.AgentStatus{Name: event.Name, Status: resource.StatusDeleted}
		if _, err := h.services.Agents.PutStatus(r.Context(), event.Name, namespace, status); err != nil {
			// A delete for an agent that is already gone succeeds.
			if errors.Is(err, resource.ErrNotFound) {
				writeJSON(w, http.StatusOK, status)
				return
			}
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, status)

	default:
		writeJSONError(w, http.StatusBadRequest, "invalid_event", "unsupported event type")
	}
}

// agentStatusFrom rebuilds a typed AgentStatus from the free-form status
// map of the event, stamping name and observed host.
func agentStatusFrom(event resource.StatusEvent, host string) (resource.AgentStatus, error) {
	raw, err := json.Marshal(event.Status)
	if err != nil {
		return resource.AgentStatus{}, fmt.Errorf("%w: %v", resource.ErrInvalidEvent, err)
	}
	var status resource.AgentStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return resource.AgentStatus{}, fmt.Errorf("%w: %v", resource.ErrInvalidEvent, err)
	}
	status.Name = event.Name
	status.HostIP = host
	if err := status.Validate(); err != nil {
		return resource.AgentStatus{}, err
	}
	return status, nil
}
