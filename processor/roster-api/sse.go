package rosterapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rosterlabs/roster/resource"
)

// sseBuffer bounds the per-client event queue. A client that cannot
// drain this many events is considered gone and its listener removed.
const sseBuffer = 64

// handleResourceEvents streams the filtered change feed as Server-Sent
// Events. Clients pick resource types and which halves of a resource
// they care about; deletes always pass the change filter.
func (h *HTTPHandler) handleResourceEvents(w http.ResponseWriter, r *http.Request) {
	if h.watcher == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "change feed not configured")
		return
	}

	query := r.URL.Query()
	specChanges, _ := strconv.ParseBool(query.Get("spec_changes"))
	statusChanges, _ := strconv.ParseBool(query.Get("status_changes"))
	if !specChanges && !statusChanges {
		writeJSONError(w, http.StatusBadRequest, "filter_required", "at least one of spec_changes or status_changes must be true")
		return
	}

	types := make(map[resource.ResourceType]bool)
	for _, t := range query["resource_types"] {
		types[resource.ResourceType(t)] = true
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "unsupported", "streaming unsupported")
		return
	}

	events := make(chan resource.ResourceEvent, sseBuffer)
	disconnected := make(chan struct{})
	reg := h.watcher.AddListener(func(event resource.ResourceEvent) error {
		if len(types) > 0 && !types[event.ResourceType] {
			return nil
		}
		if !passesChangeFilter(event, specChanges, statusChanges) {
			return nil
		}
		select {
		case events <- event:
			return nil
		default:
			// Client cannot keep up; cut it loose rather than block
			// the watcher goroutine.
			close(disconnected)
			return resource.ErrListenerDisconnected
		}
	})
	defer h.watcher.RemoveListener(reg)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-disconnected:
			return
		case event := <-events:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("marshal sse event", "event", event.String(), "error", err)
				continue
			}
			if _, err := w.Write([]byte("event: resource\ndata: " + string(data) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// passesChangeFilter applies the subscription flags. Deletes always
// pass; puts pass when a requested half actually changed.
func passesChangeFilter(event resource.ResourceEvent, specChanges, statusChanges bool) bool {
	if event.EventType == resource.EventDelete {
		return true
	}
	return (specChanges && event.SpecChanged) || (statusChanges && event.StatusChanged)
}
