package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-registration/internal/utils"
)

// Live streams lifecycle events of one event to an organizer dashboard.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	if h.Feed == nil {
		h.respond(w, http.StatusNotImplemented, utils.ErrorResponse("Live feed is not enabled", "no feed configured"))
		return
	}
	if !h.requireOrganizer(w, r, eventID) {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respond(w, http.StatusInternalServerError, utils.ErrorResponse("Streaming unsupported", "response writer cannot flush"))
		return
	}

	// the stream outlives the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	setupSSEHeaders(w)

	ctx := r.Context()
	eventChan := h.Feed.Subscribe(ctx, eventID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"eventId\":%q}\n\n", eventID)
	flusher.Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to registration feed for event: %s", eventID))

	for {
		select {
		case evt, ok := <-eventChan:
			if !ok {
				return
			}

			jsonData, err := json.Marshal(evt)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize registration event: %v", err))
				continue
			}

			fmt.Fprintf(w, "event: registration\ndata: %s\n\n", jsonData)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from registration feed for: %s", eventID))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
