package checkin_api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// StreamCheckins streams an event's check-ins as server-sent events.
func (h *Handler) StreamCheckins(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.scanner(w, r); !ok {
		return
	}
	eventID := chi.URLParam(r, "eventId")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	setupSSEHeaders(w)
	ctx := r.Context()
	events := h.Emitter.SubscribeToEvent(ctx, eventID)

	connected, _ := json.Marshal(map[string]string{"status": "connected", "eventId": eventID})
	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", connected)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("client connected to check-in stream for event %s", eventID))

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("failed to serialize check-in event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: checkin\ndata: %s\n\n", data)
			flusher.Flush()
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("client left check-in stream for event %s", eventID))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}
