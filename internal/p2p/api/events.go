package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/chanhub/chansync/internal/infrastructure/events"
)

// streamEvents serves channel events as server-sent events. The optional
// identifier query parameter narrows the stream to one hosted identity and
// types to a comma separated list of event types.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	var identifier *string
	if raw := strings.TrimSpace(r.URL.Query().Get("identifier")); raw != "" {
		if _, err := s.registry.Get(raw); err != nil {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "identity not hosted here", nil)
			return
		}
		identifier = &raw
	}
	var types []events.Type
	for _, t := range strings.Split(r.URL.Query().Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, events.Type(strings.ToUpper(t)))
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported", nil)
		return
	}

	client := events.NewClient(identifier, types...)
	s.hub.Register(client)
	defer s.hub.Unregister(client.ClientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case evt, ok := <-client.MessageChan:
			if !ok || evt == nil {
				return
			}
			payload, _ := json.Marshal(evt)
			_, _ = w.Write([]byte("event: " + string(evt.Type) + "\n"))
			_, _ = w.Write([]byte("id: " + evt.ID + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
