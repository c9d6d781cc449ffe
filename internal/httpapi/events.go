// ABOUTME: Server-Sent Events bridge from the push hub to HTTP clients.
// ABOUTME: ?swarmId= or ?worker= narrows the stream; with neither, subscribes to everything.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fleetforge/fleetd/internal/pushhub"
)

// handleEvents bridges a pushhub subscription to a Server-Sent Events
// stream, modeled on the reference repository's handleBuildEvents. A
// client narrows the stream with ?swarmId= or ?worker=; with neither it
// gets the SubjectAll firehose.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var subjects []pushhub.Subject
	q := r.URL.Query()
	if swarmID := q.Get("swarmId"); swarmID != "" {
		subjects = append(subjects, pushhub.Subject{Kind: pushhub.SubjectSwarm, ID: swarmID})
	}
	if worker := q.Get("worker"); worker != "" {
		subjects = append(subjects, pushhub.Subject{Kind: pushhub.SubjectWorker, ID: worker})
	}
	if len(subjects) == 0 {
		subjects = append(subjects, pushhub.Subject{Kind: pushhub.SubjectAll})
	}

	sub := s.hub.Subscribe(subjects...)
	defer s.hub.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}
