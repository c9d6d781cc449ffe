// ABOUTME: HTTP handlers for spawn queue admission: enqueue, lookup, cancel.
// ABOUTME: 500s with an internal error when no queue is wired (e.g. a minimal test server).
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/model"
	"github.com/fleetforge/fleetd/internal/spawnqueue"
)

type enqueueRequest struct {
	RequesterHandle string   `json:"requesterHandle"`
	RequesterDepth  int      `json:"requesterDepth"`
	RequesterRole   string   `json:"requesterRole"`
	TargetAgentType string   `json:"targetAgentType"`
	Priority        string   `json:"priority"`
	DependsOn       []string `json:"dependsOn"`
	Task            string   `json:"task"`
	Context         string   `json:"context"`
	Checkpoint      string   `json:"checkpoint"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeErr(w, errs.Internal("spawn queue is not wired"))
		return
	}
	var req enqueueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{OK: false, Kind: "bad_request", Message: err.Error()})
		return
	}
	item, err := s.queue.Enqueue(spawnqueue.EnqueueRequest{
		RequesterHandle: req.RequesterHandle,
		RequesterDepth:  req.RequesterDepth,
		RequesterRole:   model.Role(req.RequesterRole),
		TargetAgentType: model.Role(req.TargetAgentType),
		Priority:        model.Priority(req.Priority),
		DependsOn:       req.DependsOn,
		Payload: model.SpawnPayload{
			Task:       req.Task,
			Context:    req.Context,
			Checkpoint: req.Checkpoint,
		},
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeCreated(w, item)
}

func (s *Server) handleGetSpawnItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	item, err := s.store.GetSpawnItem(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, item)
}

func (s *Server) handleCancelSpawnItem(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeErr(w, errs.Internal("spawn queue is not wired"))
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.queue.Cancel(id); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"cancelled": true})
}
