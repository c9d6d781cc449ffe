// ABOUTME: HTTP handlers for blackboard message posting, listing, and read-marking.
// ABOUTME: Calls storage directly; no dedicated blackboard service sits beneath this layer.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetforge/fleetd/internal/ids"
	"github.com/fleetforge/fleetd/internal/model"
)

type postMessageRequest struct {
	SwarmID      string  `json:"swarmId"`
	SenderHandle string  `json:"senderHandle"`
	MessageType  string  `json:"messageType"`
	TargetHandle *string `json:"targetHandle"`
	Priority     string  `json:"priority"`
	Payload      []byte  `json:"payload"`
	ExpiresAt    *int64  `json:"expiresAt"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{OK: false, Kind: "bad_request", Message: err.Error()})
		return
	}
	priority := model.Priority(req.Priority)
	if priority == "" {
		priority = model.PriorityNormal
	}
	msg := &model.BlackboardMessage{
		ID:           ids.New(),
		SwarmID:      req.SwarmID,
		SenderHandle: req.SenderHandle,
		MessageType:  model.MessageType(req.MessageType),
		TargetHandle: req.TargetHandle,
		Priority:     priority,
		Payload:      req.Payload,
		ReadBy:       map[string]bool{},
		CreatedAt:    s.clock.NowMillis(),
		ExpiresAt:    req.ExpiresAt,
	}
	if err := s.store.PostMessage(msg); err != nil {
		writeErr(w, err)
		return
	}
	writeCreated(w, msg)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	swarmID := q.Get("swarmId")
	handle := q.Get("handle")
	messages, err := s.store.ListMessages(swarmID, handle, s.clock.NowMillis())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, messages)
}

func (s *Server) handleMarkMessageRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	handle := r.URL.Query().Get("handle")
	if err := s.store.MarkMessageRead(id, handle); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"read": true})
}
