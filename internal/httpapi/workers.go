// ABOUTME: HTTP handlers for worker lifecycle and swarm CRUD.
// ABOUTME: Thin bindings over the supervisor and storage; handleKillSwarm composes two calls.
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/ids"
	"github.com/fleetforge/fleetd/internal/model"
	"github.com/fleetforge/fleetd/internal/storage"
	"github.com/fleetforge/fleetd/internal/supervisor"
)

type spawnWorkerRequest struct {
	Handle        string  `json:"handle"`
	Role          string  `json:"role"`
	TeamName      string  `json:"teamName"`
	WorkingDir    string  `json:"workingDir"`
	InitialPrompt string  `json:"initialPrompt"`
	SessionID     *string `json:"sessionId"`
	SwarmID       *string `json:"swarmId"`
	SpawnMode     string  `json:"spawnMode"`
	DepthLevel    int     `json:"depthLevel"`
	Command       string  `json:"command"`
	Args          []string `json:"args"`
	CallerRole    string  `json:"callerRole"`
}

func (s *Server) handleSpawnWorker(w http.ResponseWriter, r *http.Request) {
	var req spawnWorkerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{OK: false, Kind: "bad_request", Message: err.Error()})
		return
	}

	var callerRole *model.Role
	if req.CallerRole != "" {
		cr := model.Role(req.CallerRole)
		callerRole = &cr
	}

	worker, err := s.sup.Spawn(supervisor.SpawnRequest{
		Handle:        req.Handle,
		Role:          model.Role(req.Role),
		TeamName:      req.TeamName,
		WorkingDir:    req.WorkingDir,
		InitialPrompt: req.InitialPrompt,
		SessionID:     req.SessionID,
		SwarmID:       req.SwarmID,
		SpawnMode:     model.SpawnMode(req.SpawnMode),
		DepthLevel:    req.DepthLevel,
		Command:       req.Command,
		Args:          req.Args,
		CallerRole:    callerRole,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeCreated(w, worker)
}

func (s *Server) handleDismissWorker(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	var callerRole *model.Role
	if cr := r.URL.Query().Get("callerRole"); cr != "" {
		role := model.Role(cr)
		callerRole = &role
	}
	dismissed, err := s.sup.Dismiss(handle, callerRole)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"dismissed": dismissed})
}

type broadcastRequest struct {
	Message    string  `json:"message"`
	FromHandle *string `json:"fromHandle"`
	CallerRole string  `json:"callerRole"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{OK: false, Kind: "bad_request", Message: err.Error()})
		return
	}
	var callerRole *model.Role
	if req.CallerRole != "" {
		cr := model.Role(req.CallerRole)
		callerRole = &cr
	}
	if err := s.sup.Broadcast(req.Message, req.FromHandle, callerRole); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"broadcast": true})
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter storage.WorkerFilter
	if v := q.Get("state"); v != "" {
		state := model.WorkerState(v)
		filter.State = &state
	}
	if v := q.Get("role"); v != "" {
		role := model.Role(v)
		filter.Role = &role
	}
	if v := q.Get("swarmId"); v != "" {
		filter.SwarmID = &v
	}
	workers, err := s.sup.ListWorkers(filter)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, workers)
}

func (s *Server) handleWorkerOutput(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	lines, err := s.sup.GetRecentOutput(handle, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"lines": lines})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.sup.GetStatus()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, status)
}

type createSwarmRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MaxAgents   int    `json:"maxAgents"`
}

func (s *Server) handleCreateSwarm(w http.ResponseWriter, r *http.Request) {
	var req createSwarmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{OK: false, Kind: "bad_request", Message: err.Error()})
		return
	}
	sw := &model.Swarm{
		ID:          ids.New(),
		Name:        req.Name,
		Description: req.Description,
		MaxAgents:   req.MaxAgents,
		CreatedAt:   s.clock.NowMillis(),
	}
	if err := s.store.CreateSwarm(sw); err != nil {
		writeErr(w, err)
		return
	}
	if s.hub != nil {
		publishAll(s, "swarm:created", map[string]any{"id": sw.ID})
	}
	writeCreated(w, sw)
}

func (s *Server) handleListSwarms(w http.ResponseWriter, r *http.Request) {
	swarms, err := s.store.ListSwarms()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, swarms)
}

func (s *Server) handleGetSwarm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sw, err := s.store.GetSwarm(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, sw)
}

// handleKillSwarm destroys a swarm and dismisses every referencing worker,
// per spec.md §3: "Destroyed explicitly; on destruction all referencing
// workers are dismissed."
func (s *Server) handleKillSwarm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetSwarm(id); err != nil {
		writeErr(w, err)
		return
	}
	members, err := s.sup.ListWorkers(storage.WorkerFilter{SwarmID: &id})
	if err != nil {
		writeErr(w, err)
		return
	}
	for _, member := range members {
		if _, err := s.sup.Dismiss(member.Handle, nil); err != nil && !errs.Is(err, errs.KindNotFound) {
			writeErr(w, err)
			return
		}
	}
	if s.hub != nil {
		publishAll(s, "swarm:killed", map[string]any{"id": id})
	}
	writeOK(w, map[string]any{"killed": true, "dismissedWorkers": len(members)})
}
