// ABOUTME: HTTP handlers for the compound iteration loop.
// ABOUTME: Driver.Run blocks for the loop's duration, so runs go through a pollable registry.
package httpapi

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/fleetforge/fleetd/internal/compound"
	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/ids"
)

// compoundRunStatus is the externally visible state of a background
// compound-loop run; the loop itself (internal/compound.Driver) has no
// concept of a run id, so the HTTP layer assigns one and tracks the
// outcome for polling clients, the way the reference repository's
// web.BuildRun tracks an attractor engine run started from a handler.
type compoundRunStatus string

const (
	compoundRunRunning   compoundRunStatus = "running"
	compoundRunSucceeded compoundRunStatus = "succeeded"
	compoundRunFailed    compoundRunStatus = "failed"
)

type compoundRun struct {
	ID     string
	Status compoundRunStatus
	Result *compound.Result
	Error  string
}

// compoundRegistry tracks in-flight and completed compound-loop runs
// started by the HTTP layer. Entries never expire; a long-lived server
// process is expected to be restarted between large batches of runs.
type compoundRegistry struct {
	mu   sync.Mutex
	runs map[string]*compoundRun
}

func newCompoundRegistry() *compoundRegistry {
	return &compoundRegistry{runs: make(map[string]*compoundRun)}
}

func (reg *compoundRegistry) put(run *compoundRun) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.runs[run.ID] = run
}

func (reg *compoundRegistry) get(id string) (*compoundRun, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	run, ok := reg.runs[id]
	return run, ok
}

type startCompoundRunRequest struct {
	Objective     string `json:"objective"`
	WorkingDir    string `json:"workingDir"`
	NumWorkers    int    `json:"numWorkers"`
	MaxIterations int    `json:"maxIterations"`
}

// handleStartCompoundRun kicks off a compound iteration loop in the
// background and returns its run id immediately: the loop can run for
// many gate/feedback cycles, far longer than a client should block an
// HTTP request for.
func (s *Server) handleStartCompoundRun(w http.ResponseWriter, r *http.Request) {
	if s.compnd == nil {
		writeErr(w, errs.Internal("compound loop is not wired"))
		return
	}
	var req startCompoundRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{OK: false, Kind: "bad_request", Message: err.Error()})
		return
	}

	run := &compoundRun{ID: ids.New(), Status: compoundRunRunning}
	s.compoundRuns.put(run)

	go func() {
		result, err := s.compnd.Run(context.Background(), compound.RunRequest{
			Objective:     req.Objective,
			WorkingDir:    req.WorkingDir,
			NumWorkers:    req.NumWorkers,
			MaxIterations: req.MaxIterations,
		})
		if err != nil {
			run.Status = compoundRunFailed
			run.Error = err.Error()
		} else {
			run.Result = result
			if result.Succeeded {
				run.Status = compoundRunSucceeded
			} else {
				run.Status = compoundRunFailed
			}
		}
		s.compoundRuns.put(run)
	}()

	writeCreated(w, map[string]any{"id": run.ID, "status": run.Status})
}

func (s *Server) handleGetCompoundRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, ok := s.compoundRuns.get(id)
	if !ok {
		writeErr(w, errs.NotFound("compound run %s", id))
		return
	}
	writeOK(w, run)
}
